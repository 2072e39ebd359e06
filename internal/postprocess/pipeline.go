package postprocess

// Pipeline runs the optional critical CSS stage and then the formatter.
type Pipeline struct {
	Critical  *CriticalInliner
	Formatter Formatter
}

func (p Pipeline) Process(html string) (string, error) {
	var err error
	if p.Critical != nil {
		html, err = p.Critical.Process(html)
		if err != nil {
			return "", err
		}
	}

	if p.Formatter == nil {
		return html, nil
	}
	return p.Formatter.Format(html)
}
