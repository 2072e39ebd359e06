package core

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

type compiledRule struct {
	re       *regexp.Regexp
	template string
}

func compileRewrites(rules []RewriteRule) ([]compiledRule, error) {
	compiled := make([]compiledRule, 0, len(rules))
	for i, r := range rules {
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			return nil, fmt.Errorf("rewrite rule %d: invalid pattern %q: %w", i, r.Pattern, err)
		}
		compiled = append(compiled, compiledRule{re: re, template: r.Template})
	}
	return compiled, nil
}

// ValidateRewrites reports the first rule whose pattern does not compile.
func ValidateRewrites(rules []RewriteRule) error {
	_, err := compileRewrites(rules)
	return err
}

// EvaluateRewrites tests every route against every rule and expands the
// template of each match, one line per match. Routes are visited in sorted
// order so the output is stable across runs.
func EvaluateRewrites(routes []string, rules []RewriteRule) (string, error) {
	compiled, err := compileRewrites(rules)
	if err != nil {
		return "", err
	}

	sorted := append([]string(nil), routes...)
	sort.Strings(sorted)

	var sb strings.Builder
	for _, route := range sorted {
		for _, rule := range compiled {
			match := rule.re.FindStringSubmatchIndex(route)
			if match == nil {
				continue
			}
			line := rule.re.ExpandString(nil, rule.template, route, match)
			sb.Write(line)
			sb.WriteByte('\n')
		}
	}
	return sb.String(), nil
}
