package page

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3-lines-studio/ssg/internal/core"
)

func TestMount(t *testing.T) {
	tests := []struct {
		name  string
		shell string
		root  string
		want  string
	}{
		{
			name:  "empty div",
			shell: `<body><div id="app"></div><script src="/a.js"></script></body>`,
			root:  "app",
			want:  `<body><div id="app" data-ssg="true"><p>hi</p></div><script src="/a.js"></script></body>`,
		},
		{
			name:  "other tag with attributes and children",
			shell: `<body><main class="x" id="app">loading<div>nested</div></main><footer></footer></body>`,
			root:  "app",
			want:  `<body><main class="x" id="app" data-ssg="true"><p>hi</p></main><footer></footer></body>`,
		},
		{
			name:  "nested elements with the same tag",
			shell: `<div id="app" class="c"><div>a</div><div><div>b</div></div></div><div>after</div>`,
			root:  "app",
			want:  `<div id="app" class="c" data-ssg="true"><p>hi</p></div><div>after</div>`,
		},
		{
			name:  "custom root id",
			shell: `<div id="app"></div><div id="root"></div>`,
			root:  "root",
			want:  `<div id="app"></div><div id="root" data-ssg="true"><p>hi</p></div>`,
		},
		{
			name:  "existing flag is not repeated",
			shell: `<div id="app" data-ssg="false">old</div>`,
			root:  "app",
			want:  `<div id="app" data-ssg="true"><p>hi</p></div>`,
		},
		{
			name:  "attribute values are escaped",
			shell: `<div id="app" title="a&quot;b">x</div>`,
			root:  "app",
			want:  `<div id="app" title="a&#34;b" data-ssg="true"><p>hi</p></div>`,
		},
		{
			name:  "unclosed element replaces the start tag only",
			shell: `<section id="app"><span>tail`,
			root:  "app",
			want:  `<section id="app" data-ssg="true"><p>hi</p></section><span>tail`,
		},
		{
			name:  "script text containing the id is skipped",
			shell: `<script>var s = '<div id="app">';</script><article id="app"></article>`,
			root:  "app",
			want:  `<script>var s = '<div id="app">';</script><article id="app" data-ssg="true"><p>hi</p></article>`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Mount(tt.shell, tt.root, "<p>hi</p>")
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMountSingleContainer(t *testing.T) {
	got, err := Mount(`<div id="app"></div>`, "app", "<p>hi</p>")
	require.NoError(t, err)

	assert.Contains(t, got, `<div id="app" data-ssg="true"><p>hi</p></div>`)
	assert.Equal(t, 1, strings.Count(got, `id="app"`))
}

func TestMountMissingRoot(t *testing.T) {
	_, err := Mount(`<div id="other"></div>`, "app", "<p>hi</p>")
	require.Error(t, err)

	var missing *core.MissingRootError
	require.True(t, errors.As(err, &missing))
	assert.Equal(t, "app", missing.Root)
	assert.Contains(t, err.Error(), `id="app"`)
}
