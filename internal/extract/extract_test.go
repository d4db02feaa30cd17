package extract

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_Lookup(t *testing.T) {
	r := NewRegistry()
	r.Register("md", NewMarkdown())
	r.Register(".TXT", ExtractorFunc(func(_ string, data []byte) (string, error) {
		return strings.ToUpper(string(data)), nil
	}))

	_, ok := r.Lookup("docs/README.MD")
	assert.True(t, ok, "extension match is case-insensitive")

	e, ok := r.Lookup("notes/a.txt")
	require.True(t, ok)
	out, err := e.Extract("notes/a.txt", []byte("hi"))
	require.NoError(t, err)
	assert.Equal(t, "HI", out)

	_, ok = r.Lookup("main.go")
	assert.False(t, ok)

	var nilRegistry *Registry
	_, ok = nilRegistry.Lookup("a.md")
	assert.False(t, ok)
}

func TestMarkdown_Extract(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "heading and emphasis",
			in:   "# Title\n\nSome *bold* text.\n",
			want: "Title\nSome bold text.\n",
		},
		{
			name: "list items",
			in:   "- first\n- second\n",
			want: "first\nsecond\n",
		},
		{
			name: "fenced code kept verbatim",
			in:   "Intro\n\n```go\nfmt.Println(\"x\")\n```\n",
			want: "Intro\nfmt.Println(\"x\")\n",
		},
		{
			name: "link text only",
			in:   "See [the docs](https://example.com) now.\n",
			want: "See the docs now.\n",
		},
		{
			name: "empty document",
			in:   "",
			want: "",
		},
	}

	m := NewMarkdown()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := m.Extract("doc.md", []byte(tt.in))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
