package app

import (
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/dailycards/cardshell/internal/errors"
)

func writeDoc(t *testing.T, d *Document, title, body string) string {
	t.Helper()
	var b strings.Builder
	require.NoError(t, d.Write(&b, title, func(w io.Writer) error {
		_, err := io.WriteString(w, body)
		return err
	}))
	return b.String()
}

func TestParseDocument(t *testing.T) {
	src := `<!DOCTYPE html><html><head><title> dailycards </title></head>
<body><header>nav</header><div id="app"><p>loading</p></div><footer>f</footer></body></html>`

	d, err := ParseDocument([]byte(src), "app", "")
	require.NoError(t, err)
	assert.Equal(t, "dailycards", d.BaseTitle)

	out := writeDoc(t, d, "Stats", "<b>page</b>")
	assert.Contains(t, out, `<div id="app"><b>page</b></div>`)
	assert.Contains(t, out, "<title>Stats | dailycards</title>")
	assert.Contains(t, out, "<header>nav</header>")
	assert.Contains(t, out, "<footer>f</footer>")
	assert.NotContains(t, out, "loading")

	out = writeDoc(t, d, "", "")
	assert.Contains(t, out, "<title>dailycards</title>")
}

func TestParseDocumentWithoutTitle(t *testing.T) {
	d, err := ParseDocument([]byte(`<div id="app"></div>`), "app", "")
	require.NoError(t, err)

	out := writeDoc(t, d, "Home & more", "x")
	assert.Contains(t, out, `<div id="app">x</div>`)
	assert.NotContains(t, out, "<title>")
}

func TestParseDocumentEscapesTitle(t *testing.T) {
	d, err := ParseDocument([]byte(`<title>t</title><div id="app"></div>`), "app", "")
	require.NoError(t, err)
	out := writeDoc(t, d, "<Edit>", "")
	assert.Contains(t, out, "&lt;Edit&gt; | t")
}

func TestParseDocumentMissingMount(t *testing.T) {
	for _, id := range []string{"app", ""} {
		_, err := ParseDocument([]byte(`<div id="root"></div>`), id, "")
		require.Error(t, err)
		assert.Equal(t, apperrors.ErrCodeMountPointMissing, apperrors.CodeOf(err))
	}
}

func TestParseDocumentInjectsScript(t *testing.T) {
	d, err := ParseDocument(DefaultIndex(), "app", `console.log("hi")`)
	require.NoError(t, err)

	out := writeDoc(t, d, "", "")
	script := `<script data-cardshell="live-reload">console.log("hi")</script>`
	assert.Contains(t, out, script)
	assert.Less(t, strings.Index(out, script), strings.Index(out, "</body>"))
}

func TestDocumentWritePropagatesBodyError(t *testing.T) {
	d, err := ParseDocument(DefaultIndex(), "app", "")
	require.NoError(t, err)

	boom := errors.New("boom")
	err = d.Write(io.Discard, "", func(io.Writer) error { return boom })
	assert.ErrorIs(t, err, boom)
}
