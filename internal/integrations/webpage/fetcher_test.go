package webpage

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"
)

const samplePage = `<!doctype html>
<html><head><title> Example
 Title </title><style>body{color:red}</style></head>
<body>
  <h1>Example   Content</h1>
  <script>var hidden = 1;</script>
  <p>Second
     paragraph</p>
  <noscript>enable js</noscript>
</body></html>`

func TestFetch_ExtractsTitleAndBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NotEmpty(t, r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(samplePage))
	}))
	defer srv.Close()

	page, err := New().Fetch(context.Background(), "<"+srv.URL+">")
	require.NoError(t, err)
	require.Equal(t, "Example Title", page.Title)
	require.Equal(t, "Example Content Second paragraph", page.Body)
}

func TestFetch_Non2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := New().Fetch(context.Background(), srv.URL)
	require.ErrorContains(t, err, "unexpected status 404")
}

func TestFetch_EmptyURL(t *testing.T) {
	_, err := New().Fetch(context.Background(), " <> ")
	require.Error(t, err)
}

func TestFetch_TransportError(t *testing.T) {
	_, err := New().Fetch(context.Background(), "http://127.0.0.1:1/")
	require.Error(t, err)
}

func TestExtract_MissingParts(t *testing.T) {
	doc, err := html.Parse(strings.NewReader(""))
	require.NoError(t, err)
	page := Extract(doc)
	// the parser always synthesizes an empty body
	require.Equal(t, noTitle, page.Title)
	require.Equal(t, "", page.Body)
}
