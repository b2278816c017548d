package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/finwire/finwire/internal/common"
	"github.com/finwire/finwire/internal/models"
)

const articlePage = `<!DOCTYPE html>
<html lang="en-US">
<head>
  <title>Fallback Title</title>
  <meta property="og:title" content="Apple Beats Earnings Estimates">
  <meta property="article:published_time" content="2026-03-10T09:30:00Z">
</head>
<body>
  <nav>Home | Markets | Tech</nav>
  <article>
    <h1>Apple Beats Earnings Estimates</h1>
    <p>Apple reported quarterly revenue well ahead of consensus, driven by
    services growth and stronger than expected iPhone demand in Asia. The
    company also announced an expanded share buyback program, signalling
    confidence in forward guidance despite a softer macro backdrop.</p>
    <p>Analysts highlighted the gross margin expansion as the most important
    signal in the print, with several raising price targets after the call.</p>
  </article>
  <footer>Copyright</footer>
</body>
</html>`

func newTestFetcher(t *testing.T) *Fetcher {
	t.Helper()
	config := common.DefaultConfig()
	f, err := NewFetcher(&config.Fetch, arbor.NewLogger())
	require.NoError(t, err)
	return f
}

func TestFetch_ExtractsArticle(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.Header.Get("User-Agent"), "finwire/")
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(articlePage))
	}))
	defer server.Close()

	article, err := newTestFetcher(t).Fetch(context.Background(), server.URL)
	require.NoError(t, err)

	assert.Equal(t, "Apple Beats Earnings Estimates", article.Title)
	assert.Equal(t, "en", article.Language)
	require.NotNil(t, article.PublishedAt)
	assert.Equal(t, "2026-03-10T09:30:00Z", article.PublishedAt.Format("2006-01-02T15:04:05Z"))

	assert.Contains(t, article.Content, "services growth")
	assert.NotContains(t, article.Content, "Home | Markets", "navigation chrome is stripped")
	assert.NotContains(t, article.Content, "Copyright")
}

func TestFetch_RejectsNonHTML(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		w.Write([]byte("%PDF-1.4"))
	}))
	defer server.Close()

	_, err := newTestFetcher(t).Fetch(context.Background(), server.URL)
	require.Error(t, err)
	assert.Equal(t, models.ErrInvalidInput, models.CodeOf(err))
}

func TestFetch_UpstreamFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	_, err := newTestFetcher(t).Fetch(context.Background(), server.URL)
	require.Error(t, err)
	assert.Equal(t, models.ErrUpstreamUnavailable, models.CodeOf(err))
}

func TestFetch_InvalidURL(t *testing.T) {
	f := newTestFetcher(t)
	for _, bad := range []string{"", "ftp://example.com/x", "not a url", "/relative/path"} {
		_, err := f.Fetch(context.Background(), bad)
		require.Error(t, err, "url %q", bad)
		assert.Equal(t, models.ErrInvalidInput, models.CodeOf(err))
	}
}

func TestFetch_TooShortContent(t *testing.T) {
	page := strings.Replace(articlePage, "<article>", "<article><!-- gutted -->", 1)
	page = page[:strings.Index(page, "<p>")] + "<p>short</p></article></body></html>"

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(page))
	}))
	defer server.Close()

	_, err := newTestFetcher(t).Fetch(context.Background(), server.URL)
	require.Error(t, err)
	assert.Equal(t, models.ErrInvalidInput, models.CodeOf(err))
}
