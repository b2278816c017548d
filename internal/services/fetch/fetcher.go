package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
	"github.com/ternarybob/arbor"

	"github.com/finwire/finwire/internal/common"
	"github.com/finwire/finwire/internal/models"
)

// contentSelectors are tried in order; the first non-trivial match wins.
var contentSelectors = []string{
	"article",
	"main",
	"[role=main]",
	".article-body",
	".post-content",
	"#content",
}

// minContentChars rejects boilerplate-only matches (cookie walls, nav).
const minContentChars = 200

// Article is the extracted page content handed to the ingest pipeline.
type Article struct {
	URL         string
	Title       string
	Content     string // markdown
	PublishedAt *time.Time
	Language    string
}

// Fetcher downloads an article URL and extracts its main content as
// markdown for ingest_url.
type Fetcher struct {
	client       *http.Client
	maxBodyBytes int64
	userAgent    string
	logger       arbor.ILogger
}

// NewFetcher creates the article fetcher.
func NewFetcher(config *common.FetchConfig, logger arbor.ILogger) (*Fetcher, error) {
	timeout, err := time.ParseDuration(config.Timeout)
	if err != nil {
		return nil, fmt.Errorf("invalid fetch timeout %q: %w", config.Timeout, err)
	}
	maxBody := config.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = 5 << 20
	}
	userAgent := config.UserAgent
	if userAgent == "" {
		userAgent = "finwire/" + common.Version
	}
	return &Fetcher{
		client:       &http.Client{Timeout: timeout},
		maxBodyBytes: maxBody,
		userAgent:    userAgent,
		logger:       logger,
	}, nil
}

// Fetch downloads and extracts one article.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*Article, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return nil, models.NewServiceError(models.ErrInvalidInput, "url must be absolute http(s)")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, models.WrapServiceError(models.ErrInvalidInput, "cannot build fetch request", err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, models.WrapServiceError(models.ErrUpstreamUnavailable, "article fetch failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, models.NewServiceError(models.ErrUpstreamUnavailable,
			fmt.Sprintf("article fetch returned status %d", resp.StatusCode)).
			WithDetail("status_code", resp.StatusCode)
	}
	if contentType := resp.Header.Get("Content-Type"); contentType != "" && !strings.Contains(contentType, "html") {
		return nil, models.NewServiceError(models.ErrInvalidInput, "url does not serve HTML").
			WithDetail("content_type", contentType)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBodyBytes))
	if err != nil {
		return nil, models.WrapServiceError(models.ErrUpstreamUnavailable, "article body read failed", err)
	}

	article, err := f.extract(rawURL, string(body))
	if err != nil {
		return nil, err
	}
	f.logger.Debug().
		Str("url", rawURL).
		Str("title", article.Title).
		Int("content_chars", len(article.Content)).
		Msg("Article fetched")
	return article, nil
}

// extract pulls the title, publish date, and main content out of the page
// and converts the content to markdown.
func (f *Fetcher) extract(pageURL, html string) (*Article, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, models.WrapServiceError(models.ErrInvalidInput, "page is not parseable HTML", err)
	}

	doc.Find("script, style, noscript, nav, header, footer, aside, form, iframe").Remove()

	article := &Article{URL: pageURL, Language: pageLanguage(doc)}
	article.Title = pageTitle(doc)
	article.PublishedAt = publishedAt(doc)

	contentHTML := mainContentHTML(doc)
	if contentHTML == "" {
		return nil, models.NewServiceError(models.ErrInvalidInput, "no extractable article content")
	}

	converter := md.NewConverter(pageURL, true, nil)
	markdown, err := converter.ConvertString(contentHTML)
	if err != nil {
		return nil, models.WrapServiceError(models.ErrInvalidInput, "markdown conversion failed", err)
	}
	article.Content = strings.TrimSpace(markdown)
	if len(article.Content) < minContentChars {
		return nil, models.NewServiceError(models.ErrInvalidInput, "extracted content is too short to ingest")
	}
	return article, nil
}

func pageTitle(doc *goquery.Document) string {
	if og, ok := doc.Find(`meta[property="og:title"]`).Attr("content"); ok && og != "" {
		return strings.TrimSpace(og)
	}
	if h1 := strings.TrimSpace(doc.Find("h1").First().Text()); h1 != "" {
		return h1
	}
	return strings.TrimSpace(doc.Find("title").First().Text())
}

func pageLanguage(doc *goquery.Document) string {
	if lang, ok := doc.Find("html").Attr("lang"); ok && lang != "" {
		if i := strings.IndexAny(lang, "-_"); i > 0 {
			lang = lang[:i]
		}
		return strings.ToLower(lang)
	}
	return ""
}

func publishedAt(doc *goquery.Document) *time.Time {
	candidates := []string{
		`meta[property="article:published_time"]`,
		`meta[name="date"]`,
		`meta[itemprop="datePublished"]`,
	}
	for _, selector := range candidates {
		if value, ok := doc.Find(selector).Attr("content"); ok {
			for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
				if ts, err := time.Parse(layout, strings.TrimSpace(value)); err == nil {
					utc := ts.UTC()
					return &utc
				}
			}
		}
	}
	if value, ok := doc.Find("time[datetime]").First().Attr("datetime"); ok {
		if ts, err := time.Parse(time.RFC3339, strings.TrimSpace(value)); err == nil {
			utc := ts.UTC()
			return &utc
		}
	}
	return nil
}

func mainContentHTML(doc *goquery.Document) string {
	for _, selector := range contentSelectors {
		selection := doc.Find(selector).First()
		if selection.Length() == 0 {
			continue
		}
		if html, err := goquery.OuterHtml(selection); err == nil {
			if len(strings.TrimSpace(selection.Text())) >= minContentChars {
				return html
			}
		}
	}
	if html, err := doc.Find("body").Html(); err == nil {
		return html
	}
	return ""
}
