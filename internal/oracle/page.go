package oracle

import (
	"html"
	"net/url"
	"strings"

	"github.com/go-shiori/go-readability"
	"github.com/microcosm-cc/bluemonday"
)

var strict = bluemonday.StrictPolicy()

// DefaultMaxPageChars bounds the page text sent with a request.
const DefaultMaxPageChars = 50000

// PageText reduces raw page HTML to its readable text. When readability
// finds no article the whole document is stripped of markup instead.
func PageText(doc, pageURL string, maxChars int) Page {
	if maxChars <= 0 {
		maxChars = DefaultMaxPageChars
	}
	page := Page{URL: pageURL}

	parsed, err := url.Parse(pageURL)
	if err != nil {
		parsed = &url.URL{}
	}
	article, err := readability.FromReader(strings.NewReader(doc), parsed)
	if err == nil && strings.TrimSpace(article.TextContent) != "" {
		page.Title = article.Title
		page.Text = strict.Sanitize(article.TextContent)
	} else {
		page.Text = strict.Sanitize(doc)
	}

	page.Text = strings.Join(strings.Fields(html.UnescapeString(page.Text)), " ")
	page.Text = Truncate(page.Text, maxChars, " ... (content truncated)")
	return page
}
