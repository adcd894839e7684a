package feed

import (
	"bytes"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/go-shiori/go-readability"
	"github.com/sym01/htmlsanitizer"
)

// ContentExtractor pulls the readable article body out of a full HTML page.
type ContentExtractor struct {
	sanitizer *htmlsanitizer.HTMLSanitizer
}

func NewContentExtractor() *ContentExtractor {
	return &ContentExtractor{
		sanitizer: htmlsanitizer.NewHTMLSanitizer(),
	}
}

func (e *ContentExtractor) Run(data []byte, pageURL string) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("HTML data is empty")
	}

	var base *url.URL
	if pageURL != "" {
		if u, err := url.Parse(pageURL); err == nil {
			base = u
		}
	}

	article, err := readability.FromReader(bytes.NewReader(data), base)
	if err != nil {
		return "", fmt.Errorf("failed to extract content: %w", err)
	}

	if article.Content == "" {
		return "", fmt.Errorf("no content extracted from HTML data")
	}

	sanitized, err := e.sanitizer.SanitizeString(article.Content)
	if err != nil {
		return "", fmt.Errorf("failed to sanitize extracted content: %w", err)
	}

	content := CleanHTML(sanitized)
	if content == "" {
		return "", fmt.Errorf("no content left after sanitizing")
	}

	slog.Debug("Content extracted successfully",
		"title", article.Title,
		"content_length", len(content))

	return content, nil
}
