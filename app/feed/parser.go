package feed

import (
	"bytes"
	"cmp"
	"fmt"
	"strings"

	"github.com/mmcdole/gofeed"
)

type Parser struct {
	gofeedParser *gofeed.Parser
}

func NewParser() *Parser {
	return &Parser{
		gofeedParser: gofeed.NewParser(),
	}
}

// Run parses an RSS, Atom or JSON feed document.
func (p *Parser) Run(data []byte) (*ParsedFeed, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("%w: empty document", ErrParse)
	}

	feed, err := p.gofeedParser.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}

	parsed := &ParsedFeed{
		Metadata: Metadata{Title: CleanTitle(feed.Title)},
		Items:    make([]Item, 0, len(feed.Items)),
	}

	for _, item := range feed.Items {
		if item == nil {
			continue
		}
		parsed.Items = append(parsed.Items, p.normalizeItem(item))
	}

	return parsed, nil
}

func (p *Parser) normalizeItem(item *gofeed.Item) Item {
	normalized := Item{
		GUID:        cmp.Or(item.GUID, item.Link),
		Title:       CleanTitle(item.Title),
		Link:        strings.TrimSpace(cmp.Or(item.Link, firstLink(item.Links))),
		Content:     item.Content,
		Description: item.Description,
		PublishedAt: cmp.Or(item.PublishedParsed, item.UpdatedParsed),
	}

	if item.ITunesExt != nil {
		normalized.Summary = item.ITunesExt.Summary
	}

	return normalized
}

func firstLink(links []string) string {
	for _, link := range links {
		if strings.TrimSpace(link) != "" {
			return link
		}
	}
	return ""
}
