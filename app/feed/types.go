package feed

import (
	"time"
)

// Feed processing types

type Metadata struct {
	Title string
}

// Item is one entry as returned by a parse. It is consumed once per fetch and never stored as is.
type Item struct {
	GUID        string
	Title       string
	Link        string
	Content     string // full body (content:encoded, atom content)
	Description string // description or atom summary
	Summary     string // itunes summary
	PublishedAt *time.Time
}

type ParsedFeed struct {
	Metadata Metadata
	Items    []Item
}

// Configuration types

type Config struct {
	Name     string         // Derived from filename (without .yml extension)
	URL      string         `yaml:"url"`
	Script   string         `yaml:"script"`
	Category string         `yaml:"category"`
	Type     string         `yaml:"type"`
	Settings ConfigSettings `yaml:"settings"`
}

type ConfigSettings struct {
	Enabled        *bool `yaml:"enabled"`
	Timeout        int   `yaml:"timeout"` // seconds
	MaxItems       int   `yaml:"max_items"`
	ExtractContent bool  `yaml:"extract_content"`
}

func (s ConfigSettings) IsEnabled() bool {
	return s.Enabled == nil || *s.Enabled
}

type SourceKind string

const (
	SourceURL    SourceKind = "url"
	SourceScript SourceKind = "script"
)

// SourceKindFor reports which fetch variant serves a feed: a configured script always wins.
func SourceKindFor(url, script string) SourceKind {
	if script != "" {
		return SourceScript
	}
	return SourceURL
}
