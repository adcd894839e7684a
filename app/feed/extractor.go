package feed

import "strings"

// ExtractContent picks the richest text carried by an item: the full body, then the
// description (RSS description or Atom summary), then the iTunes summary.
// Both ingestion and on-demand content go through this function.
func ExtractContent(item Item) string {
	for _, candidate := range []string{item.Content, item.Description, item.Summary} {
		if strings.TrimSpace(candidate) != "" {
			return candidate
		}
	}
	return ""
}
