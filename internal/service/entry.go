package service

import (
	"strings"
	"time"

	"feed_updater/internal/domain"
)

const (
	untitledEntry = "Untitled Item"
	missingLink   = `javascript:alert("no link provided for item")`
)

// buildEntry turns a parsed document entry into an Entry for sourceID,
// applying the title, link and published fallbacks in order.
func buildEntry(sourceID int64, doc *domain.Document, item domain.DocumentEntry, now time.Time) domain.Entry {
	return domain.Entry{
		SourceID:    sourceID,
		Title:       entryTitle(item),
		Link:        entryLink(item),
		Published:   entryPublished(doc, item, now),
		Description: item.Description,
		Author:      item.Author,
	}
}

func entryTitle(item domain.DocumentEntry) string {
	if s := nonBlank(item.Title); s != "" {
		return s
	}
	if s := nonBlank(item.Link); s != "" {
		return s
	}
	return untitledEntry
}

func entryLink(item domain.DocumentEntry) string {
	if s := nonBlank(item.Link); s != "" {
		return s
	}
	return missingLink
}

// entryPublished resolves the entry timestamp: entry published, entry
// updated, document published, document updated, then now. The result is
// in UTC at the precision the stores keep.
func entryPublished(doc *domain.Document, item domain.DocumentEntry, now time.Time) time.Time {
	candidates := []*time.Time{item.Published, item.Updated}
	if doc != nil {
		candidates = append(candidates, doc.Published, doc.Updated)
	}

	t := now
	for _, c := range candidates {
		if c != nil && !c.IsZero() {
			t = *c
			break
		}
	}
	return t.UTC().Truncate(time.Microsecond)
}

func nonBlank(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}
