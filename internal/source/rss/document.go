package rss

import (
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"feed_updater/internal/domain"
)

func toDocument(feed *gofeed.Feed) *domain.Document {
	doc := &domain.Document{
		Title:     optional(feed.Title),
		Published: utc(feed.PublishedParsed),
		Updated:   utc(feed.UpdatedParsed),
		Entries:   make([]domain.DocumentEntry, 0, len(feed.Items)),
	}

	for _, item := range feed.Items {
		if item == nil {
			continue
		}
		doc.Entries = append(doc.Entries, domain.DocumentEntry{
			Title:       optional(item.Title),
			Link:        optional(item.Link),
			Description: optional(item.Description),
			Author:      author(item),
			Published:   utc(item.PublishedParsed),
			Updated:     utc(item.UpdatedParsed),
		})
	}

	return doc
}

func author(item *gofeed.Item) *string {
	if item.Author != nil {
		if name := optional(item.Author.Name); name != nil {
			return name
		}
	}
	for _, p := range item.Authors {
		if p == nil {
			continue
		}
		if name := optional(p.Name); name != nil {
			return name
		}
	}
	return nil
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

func utc(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
