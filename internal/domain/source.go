package domain

import "time"

// Source is a subscribed syndication feed.
type Source struct {
	ID          int64      `db:"id"`
	URL         string     `db:"url"`
	Title       *string    `db:"title"`
	ETag        *string    `db:"etag"`
	Modified    *string    `db:"modified"`
	LastUpdated *time.Time `db:"last_updated"`
	Downrank    bool       `db:"downrank"`
}

// HasValidator reports whether a previous fetch left a cache validator behind.
func (s *Source) HasValidator() bool {
	return s.ETag != nil || s.Modified != nil
}

// DisplayTitle falls back to the address while the title is unknown.
func (s *Source) DisplayTitle() string {
	if s.Title != nil && *s.Title != "" {
		return *s.Title
	}
	return s.URL
}

// Entry is one published item belonging to a Source.
type Entry struct {
	ID          int64      `db:"id"`
	SourceID    int64      `db:"source_id"`
	Title       string     `db:"title"`
	Link        string     `db:"link"`
	Published   time.Time  `db:"published"`
	Description *string    `db:"description"`
	Author      *string    `db:"author"`
	Visited     *time.Time `db:"visited"`
	Liked       *time.Time `db:"liked"`
	Dismissed   *time.Time `db:"dismissed"`
}
