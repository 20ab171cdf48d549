package domain

import "time"

// Document is a parsed syndication document. Every field the remote side
// may omit is a pointer.
type Document struct {
	Title     *string
	Published *time.Time
	Updated   *time.Time
	Entries   []DocumentEntry
}

// DocumentEntry is one entry of a parsed Document.
type DocumentEntry struct {
	Title       *string
	Link        *string
	Description *string
	Author      *string
	Published   *time.Time
	Updated     *time.Time
}

// FetchResult is what the transport returns for one conditional fetch.
// Document is nil when NotModified is set.
type FetchResult struct {
	NotModified bool
	Document    *Document
	ETag        *string
	Modified    *string
}
