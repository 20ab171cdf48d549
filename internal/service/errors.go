package service

import (
	"errors"
	"fmt"
)

// ErrNoSources is returned by Run when there is nothing to update.
var ErrNoSources = errors.New("no sources to update")

type Stage string

const (
	StageTransport Stage = "transport"
	StageMerge     Stage = "merge"
)

// FetchError is a failure confined to a single source.
type FetchError struct {
	SourceID int64
	URL      string
	Stage    Stage
	Err      error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("source %d (%s): %s: %v", e.SourceID, e.URL, e.Stage, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// OrchestrationError aborts a whole run. No RunStat is produced.
type OrchestrationError struct {
	Op  string
	Err error
}

func (e *OrchestrationError) Error() string {
	return fmt.Sprintf("update run: %s: %v", e.Op, e.Err)
}

func (e *OrchestrationError) Unwrap() error {
	return e.Err
}
