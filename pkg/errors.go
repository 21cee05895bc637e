package pkg

import "errors"

var (
	// ErrEmptyInput is returned for a missing or whitespace-only message
	ErrEmptyInput = errors.New("empty input")

	// ErrExternalFetch wraps failures of the spreadsheet or chat-completion calls
	ErrExternalFetch = errors.New("external fetch failure")

	// ErrNoTimeWindowFound means a date or time phrase was present but could not be resolved
	ErrNoTimeWindowFound = errors.New("no time window found")
)
