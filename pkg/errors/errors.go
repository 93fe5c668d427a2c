package errors

import (
	"fmt"
	"time"
)

// Stage identifies the pipeline stage an error originated from
type Stage string

const (
	// StageFetch represents page-fetch errors (network, HTTP)
	StageFetch Stage = "fetch"
	// StageBlocked represents anti-bot block pages
	StageBlocked Stage = "blocked"
	// StageExtract represents field-extraction errors
	StageExtract Stage = "extract"
	// StageNormalize represents financial-text normalization errors
	StageNormalize Stage = "normalize"
	// StagePersist represents destination-store errors
	StagePersist Stage = "persist"
	// StageConfig represents configuration errors
	StageConfig Stage = "config"
)

// SourceError represents an error scoped to one source's pipeline run
type SourceError struct {
	Stage   Stage
	Source  string
	Message string
	Err     error
	Time    time.Time
}

// Error implements the error interface
func (e *SourceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %s - %v", e.Stage, e.Source, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Stage, e.Source, e.Message)
}

// Unwrap returns the underlying error
func (e *SourceError) Unwrap() error {
	return e.Err
}

// IsRetryable returns true if the error is retryable
func (e *SourceError) IsRetryable() bool {
	switch e.Stage {
	case StageFetch:
		return true
	case StageBlocked:
		return false
	default:
		return false
	}
}

// New creates a new SourceError
func New(stage Stage, source, message string, err error) *SourceError {
	return &SourceError{
		Stage:   stage,
		Source:  source,
		Message: message,
		Err:     err,
		Time:    time.Now(),
	}
}

// NewFetch creates a new fetch error
func NewFetch(source, message string, err error) *SourceError {
	return New(StageFetch, source, message, err)
}

// NewBlocked creates a new block-page error
func NewBlocked(source, url string) *SourceError {
	return New(StageBlocked, source, fmt.Sprintf("block page detected at %s", url), nil)
}

// NewExtract creates a new extraction error
func NewExtract(source, message string, err error) *SourceError {
	return New(StageExtract, source, message, err)
}

// NewPersist creates a new destination-store error
func NewPersist(message string, err error) *SourceError {
	return New(StagePersist, "", message, err)
}

// NewConfig creates a new configuration error
func NewConfig(message string, err error) *SourceError {
	return New(StageConfig, "", message, err)
}
