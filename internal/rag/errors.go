package rag

import "fmt"

// Pipeline stages, used to name the failing upstream in errors and logs.
const (
	StageRewrite  = "rewrite"
	StageEmbed    = "embed"
	StageSearch   = "search"
	StageRerank   = "rerank"
	StageGenerate = "generate"
)

// UpstreamError reports a failed call to a remote dependency before the
// answer was produced. Nothing is persisted when this is returned.
type UpstreamError struct {
	Stage string
	Err   error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s upstream failed: %v", e.Stage, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// PersistenceError reports that the exchange could not be recorded after the
// answer was already generated. The answer is still returned to the caller;
// only the history row is lost.
type PersistenceError struct {
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("recording exchange failed: %v", e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
