package formengine

import (
	"errors"
	"fmt"
)

var (
	// ErrRender matches every failure that aborted a render call.
	ErrRender = errors.New("render failure")
	// ErrSchemaFetch marks a schema document that was unavailable or
	// malformed.
	ErrSchemaFetch = errors.New("schema fetch failure")
	// ErrReferenceFetch marks a reference option list that was unavailable.
	ErrReferenceFetch = errors.New("reference fetch failure")
	// ErrRecordFetch marks a record collection that was unavailable.
	ErrRecordFetch = errors.New("record fetch failure")

	ErrUnknownEntity     = errors.New("unknown entity kind")
	ErrMissingNaturalKey = errors.New("record has no natural key")
	ErrUnknownReference  = errors.New("no option source for reference role")
	ErrSuperseded        = errors.New("render superseded by a newer render")
)

// StatusDescriber is implemented by transport errors that carry an upstream
// status line.
type StatusDescriber interface {
	StatusDescription() string
}

// RenderError is returned when a fetch aborts a render. It matches ErrRender
// and its Kind with errors.Is.
type RenderError struct {
	Kind   error  // ErrSchemaFetch, ErrReferenceFetch or ErrRecordFetch
	Target string // upstream path that failed
	Status string // upstream status description, if any
	Err    error
}

// NewRenderError wraps a fetch failure of target. kind is one of the fetch
// sentinels.
func NewRenderError(kind error, target string, err error) *RenderError {
	re := &RenderError{Kind: kind, Target: target, Err: err}
	var sd StatusDescriber
	if errors.As(err, &sd) {
		re.Status = sd.StatusDescription()
	}
	return re
}

func (e *RenderError) Error() string {
	if e.Status != "" {
		return fmt.Sprintf("%s: %v: %s (%s)", ErrRender, e.Kind, e.Target, e.Status)
	}
	return fmt.Sprintf("%s: %v: %s: %v", ErrRender, e.Kind, e.Target, e.Err)
}

func (e *RenderError) Unwrap() error { return e.Err }

func (e *RenderError) Is(target error) bool {
	return target == ErrRender || target == e.Kind
}
