package document

import (
	"errors"
	"fmt"
)

var (
	ErrMalformedNode   = errors.New("malformed node")
	ErrUnknownNodeType = errors.New("unknown node type")
	ErrUnknownMarkType = errors.New("unknown mark type")
	ErrMalformedStep   = errors.New("malformed step")
)

// FailureKind classifies why a step could not be applied.
type FailureKind string

const (
	// FailureOutOfRange: from or to lies outside the document.
	FailureOutOfRange FailureKind = "out_of_range"
	// FailureInvalidRange: from is negative or after to.
	FailureInvalidRange FailureKind = "invalid_range"
	// FailureBoundaryMismatch: from and to do not share a parent node.
	FailureBoundaryMismatch FailureKind = "boundary_mismatch"
	// FailureInvalidContent: the result would break the document grammar.
	FailureInvalidContent FailureKind = "invalid_content"
)

// StepFailure is the structured result of a step that cannot be applied. It
// is always recoverable by dropping the step.
type StepFailure struct {
	Kind FailureKind
	// Index is the position of the failing step in a sequence, -1 for a
	// single Apply.
	Index   int
	From    int
	To      int
	Message string
}

func (f *StepFailure) Error() string {
	if f == nil {
		return ""
	}
	if f.Index >= 0 {
		return fmt.Sprintf("step %d [%d,%d): %s: %s", f.Index, f.From, f.To, f.Kind, f.Message)
	}
	return fmt.Sprintf("step [%d,%d): %s: %s", f.From, f.To, f.Kind, f.Message)
}

func fail(kind FailureKind, s Step, format string, args ...interface{}) *StepFailure {
	return &StepFailure{
		Kind:    kind,
		Index:   -1,
		From:    s.From,
		To:      s.To,
		Message: fmt.Sprintf(format, args...),
	}
}
