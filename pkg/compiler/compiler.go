// Package compiler turns block-level markup into document steps and proves
// them valid by replaying them against a scratch copy of the baseline before
// they are handed to anyone.
package compiler

import (
	"errors"
	"fmt"

	"itinerary-collab-be/pkg/document"
)

// Mode selects where compiled content lands in the baseline.
type Mode string

const (
	// ModeReplaceEmpty replaces the single empty paragraph of an empty
	// document with the first block.
	ModeReplaceEmpty Mode = "replace-empty"
	// ModeAppend inserts every block at the append position.
	ModeAppend Mode = "append"
)

// AppendAtEnd asks Compile to append after the last block of the baseline.
const AppendAtEnd = -1

// FailureKind classifies compile failures.
type FailureKind string

const (
	FailureInvalidMarkup    FailureKind = "invalid_markup"
	FailureEmptyContent     FailureKind = "empty_content"
	FailureBaselineNotEmpty FailureKind = "baseline_not_empty"
	FailureInvalidMode      FailureKind = "invalid_mode"
	FailureValidation       FailureKind = "validation_failed"
)

// CompileFailure means no steps were produced. StepIndex is the failing step
// of the dry run for FailureValidation and -1 otherwise.
type CompileFailure struct {
	Kind      FailureKind
	StepIndex int
	Cause     error
}

func (f *CompileFailure) Error() string {
	if f.StepIndex >= 0 {
		return fmt.Sprintf("compile: %s at step %d: %v", f.Kind, f.StepIndex, f.Cause)
	}
	if f.Cause != nil {
		return fmt.Sprintf("compile: %s: %v", f.Kind, f.Cause)
	}
	return fmt.Sprintf("compile: %s", f.Kind)
}

func (f *CompileFailure) Unwrap() error { return f.Cause }

func failure(kind FailureKind, cause error) *CompileFailure {
	return &CompileFailure{Kind: kind, StepIndex: -1, Cause: cause}
}

// Result is a validated step sequence together with the document it yields
// when applied to the baseline.
type Result struct {
	Steps    []document.Step
	Document *document.Node
}

// Compile parses markup and returns the steps that add it to baseline. The
// steps have already been replayed successfully against baseline.
func Compile(markup string, baseline *document.Node, mode Mode, appendPosition int) ([]document.Step, error) {
	res, err := CompileDocument(markup, baseline, mode, appendPosition)
	if err != nil {
		return nil, err
	}
	return res.Steps, nil
}

// CompileDocument is Compile that also returns the resulting document.
func CompileDocument(markup string, baseline *document.Node, mode Mode, appendPosition int) (*Result, error) {
	blocks, err := ParseBlocks(markup)
	if err != nil {
		return nil, failure(FailureInvalidMarkup, err)
	}
	if len(blocks) == 0 {
		return nil, failure(FailureEmptyContent, errors.New("markup holds no blocks"))
	}
	steps, err := BuildSteps(blocks, baseline, mode, appendPosition)
	if err != nil {
		return nil, err
	}
	doc, err := DryRun(baseline, steps)
	if err != nil {
		return nil, err
	}
	return &Result{Steps: steps, Document: doc}, nil
}

// BuildSteps lays blocks out as steps without validating them. In
// replace-empty mode the first block replaces the empty paragraph; every
// other block is a zero-width insert right after the previous one.
func BuildSteps(blocks []*document.Node, baseline *document.Node, mode Mode, appendPosition int) ([]document.Step, error) {
	if baseline == nil {
		return nil, failure(FailureValidation, errors.New("no baseline document"))
	}
	steps := make([]document.Step, 0, len(blocks))
	var pos int

	switch mode {
	case ModeReplaceEmpty:
		if !document.IsEmptyDoc(baseline) {
			return nil, failure(FailureBaselineNotEmpty, nil)
		}
		first := blocks[0]
		steps = append(steps, document.Replace(0, baseline.Child(0).Size(), first))
		pos = first.Size()
		blocks = blocks[1:]
	case ModeAppend:
		pos = appendPosition
		if pos == AppendAtEnd {
			pos = baseline.ContentSize()
		}
	default:
		return nil, failure(FailureInvalidMode, fmt.Errorf("mode %q", mode))
	}

	for _, b := range blocks {
		steps = append(steps, document.Insert(pos, b))
		pos += b.Size()
	}
	return steps, nil
}

// DryRun replays steps from baseline. Documents are immutable, so baseline
// itself is the scratch copy and stays untouched.
func DryRun(baseline *document.Node, steps []document.Step) (*document.Node, error) {
	doc, err := document.ComposeSequential(baseline, steps)
	if err != nil {
		f := &CompileFailure{Kind: FailureValidation, StepIndex: -1, Cause: err}
		var sf *document.StepFailure
		if errors.As(err, &sf) {
			f.StepIndex = sf.Index
		}
		return nil, f
	}
	return doc, nil
}
