// Package model defines the shared data types that flow through the
// codeforge pipeline: steps, candidates, semantic groups, and vote results.
package model

import (
	"github.com/google/uuid"
)

// Kind identifies what a Step asks for.
type Kind string

const (
	KindExpand    Kind = "expand"
	KindDecompose Kind = "decompose"
	KindGenerate  Kind = "generate"
	KindValidate  Kind = "validate"
	KindRead      Kind = "read"
	KindSearch    Kind = "search"
	KindTest      Kind = "test"
	KindApply     Kind = "apply"
	KindDecide    Kind = "decide"
	KindDone      Kind = "done"
)

// IsExecution reports whether this kind is a deterministic tool dispatch
// (READ/SEARCH/TEST/APPLY) rather than a voted decision.
func (k Kind) IsExecution() bool {
	switch k {
	case KindRead, KindSearch, KindTest, KindApply:
		return true
	}
	return false
}

// Step is an atomic unit of intended work. Once constructed it is never
// mutated; a new Step is created instead.
type Step struct {
	ID          string
	Kind        Kind
	Description string
	Signature   string
	Context     string
	Action      string
}

// NewStep builds a Step with a fresh identifier.
func NewStep(kind Kind, description string) Step {
	return Step{
		ID:          uuid.NewString()[:8],
		Kind:        kind,
		Description: description,
	}
}

// WithSignature returns a copy of the step carrying the given signature.
func (s Step) WithSignature(sig string) Step {
	s.Signature = sig
	return s
}

// WithContext returns a copy of the step carrying the given context string.
func (s Step) WithContext(ctx string) Step {
	s.Context = ctx
	return s
}
