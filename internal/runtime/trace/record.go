// Package trace implements the trace/coverage channel (C10): it turns
// the Vote tree the combining engine (C7) produces into the structured
// trace record spec.md §4.10 defines, and sinks those records to disk
// (JSON Lines, grounded on internal/adapter/outbound/audit's rotation
// discipline) or to OpenTelemetry spans/metrics.
package trace

import (
	"github.com/heutelbeck/sapl-go/internal/compiler/expr"
	"github.com/heutelbeck/sapl-go/internal/domain/policy"
	"github.com/heutelbeck/sapl-go/internal/domain/value"
)

// VoterInfo identifies which voter produced a Record, mirroring
// spec.md §4.10's `voter: { name, type, documentId?, algorithm? }`.
type VoterInfo struct {
	Name       string                   `json:"name"`
	Type       string                   `json:"type"` // "policy" or "set"
	DocumentID string                   `json:"documentId,omitempty"`
	Algorithm  *policy.CombiningAlgorithm `json:"algorithm,omitempty"`
}

// ConditionHit records one evaluated `where` condition's outcome, the
// JSON shape of C5's body.ConditionOutcome once it crosses into a trace
// record.
type ConditionHit struct {
	StatementIndex int         `json:"statementIndex"`
	Result         value.Value `json:"result"`
}

// Record is one combined emission's trace, recursive over contributing
// children so a single top-level Record reconstructs the whole voter
// tree's reasoning without re-evaluating anything.
type Record struct {
	// RequestID correlates every Record from one Decide call; set on
	// the root Record only (child votes share their parent's call but
	// aren't individually addressable requests).
	RequestID         string                 `json:"requestId,omitempty"`
	Decision          policy.Decision        `json:"decision"`
	Obligations       []value.Value          `json:"obligations,omitempty"`
	Advice            []value.Value          `json:"advice,omitempty"`
	Resource          value.Value            `json:"resource,omitempty"`
	Voter             VoterInfo              `json:"voter"`
	Outcome           policy.Decision        `json:"outcome"`
	ContributingVotes []Record               `json:"contributingVotes,omitempty"`
	Errors            []value.Value          `json:"errors,omitempty"`
	Attributes        []expr.AttributeRecord `json:"attributes,omitempty"`
	// Conditions holds per-condition hits (spec.md §4.10). BuildRecord
	// never fills it and no trace level enables it, so it is nil in
	// every Record this package produces.
	Conditions []ConditionHit `json:"conditions,omitempty"`

	// Coverage holds per-policy target/condition-shape facts. BuildRecord
	// never fills it either; it is nil in every Record this package
	// produces.
	Coverage *CoverageInfo `json:"coverage,omitempty"`
}

// CoverageInfo is spec.md §4.10's "coverage mode additionally records,
// per policy: whether the target matched, source locations of target +
// policy declaration, and hasConditions (single-branch vs two-branch
// coverage semantics)".
type CoverageInfo struct {
	TargetMatched  bool                  `json:"targetMatched"`
	PolicyLocation value.SourceLocation  `json:"policyLocation"`
	HasConditions  bool                  `json:"hasConditions"`
}

// BuildRecord walks a Vote tree and produces its Record, recursing into
// every child regardless of whether it contributed to the combined
// decision. This is what gives FIRST's non-matching policies a minimal
// stub trace (spec.md §4.10): combine.Votes always populates Children
// with every child vote, contributing or not, so the recursion below
// never has to special-case "this child didn't win".
func BuildRecord(v policy.Vote) Record {
	children := make([]Record, len(v.Children))
	for i, c := range v.Children {
		children[i] = BuildRecord(c)
	}
	voterType := "policy"
	if v.IsSet {
		voterType = "set"
	}
	return Record{
		RequestID:         v.RequestID,
		Decision:          v.Decision.Decision,
		Obligations:       v.Decision.Obligations,
		Advice:            v.Decision.Advice,
		Resource:          v.Decision.Resource,
		Voter:             VoterInfo{Name: v.VoterName, Type: voterType, DocumentID: v.DocumentID, Algorithm: v.Algorithm},
		Outcome:           v.Decision.Decision,
		ContributingVotes: children,
		Errors:            v.Errors,
		Attributes:        v.Attributes,
	}
}

// Sink is the concrete implementation of policy.TraceSink: something
// that accepts one Vote per combined emission and does something with
// its Record (write it, export it, both).
type Sink interface {
	policy.TraceSink
}

// MultiSink fans one Vote out to every sink in order. A panic or slow
// sink in one does not protect the others — sinks are expected to be
// non-blocking and defensive, the same discipline spec.md §5 requires
// of attribute sources.
type MultiSink []policy.TraceSink

func (m MultiSink) Record(v policy.Vote) {
	for _, s := range m {
		s.Record(v)
	}
}
