package trace

import (
	"io"
	"log/slog"
	"os"
	"testing"

	"github.com/heutelbeck/sapl-go/internal/domain/policy"
	"github.com/heutelbeck/sapl-go/internal/domain/value"
)

func newDiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestBuildRecordRecursesIntoChildren(t *testing.T) {
	child := policy.Vote{
		Decision:   policy.AuthorizationDecision{Decision: policy.DecisionDeny},
		VoterName:  "deny-bob",
		DocumentID: "cfg/0",
	}
	root := policy.Vote{
		Decision:   policy.AuthorizationDecision{Decision: policy.DecisionDeny},
		VoterName:  "root",
		DocumentID: "cfg",
		IsSet:      true,
		Children:   []policy.Vote{child},
	}
	rec := BuildRecord(root)
	if rec.Voter.Type != "set" || rec.Voter.Name != "root" {
		t.Fatalf("got voter %+v", rec.Voter)
	}
	if len(rec.ContributingVotes) != 1 {
		t.Fatalf("expected 1 child record, got %d", len(rec.ContributingVotes))
	}
	if rec.ContributingVotes[0].Voter.Type != "policy" || rec.ContributingVotes[0].Voter.Name != "deny-bob" {
		t.Fatalf("got child voter %+v", rec.ContributingVotes[0].Voter)
	}
}

func TestBuildRecordStubsNonMatchingFirstChildren(t *testing.T) {
	nonMatching := policy.Vote{Decision: policy.AuthorizationDecision{Decision: policy.DecisionNotApplicable}, VoterName: "p1"}
	matching := policy.Vote{Decision: policy.AuthorizationDecision{Decision: policy.DecisionPermit}, VoterName: "p2"}
	root := policy.Vote{
		Decision:  policy.AuthorizationDecision{Decision: policy.DecisionPermit},
		VoterName: "s",
		IsSet:     true,
		Children:  []policy.Vote{nonMatching, matching},
	}
	rec := BuildRecord(root)
	if len(rec.ContributingVotes) != 2 {
		t.Fatalf("expected both FIRST children to appear (one as a stub), got %d", len(rec.ContributingVotes))
	}
	if rec.ContributingVotes[0].Outcome != policy.DecisionNotApplicable {
		t.Fatalf("expected non-matching stub outcome NOT_APPLICABLE, got %v", rec.ContributingVotes[0].Outcome)
	}
}

func TestMultiSinkFansOutToEverySink(t *testing.T) {
	var a, b []policy.Vote
	sinkA := recordingSink(func(v policy.Vote) { a = append(a, v) })
	sinkB := recordingSink(func(v policy.Vote) { b = append(b, v) })
	m := MultiSink{sinkA, sinkB}
	vote := policy.Vote{Decision: policy.AuthorizationDecision{Decision: policy.DecisionPermit}}
	m.Record(vote)
	if len(a) != 1 || len(b) != 1 {
		t.Fatalf("expected both sinks to receive the vote, got a=%d b=%d", len(a), len(b))
	}
}

type recordingSink func(policy.Vote)

func (r recordingSink) Record(v policy.Vote) { r(v) }

func TestFileSinkWritesOneJSONLinePerRecord(t *testing.T) {
	dir := t.TempDir()
	sink, err := NewFileSink(FileSinkConfig{Dir: dir}, newDiscardLogger())
	if err != nil {
		t.Fatalf("NewFileSink: %v", err)
	}
	sink.Record(policy.Vote{
		Decision:  policy.AuthorizationDecision{Decision: policy.DecisionPermit, Resource: value.Undefined},
		VoterName: "p",
	})
	if err := sink.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected exactly one trace file, got %d", len(entries))
	}
	data, err := os.ReadFile(dir + "/" + entries[0].Name())
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if len(data) == 0 {
		t.Fatal("expected non-empty trace file")
	}
}
