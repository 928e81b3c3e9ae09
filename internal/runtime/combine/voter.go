package combine

import (
	"context"

	"github.com/heutelbeck/sapl-go/internal/adapter/outbound/reactive"
	"github.com/heutelbeck/sapl-go/internal/domain/policy"
)

// Compile composes an ordered list of child Voters into one combined
// Voter under algorithm, at the minimal stratum the children require —
// the same Static/Pure/Stream lifting C6 does for one policy's body and
// constraints, one level up over a vector of child votes instead of a
// vector of sub-expression values. Used by the policy-set compiler (C8)
// for a nested set and by the PDP orchestrator (C9) for the
// configuration's root algorithm.
func Compile(name string, isSet bool, algorithm policy.CombiningAlgorithm, documentID string, children []*policy.Voter) *policy.Voter {
	worst := policy.StaticVoter
	for _, c := range children {
		if c.Kind() > worst {
			worst = c.Kind()
		}
	}

	identify := func(v policy.Vote) policy.Vote {
		v.VoterName = name
		v.DocumentID = documentID
		v.IsSet = isSet
		alg := algorithm
		v.Algorithm = &alg
		return v
	}

	switch worst {
	case policy.StaticVoter:
		votes := make([]policy.Vote, len(children))
		for i, c := range children {
			votes[i] = c.Eval(nil)
		}
		return policy.NewStaticVoter(identify(Votes(algorithm, votes)))

	case policy.PureVoterKind:
		return policy.NewPureVoter(func(ec *policy.EvaluationContext) policy.Vote {
			votes := make([]policy.Vote, len(children))
			for i, c := range children {
				votes[i] = c.Eval(ec)
			}
			return identify(Votes(algorithm, votes))
		})

	default:
		return policy.NewStreamVoter(func(ctx context.Context, ec *policy.EvaluationContext) *reactive.Flux[policy.Vote] {
			return subscribeStream(ctx, ec, algorithm, children, identify)
		})
	}
}

// subscribeStream fans in every child's vote subscription and
// recomputes the combined vote whenever any child re-emits, once every
// child has emitted at least once — the same coalesce-simultaneous-
// emissions discipline as C4's combineLatest and C6's constraint fan-in,
// applied one layer up over Vote instead of Value.
func subscribeStream(ctx context.Context, ec *policy.EvaluationContext, algorithm policy.CombiningAlgorithm, children []*policy.Voter, identify func(policy.Vote) policy.Vote) *reactive.Flux[policy.Vote] {
	out := reactive.New[policy.Vote](nil)
	n := len(children)
	if n == 0 {
		out.Emit(identify(Votes(algorithm, nil)))
		return out
	}

	subs := make([]*reactive.Subscription[policy.Vote], n)
	for i, c := range children {
		subs[i] = c.Subscribe(ctx, ec)
	}

	type update struct {
		idx int
		v   policy.Vote
	}
	updates := make(chan update, n)
	for i := range subs {
		go func(i int) {
			sub := subs[i]
			for {
				select {
				case v, ok := <-sub.C():
					if !ok {
						return
					}
					select {
					case updates <- update{i, v}:
					case <-ctx.Done():
						return
					}
				case <-ctx.Done():
					return
				}
			}
		}(i)
	}

	go func() {
		defer out.Close()
		defer func() {
			for _, s := range subs {
				s.Cancel()
			}
		}()
		latest := make([]policy.Vote, n)
		have := make([]bool, n)
		haveAll := false
		for {
			select {
			case <-ctx.Done():
				return
			case u := <-updates:
				latest[u.idx] = u.v
				have[u.idx] = true
				if !haveAll {
					haveAll = true
					for _, h := range have {
						if !h {
							haveAll = false
							break
						}
					}
				}
				if haveAll {
					votes := append([]policy.Vote(nil), latest...)
					out.Emit(identify(Votes(algorithm, votes)))
				}
			}
		}
	}()

	return out
}
