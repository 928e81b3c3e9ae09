package policy

import (
	"context"

	"github.com/heutelbeck/sapl-go/internal/adapter/outbound/reactive"
	"github.com/heutelbeck/sapl-go/internal/compiler/expr"
	domainpolicy "github.com/heutelbeck/sapl-go/internal/domain/policy"
	"github.com/heutelbeck/sapl-go/internal/domain/value"
)

// subscribeStream is the Stream-stratum evaluation path: it fans in the
// body's combined subscription plus every obligation/advice/transform
// subscription and recomputes one Vote whenever any of them re-emits,
// once all have emitted at least once. Obligations/advice/transform are
// total and side-effect-free, so evaluating them unconditionally (even
// when the body is not applicable) and discarding the result is simpler
// than conditionally re-subscribing them, and costs nothing observable.
func (c *compiledPolicy) subscribeStream(ctx context.Context, ec *domainpolicy.EvaluationContext) *reactive.Flux[domainpolicy.Vote] {
	out := reactive.New[domainpolicy.Vote](nil)

	bodySub := c.cb.Subscribe(ctx, ec.Eval)
	obligationSubs := subscribeAll(ctx, ec.Eval, c.obligations)
	adviceSubs := subscribeAll(ctx, ec.Eval, c.advice)
	var transformSub *reactive.Subscription[expr.TracedValue]
	if c.transform != nil {
		transformSub = c.transform.Subscribe(ctx, ec.Eval)
	}

	go func() {
		defer out.Close()
		defer bodySub.Cancel()
		defer func() {
			for _, s := range obligationSubs {
				s.Cancel()
			}
			for _, s := range adviceSubs {
				s.Cancel()
			}
			if transformSub != nil {
				transformSub.Cancel()
			}
		}()

		numSlots := 1 + len(obligationSubs) + len(adviceSubs)
		if transformSub != nil {
			numSlots++
		}

		type update struct {
			idx int
			tv  expr.TracedValue
		}
		updates := make(chan update, numSlots)
		forward := func(idx int, sub *reactive.Subscription[expr.TracedValue]) {
			for {
				select {
				case tv, ok := <-sub.C():
					if !ok {
						return
					}
					select {
					case updates <- update{idx, tv}:
					case <-ctx.Done():
						return
					}
				case <-ctx.Done():
					return
				}
			}
		}
		go forward(0, bodySub)
		for i, s := range obligationSubs {
			go forward(1+i, s)
		}
		obligationsOffset := 1 + len(obligationSubs)
		for i, s := range adviceSubs {
			go forward(obligationsOffset+i, s)
		}
		var transformIdx = -1
		if transformSub != nil {
			transformIdx = obligationsOffset + len(adviceSubs)
			go forward(transformIdx, transformSub)
		}

		latest := make([]value.Value, numSlots)
		attrs := make([][]expr.AttributeRecord, numSlots)
		have := make([]bool, numSlots)
		haveAll := false

		for {
			select {
			case <-ctx.Done():
				return
			case u := <-updates:
				latest[u.idx] = u.tv.Value
				attrs[u.idx] = u.tv.Attributes
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
				if !haveAll {
					continue
				}

				bodyResult := latest[0]
				obligationVals := append([]value.Value(nil), latest[1:obligationsOffset]...)
				adviceVals := append([]value.Value(nil), latest[obligationsOffset:obligationsOffset+len(adviceSubs)]...)
				transformVal := value.Undefined
				if transformIdx >= 0 {
					transformVal = latest[transformIdx]
				}

				var allAttrs []expr.AttributeRecord
				for _, a := range attrs {
					allAttrs = append(allAttrs, a...)
				}

				vote := c.compose(bodyResult, obligationVals, adviceVals, transformVal, allAttrs)
				out.Emit(vote)
			}
		}
	}()

	return out
}

func subscribeAll(ctx context.Context, ec *expr.EvalCtx, list []*expr.Compiled) []*reactive.Subscription[expr.TracedValue] {
	subs := make([]*reactive.Subscription[expr.TracedValue], len(list))
	for i, c := range list {
		subs[i] = c.Subscribe(ctx, ec)
	}
	return subs
}
