package engine

import "fmt"

// Assessment is the gating decision for one turn and the reason behind it.
type Assessment struct {
	Verdict Verdict
	Reason  string
}

// Assess combines intent and table resolution into a verdict.
//
// Rules (applied in order):
//  1. table soft-denied by the allowlist  → DENY
//  2. table resolved and allowed          → PROCEED
//  3. intent confidence below threshold   → ASK
//  4. otherwise                           → PROCEED
func Assess(intent IntentResult, table ResolvedTable) Assessment {
	switch {
	case table.SoftDenied():
		return Assessment{
			Verdict: VerdictDeny,
			Reason:  fmt.Sprintf("table %q is not in the allowlist", table.Name),
		}
	case table.Status == ResolutionAllowed:
		return Assessment{
			Verdict: VerdictProceed,
			Reason:  fmt.Sprintf("table resolved: %s", table.Name),
		}
	case intent.ShouldAsk:
		return Assessment{
			Verdict: VerdictAsk,
			Reason:  fmt.Sprintf("low intent confidence (%d)", intent.Confidence),
		}
	default:
		return Assessment{
			Verdict: VerdictProceed,
			Reason:  fmt.Sprintf("intent: %s/%s", intent.Category, intent.Action),
		}
	}
}
