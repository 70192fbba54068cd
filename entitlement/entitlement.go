// Package entitlement computes, for a (user, tool, time) triple, whether
// the user may invoke the tool and how many uses remain this month.
//
// The evaluator is a read-only decision function: it never writes. On an
// allowed invocation the caller reserves a quota slot and appends the
// usage record itself.
package entitlement

import (
	"encoding/json"

	"github.com/google/uuid"
)

// UnlimitedUses is the RemainingUses value for ungated access.
const UnlimitedUses RemainingUses = -1

// RemainingUses is a monthly quota balance. The negative sentinel means
// unlimited; it serializes as the string "unlimited" to match the API
// contract, everything else as a non-negative number.
type RemainingUses int64

// IsUnlimited reports whether the balance represents ungated access.
func (r RemainingUses) IsUnlimited() bool {
	return r < 0
}

func (r RemainingUses) MarshalJSON() ([]byte, error) {
	if r.IsUnlimited() {
		return json.Marshal("unlimited")
	}
	return json.Marshal(int64(r))
}

func (r *RemainingUses) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if s == "unlimited" {
			*r = UnlimitedUses
			return nil
		}
	}
	var n int64
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*r = RemainingUses(n)
	return nil
}

// AccessDecision is the evaluator's verdict. Reason is set only on
// denial and is safe to surface to the UI verbatim.
type AccessDecision struct {
	Allowed   bool          `json:"has_access"`
	Reason    string        `json:"reason,omitempty"`
	Remaining RemainingUses `json:"remaining_uses"`
}

// Tier identifies which quota governed the decision.
type Tier string

const (
	TierUngated Tier = "ungated" // non-premium tool, never limited
	TierFree    Tier = "free"    // premium tool without a subscription
	TierPlan    Tier = "plan"    // premium tool under a plan grant
)

// Entitlement pairs a decision with the quota context it was computed
// under, for callers that need the governing limit (e.g. the reserver).
type Entitlement struct {
	Decision AccessDecision
	Tier     Tier
	Limit    int64     // governing monthly limit, negative for unlimited
	Used     int64     // records counted this month
	PlanID   uuid.UUID // set only for TierPlan
}
