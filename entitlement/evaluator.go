package entitlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/toolstack/toolstack/catalog"
	"github.com/toolstack/toolstack/usage"
)

const (
	reasonToolNotFound     = "tool not found"
	reasonFreeTierExceeded = "free tier usage limit reached"
)

// ActivePlanSource resolves the plan governing a user at a point in
// time. Implemented by the subscription store: a subscription governs
// while status is active and its end date, if set, is in the future.
type ActivePlanSource interface {
	// ActivePlanID returns (planID, true, nil) when the user has a
	// governing subscription, (_, false, nil) when they are on the free
	// tier.
	ActivePlanID(ctx context.Context, userID uuid.UUID, now time.Time) (uuid.UUID, bool, error)
}

// Evaluator computes access decisions from the plan catalog, the user's
// governing subscription, and this month's ledger counts. It holds no
// mutable state and is safe for concurrent use.
type Evaluator struct {
	tools   catalog.ToolReader
	plans   catalog.PlanReader
	grants  catalog.GrantReader
	subs    ActivePlanSource
	counter usage.Counter
}

// NewEvaluator creates an Evaluator. All dependencies are required;
// passing nil panics to fail fast during initialization.
func NewEvaluator(tools catalog.ToolReader, plans catalog.PlanReader, grants catalog.GrantReader, subs ActivePlanSource, counter usage.Counter) *Evaluator {
	if tools == nil || plans == nil || grants == nil {
		panic("entitlement: catalog readers are required")
	}
	if subs == nil {
		panic("entitlement: active plan source is required")
	}
	if counter == nil {
		panic("entitlement: usage counter is required")
	}
	return &Evaluator{tools: tools, plans: plans, grants: grants, subs: subs, counter: counter}
}

// Evaluate decides whether userID may invoke toolID at the given time.
// Denials are expressed in the decision, not as errors; an error means
// a dependency failed and nothing can be said about access.
func (e *Evaluator) Evaluate(ctx context.Context, userID, toolID uuid.UUID, now time.Time) (Entitlement, error) {
	tool, err := e.tools.GetTool(ctx, toolID)
	if err != nil {
		if errors.Is(err, catalog.ErrToolNotFound) {
			return deny(reasonToolNotFound), nil
		}
		return Entitlement{}, err
	}
	if !tool.IsActive {
		return deny(reasonToolNotFound), nil
	}

	// Non-premium tools are never gated.
	if !tool.IsPremium {
		return Entitlement{
			Decision: AccessDecision{Allowed: true, Remaining: UnlimitedUses},
			Tier:     TierUngated,
			Limit:    catalog.Unlimited,
		}, nil
	}

	planID, subscribed, err := e.subs.ActivePlanID(ctx, userID, now)
	if err != nil {
		return Entitlement{}, err
	}

	if !subscribed {
		return e.quotaDecision(ctx, userID, toolID, now, Entitlement{
			Tier:  TierFree,
			Limit: tool.FreeUsageLimit,
		}, reasonFreeTierExceeded)
	}

	plan, err := e.plans.GetPlan(ctx, planID)
	if err != nil {
		return Entitlement{}, err
	}

	grant, err := e.grants.GetGrant(ctx, planID, toolID)
	if err != nil {
		if errors.Is(err, catalog.ErrGrantNotFound) {
			ent := deny(fmt.Sprintf("tool not included in plan %s", plan.Name))
			ent.Tier = TierPlan
			ent.PlanID = planID
			return ent, nil
		}
		return Entitlement{}, err
	}

	if grant.UsageLimit == catalog.Unlimited {
		return Entitlement{
			Decision: AccessDecision{Allowed: true, Remaining: UnlimitedUses},
			Tier:     TierPlan,
			Limit:    catalog.Unlimited,
			PlanID:   planID,
		}, nil
	}

	return e.quotaDecision(ctx, userID, toolID, now, Entitlement{
		Tier:   TierPlan,
		Limit:  grant.UsageLimit,
		PlanID: planID,
	}, fmt.Sprintf("usage limit reached in plan %s", plan.Name))
}

// quotaDecision counts this calendar month's ledger records and applies
// the governing limit. The window deliberately tracks the calendar
// month, not the subscription's billing cycle, so a mid-month upgrade
// inherits uses already consumed this month.
func (e *Evaluator) quotaDecision(ctx context.Context, userID, toolID uuid.UUID, now time.Time, ent Entitlement, exhaustedReason string) (Entitlement, error) {
	count, err := e.counter.CountSince(ctx, userID, toolID, usage.MonthStart(now))
	if err != nil {
		return Entitlement{}, errors.Join(usage.ErrFailedToCountUsage, err)
	}

	ent.Used = count

	// The signed remainder drives the verdict; the reported value is
	// floored at zero for display.
	remaining := ent.Limit - count
	if remaining > 0 {
		ent.Decision = AccessDecision{Allowed: true, Remaining: RemainingUses(remaining)}
		return ent, nil
	}

	ent.Decision = AccessDecision{Allowed: false, Reason: exhaustedReason, Remaining: 0}
	return ent, nil
}

func deny(reason string) Entitlement {
	return Entitlement{
		Decision: AccessDecision{Allowed: false, Reason: reason, Remaining: 0},
	}
}
