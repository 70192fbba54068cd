package catalog

import (
	"context"

	"github.com/google/uuid"
)

// Repository is the read-through interface the entitlement evaluator and
// the billing reconciler use to resolve plans, tools, and grants. All
// mutation goes through the same interface so cached implementations can
// invalidate consistently.
type Repository interface {
	PlanReader
	ToolReader
	GrantReader

	// Administrative mutation. Plans and tools are soft-deleted only:
	// retiring a plan flips IsActive so live subscriptions keep resolving.
	CreatePlan(ctx context.Context, plan Plan) (Plan, error)
	UpdatePlan(ctx context.Context, plan Plan) (Plan, error)
	RetirePlan(ctx context.Context, planID uuid.UUID) error
	CreateTool(ctx context.Context, tool Tool) (Tool, error)
	UpdateTool(ctx context.Context, tool Tool) (Tool, error)
	RetireTool(ctx context.Context, toolID uuid.UUID) error
	SetGrant(ctx context.Context, grant ToolGrant) error
	RemoveGrant(ctx context.Context, planID, toolID uuid.UUID) error
}

// PlanReader resolves subscription plans.
type PlanReader interface {
	GetPlan(ctx context.Context, planID uuid.UUID) (Plan, error)
	ListActivePlans(ctx context.Context) ([]Plan, error)
	// FindPlanByPriceID matches a provider price ID and billing interval
	// against the catalog. Used by the billing-event reconciler to map
	// webhook payloads onto plans.
	FindPlanByPriceID(ctx context.Context, priceID string, interval BillingInterval) (Plan, error)
}

// ToolReader resolves tools.
type ToolReader interface {
	GetTool(ctx context.Context, toolID uuid.UUID) (Tool, error)
	ListActiveTools(ctx context.Context) ([]Tool, error)
}

// GrantReader resolves (plan, tool) usage grants.
type GrantReader interface {
	// GetGrant returns ErrGrantNotFound when the plan does not include the tool.
	GetGrant(ctx context.Context, planID, toolID uuid.UUID) (ToolGrant, error)
	ListGrants(ctx context.Context, planID uuid.UUID) ([]ToolGrant, error)
}
