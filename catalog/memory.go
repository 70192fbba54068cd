package catalog

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

type grantKey struct {
	planID uuid.UUID
	toolID uuid.UUID
}

// memoryRepository is an in-memory Repository used in tests and
// single-node development setups. All methods return deep copies so
// callers cannot mutate internal state.
type memoryRepository struct {
	mu     sync.RWMutex
	plans  map[uuid.UUID]Plan
	tools  map[uuid.UUID]Tool
	grants map[grantKey]ToolGrant
}

// NewMemoryRepository returns an empty in-memory Repository.
func NewMemoryRepository() Repository {
	return &memoryRepository{
		plans:  make(map[uuid.UUID]Plan),
		tools:  make(map[uuid.UUID]Tool),
		grants: make(map[grantKey]ToolGrant),
	}
}

func copyPlan(p Plan) Plan {
	p.Features = slices.Clone(p.Features)
	return p
}

func (r *memoryRepository) GetPlan(ctx context.Context, planID uuid.UUID) (Plan, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	plan, ok := r.plans[planID]
	if !ok {
		return Plan{}, ErrPlanNotFound
	}
	return copyPlan(plan), nil
}

func (r *memoryRepository) ListActivePlans(ctx context.Context) ([]Plan, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	plans := make([]Plan, 0, len(r.plans))
	for _, plan := range r.plans {
		if plan.IsActive {
			plans = append(plans, copyPlan(plan))
		}
	}
	slices.SortFunc(plans, func(a, b Plan) int {
		return strings.Compare(a.Name, b.Name)
	})
	return plans, nil
}

func (r *memoryRepository) FindPlanByPriceID(ctx context.Context, priceID string, interval BillingInterval) (Plan, error) {
	if priceID == "" {
		return Plan{}, ErrPlanNotFound
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, plan := range r.plans {
		if plan.PriceIDForInterval(interval) == priceID {
			return copyPlan(plan), nil
		}
	}
	return Plan{}, ErrPlanNotFound
}

func (r *memoryRepository) GetTool(ctx context.Context, toolID uuid.UUID) (Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tool, ok := r.tools[toolID]
	if !ok {
		return Tool{}, ErrToolNotFound
	}
	return tool, nil
}

func (r *memoryRepository) ListActiveTools(ctx context.Context) ([]Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tools := make([]Tool, 0, len(r.tools))
	for _, tool := range r.tools {
		if tool.IsActive {
			tools = append(tools, tool)
		}
	}
	slices.SortFunc(tools, func(a, b Tool) int {
		return strings.Compare(a.Name, b.Name)
	})
	return tools, nil
}

func (r *memoryRepository) GetGrant(ctx context.Context, planID, toolID uuid.UUID) (ToolGrant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	grant, ok := r.grants[grantKey{planID: planID, toolID: toolID}]
	if !ok {
		return ToolGrant{}, ErrGrantNotFound
	}
	return grant, nil
}

func (r *memoryRepository) ListGrants(ctx context.Context, planID uuid.UUID) ([]ToolGrant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	grants := make([]ToolGrant, 0)
	for key, grant := range r.grants {
		if key.planID == planID {
			grants = append(grants, grant)
		}
	}
	return grants, nil
}

func (r *memoryRepository) CreatePlan(ctx context.Context, plan Plan) (Plan, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if plan.ID == uuid.Nil {
		plan.ID = uuid.New()
	}
	if _, exists := r.plans[plan.ID]; exists {
		return Plan{}, ErrPlanAlreadyExists
	}

	now := time.Now().UTC()
	plan.CreatedAt = now
	plan.UpdatedAt = now
	r.plans[plan.ID] = copyPlan(plan)
	return plan, nil
}

func (r *memoryRepository) UpdatePlan(ctx context.Context, plan Plan) (Plan, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.plans[plan.ID]
	if !ok {
		return Plan{}, ErrPlanNotFound
	}

	plan.CreatedAt = existing.CreatedAt
	plan.UpdatedAt = time.Now().UTC()
	r.plans[plan.ID] = copyPlan(plan)
	return plan, nil
}

func (r *memoryRepository) RetirePlan(ctx context.Context, planID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	plan, ok := r.plans[planID]
	if !ok {
		return ErrPlanNotFound
	}

	plan.IsActive = false
	plan.UpdatedAt = time.Now().UTC()
	r.plans[planID] = plan
	return nil
}

func (r *memoryRepository) CreateTool(ctx context.Context, tool Tool) (Tool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if tool.ID == uuid.Nil {
		tool.ID = uuid.New()
	}
	if _, exists := r.tools[tool.ID]; exists {
		return Tool{}, ErrToolAlreadyExists
	}

	now := time.Now().UTC()
	tool.CreatedAt = now
	tool.UpdatedAt = now
	r.tools[tool.ID] = tool
	return tool, nil
}

func (r *memoryRepository) UpdateTool(ctx context.Context, tool Tool) (Tool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.tools[tool.ID]
	if !ok {
		return Tool{}, ErrToolNotFound
	}

	tool.CreatedAt = existing.CreatedAt
	tool.UpdatedAt = time.Now().UTC()
	r.tools[tool.ID] = tool
	return tool, nil
}

func (r *memoryRepository) RetireTool(ctx context.Context, toolID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	tool, ok := r.tools[toolID]
	if !ok {
		return ErrToolNotFound
	}

	tool.IsActive = false
	tool.UpdatedAt = time.Now().UTC()
	r.tools[toolID] = tool
	return nil
}

func (r *memoryRepository) SetGrant(ctx context.Context, grant ToolGrant) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.plans[grant.PlanID]; !ok {
		return ErrPlanNotFound
	}
	if _, ok := r.tools[grant.ToolID]; !ok {
		return ErrToolNotFound
	}

	r.grants[grantKey{planID: grant.PlanID, toolID: grant.ToolID}] = grant
	return nil
}

func (r *memoryRepository) RemoveGrant(ctx context.Context, planID, toolID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := grantKey{planID: planID, toolID: toolID}
	if _, ok := r.grants[key]; !ok {
		return ErrGrantNotFound
	}
	delete(r.grants, key)
	return nil
}
