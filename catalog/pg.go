package catalog

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/toolstack/toolstack/pkg/pg"
)

// pgRepository is the PostgreSQL-backed Repository.
type pgRepository struct {
	pool *pgxpool.Pool
}

// NewPgRepository returns a Repository backed by the given connection pool.
func NewPgRepository(pool *pgxpool.Pool) Repository {
	return &pgRepository{pool: pool}
}

const planColumns = `id, name, description,
	price_monthly_amount, price_monthly_currency,
	price_yearly_amount, price_yearly_currency,
	provider_price_id_monthly, provider_price_id_yearly,
	features, tool_limit, is_active, created_at, updated_at`

func scanPlan(row pgx.Row) (Plan, error) {
	var plan Plan
	err := row.Scan(
		&plan.ID, &plan.Name, &plan.Description,
		&plan.PriceMonthly.Amount, &plan.PriceMonthly.Currency,
		&plan.PriceYearly.Amount, &plan.PriceYearly.Currency,
		&plan.ProviderPriceIDMonthly, &plan.ProviderPriceIDYearly,
		&plan.Features, &plan.ToolLimit, &plan.IsActive,
		&plan.CreatedAt, &plan.UpdatedAt,
	)
	if err != nil {
		if pg.IsNotFoundError(err) {
			return Plan{}, ErrPlanNotFound
		}
		return Plan{}, err
	}
	return plan, nil
}

func (r *pgRepository) GetPlan(ctx context.Context, planID uuid.UUID) (Plan, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+planColumns+` FROM subscription_plans WHERE id = $1`, planID)
	return scanPlan(row)
}

func (r *pgRepository) ListActivePlans(ctx context.Context) ([]Plan, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+planColumns+` FROM subscription_plans WHERE is_active ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var plans []Plan
	for rows.Next() {
		plan, err := scanPlan(rows)
		if err != nil {
			return nil, err
		}
		plans = append(plans, plan)
	}
	return plans, rows.Err()
}

func (r *pgRepository) FindPlanByPriceID(ctx context.Context, priceID string, interval BillingInterval) (Plan, error) {
	if priceID == "" {
		return Plan{}, ErrPlanNotFound
	}

	column := "provider_price_id_monthly"
	if interval == IntervalYearly {
		column = "provider_price_id_yearly"
	}
	row := r.pool.QueryRow(ctx,
		`SELECT `+planColumns+` FROM subscription_plans WHERE `+column+` = $1`, priceID)
	return scanPlan(row)
}

const toolColumns = `id, name, description, icon, is_premium, free_usage_limit, is_active, created_at, updated_at`

func scanTool(row pgx.Row) (Tool, error) {
	var tool Tool
	err := row.Scan(
		&tool.ID, &tool.Name, &tool.Description, &tool.Icon,
		&tool.IsPremium, &tool.FreeUsageLimit, &tool.IsActive,
		&tool.CreatedAt, &tool.UpdatedAt,
	)
	if err != nil {
		if pg.IsNotFoundError(err) {
			return Tool{}, ErrToolNotFound
		}
		return Tool{}, err
	}
	return tool, nil
}

func (r *pgRepository) GetTool(ctx context.Context, toolID uuid.UUID) (Tool, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+toolColumns+` FROM tools WHERE id = $1`, toolID)
	return scanTool(row)
}

func (r *pgRepository) ListActiveTools(ctx context.Context) ([]Tool, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+toolColumns+` FROM tools WHERE is_active ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tools []Tool
	for rows.Next() {
		tool, err := scanTool(rows)
		if err != nil {
			return nil, err
		}
		tools = append(tools, tool)
	}
	return tools, rows.Err()
}

func (r *pgRepository) GetGrant(ctx context.Context, planID, toolID uuid.UUID) (ToolGrant, error) {
	var grant ToolGrant
	err := r.pool.QueryRow(ctx,
		`SELECT plan_id, tool_id, usage_limit FROM plan_tools WHERE plan_id = $1 AND tool_id = $2`,
		planID, toolID,
	).Scan(&grant.PlanID, &grant.ToolID, &grant.UsageLimit)
	if err != nil {
		if pg.IsNotFoundError(err) {
			return ToolGrant{}, ErrGrantNotFound
		}
		return ToolGrant{}, err
	}
	return grant, nil
}

func (r *pgRepository) ListGrants(ctx context.Context, planID uuid.UUID) ([]ToolGrant, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT plan_id, tool_id, usage_limit FROM plan_tools WHERE plan_id = $1`, planID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var grants []ToolGrant
	for rows.Next() {
		var grant ToolGrant
		if err := rows.Scan(&grant.PlanID, &grant.ToolID, &grant.UsageLimit); err != nil {
			return nil, err
		}
		grants = append(grants, grant)
	}
	return grants, rows.Err()
}

func (r *pgRepository) CreatePlan(ctx context.Context, plan Plan) (Plan, error) {
	if plan.ID == uuid.Nil {
		plan.ID = uuid.New()
	}
	now := time.Now().UTC()
	plan.CreatedAt = now
	plan.UpdatedAt = now

	_, err := r.pool.Exec(ctx,
		`INSERT INTO subscription_plans (
			id, name, description,
			price_monthly_amount, price_monthly_currency,
			price_yearly_amount, price_yearly_currency,
			provider_price_id_monthly, provider_price_id_yearly,
			features, tool_limit, is_active, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		plan.ID, plan.Name, plan.Description,
		plan.PriceMonthly.Amount, plan.PriceMonthly.Currency,
		plan.PriceYearly.Amount, plan.PriceYearly.Currency,
		plan.ProviderPriceIDMonthly, plan.ProviderPriceIDYearly,
		plan.Features, plan.ToolLimit, plan.IsActive, plan.CreatedAt, plan.UpdatedAt,
	)
	if err != nil {
		if pg.IsDuplicateKeyError(err) {
			return Plan{}, ErrPlanAlreadyExists
		}
		return Plan{}, err
	}
	return plan, nil
}

func (r *pgRepository) UpdatePlan(ctx context.Context, plan Plan) (Plan, error) {
	plan.UpdatedAt = time.Now().UTC()
	tag, err := r.pool.Exec(ctx,
		`UPDATE subscription_plans SET
			name = $2, description = $3,
			price_monthly_amount = $4, price_monthly_currency = $5,
			price_yearly_amount = $6, price_yearly_currency = $7,
			provider_price_id_monthly = $8, provider_price_id_yearly = $9,
			features = $10, tool_limit = $11, is_active = $12, updated_at = $13
		WHERE id = $1`,
		plan.ID, plan.Name, plan.Description,
		plan.PriceMonthly.Amount, plan.PriceMonthly.Currency,
		plan.PriceYearly.Amount, plan.PriceYearly.Currency,
		plan.ProviderPriceIDMonthly, plan.ProviderPriceIDYearly,
		plan.Features, plan.ToolLimit, plan.IsActive, plan.UpdatedAt,
	)
	if err != nil {
		return Plan{}, err
	}
	if tag.RowsAffected() == 0 {
		return Plan{}, ErrPlanNotFound
	}
	return plan, nil
}

func (r *pgRepository) RetirePlan(ctx context.Context, planID uuid.UUID) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE subscription_plans SET is_active = false, updated_at = now() WHERE id = $1`, planID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrPlanNotFound
	}
	return nil
}

func (r *pgRepository) CreateTool(ctx context.Context, tool Tool) (Tool, error) {
	if tool.ID == uuid.Nil {
		tool.ID = uuid.New()
	}
	now := time.Now().UTC()
	tool.CreatedAt = now
	tool.UpdatedAt = now

	_, err := r.pool.Exec(ctx,
		`INSERT INTO tools (id, name, description, icon, is_premium, free_usage_limit, is_active, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		tool.ID, tool.Name, tool.Description, tool.Icon,
		tool.IsPremium, tool.FreeUsageLimit, tool.IsActive, tool.CreatedAt, tool.UpdatedAt,
	)
	if err != nil {
		if pg.IsDuplicateKeyError(err) {
			return Tool{}, ErrToolAlreadyExists
		}
		return Tool{}, err
	}
	return tool, nil
}

func (r *pgRepository) UpdateTool(ctx context.Context, tool Tool) (Tool, error) {
	tool.UpdatedAt = time.Now().UTC()
	tag, err := r.pool.Exec(ctx,
		`UPDATE tools SET name = $2, description = $3, icon = $4, is_premium = $5,
			free_usage_limit = $6, is_active = $7, updated_at = $8
		WHERE id = $1`,
		tool.ID, tool.Name, tool.Description, tool.Icon,
		tool.IsPremium, tool.FreeUsageLimit, tool.IsActive, tool.UpdatedAt,
	)
	if err != nil {
		return Tool{}, err
	}
	if tag.RowsAffected() == 0 {
		return Tool{}, ErrToolNotFound
	}
	return tool, nil
}

func (r *pgRepository) RetireTool(ctx context.Context, toolID uuid.UUID) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE tools SET is_active = false, updated_at = now() WHERE id = $1`, toolID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrToolNotFound
	}
	return nil
}

func (r *pgRepository) SetGrant(ctx context.Context, grant ToolGrant) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO plan_tools (plan_id, tool_id, usage_limit)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (plan_id, tool_id) DO UPDATE SET usage_limit = EXCLUDED.usage_limit`,
		grant.PlanID, grant.ToolID, grant.UsageLimit,
	)
	if err != nil {
		if pg.IsForeignKeyViolationError(err) {
			return ErrPlanNotFound
		}
		return err
	}
	return nil
}

func (r *pgRepository) RemoveGrant(ctx context.Context, planID, toolID uuid.UUID) error {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM plan_tools WHERE plan_id = $1 AND tool_id = $2`, planID, toolID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrGrantNotFound
	}
	return nil
}
