// Package admin exposes catalog management and subscription oversight.
// The routes are expected to be mounted behind an operator-only guard.
package admin

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/toolstack/toolstack/catalog"
	"github.com/toolstack/toolstack/handler"
	"github.com/toolstack/toolstack/pkg/binder"
	"github.com/toolstack/toolstack/subscription"
)

type Service struct {
	repo         catalog.Repository
	subs         *subscription.Service
	log          *slog.Logger
	errorHandler handler.ErrorHandler[handler.Context]
}

// NewService creates the admin HTTP service. Panics if any dependency is nil.
func NewService(
	repo catalog.Repository,
	subs *subscription.Service,
	log *slog.Logger,
	errorHandler handler.ErrorHandler[handler.Context],
) *Service {
	if repo == nil {
		panic("admin: catalog repository is required")
	}
	if subs == nil {
		panic("admin: subscription service is required")
	}
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		repo:         repo,
		subs:         subs,
		log:          log,
		errorHandler: errorHandler,
	}
}

func (s *Service) Handle() http.Handler {
	r := chi.NewRouter()

	r.Post("/plans", handler.Wrap(s.createPlan,
		handler.WithBinders[handler.Context, planRequest](binder.JSON()),
		handler.WithErrorHandler[handler.Context, planRequest](s.errorHandler),
	))
	r.Put("/plans/{plan_id}", handler.Wrap(s.updatePlan,
		handler.WithBinders[handler.Context, planRequest](binder.Path(), binder.JSON()),
		handler.WithErrorHandler[handler.Context, planRequest](s.errorHandler),
	))
	r.Delete("/plans/{plan_id}", handler.Wrap(s.retirePlan,
		handler.WithBinders[handler.Context, idRequest](binder.Path()),
		handler.WithErrorHandler[handler.Context, idRequest](s.errorHandler),
	))
	r.Post("/tools", handler.Wrap(s.createTool,
		handler.WithBinders[handler.Context, toolRequest](binder.JSON()),
		handler.WithErrorHandler[handler.Context, toolRequest](s.errorHandler),
	))
	r.Put("/tools/{tool_id}", handler.Wrap(s.updateTool,
		handler.WithBinders[handler.Context, toolRequest](binder.Path(), binder.JSON()),
		handler.WithErrorHandler[handler.Context, toolRequest](s.errorHandler),
	))
	r.Delete("/tools/{tool_id}", handler.Wrap(s.retireTool,
		handler.WithBinders[handler.Context, idRequest](binder.Path()),
		handler.WithErrorHandler[handler.Context, idRequest](s.errorHandler),
	))
	r.Put("/plans/{plan_id}/tools/{tool_id}", handler.Wrap(s.setGrant,
		handler.WithBinders[handler.Context, grantRequest](binder.Path(), binder.JSON()),
		handler.WithErrorHandler[handler.Context, grantRequest](s.errorHandler),
	))
	r.Delete("/plans/{plan_id}/tools/{tool_id}", handler.Wrap(s.removeGrant,
		handler.WithBinders[handler.Context, grantRequest](binder.Path()),
		handler.WithErrorHandler[handler.Context, grantRequest](s.errorHandler),
	))
	r.Get("/subscriptions", handler.Wrap(s.listSubscriptions,
		handler.WithBinders[handler.Context, listSubscriptionsRequest](binder.Query()),
		handler.WithErrorHandler[handler.Context, listSubscriptionsRequest](s.errorHandler),
	))

	return r
}

type idRequest struct {
	PlanID string `path:"plan_id"`
	ToolID string `path:"tool_id"`
}

type planRequest struct {
	PlanID                 string        `path:"plan_id" json:"-"`
	Name                   string        `json:"name"`
	Description            string        `json:"description"`
	PriceMonthly           catalog.Money `json:"price_monthly"`
	PriceYearly            catalog.Money `json:"price_yearly"`
	ProviderPriceIDMonthly string        `json:"provider_price_id_monthly"`
	ProviderPriceIDYearly  string        `json:"provider_price_id_yearly"`
	Features               []string      `json:"features"`
	ToolLimit              int64         `json:"tool_limit"`
}

type toolRequest struct {
	ToolID         string `path:"tool_id" json:"-"`
	Name           string `json:"name"`
	Description    string `json:"description"`
	Icon           string `json:"icon"`
	IsPremium      bool   `json:"is_premium"`
	FreeUsageLimit int64  `json:"free_usage_limit"`
}

type grantRequest struct {
	PlanID     string `path:"plan_id" json:"-"`
	ToolID     string `path:"tool_id" json:"-"`
	UsageLimit int64  `json:"usage_limit"`
}

type listSubscriptionsRequest struct {
	Status string `query:"status"`
	Limit  int    `query:"limit"`
	Offset int    `query:"offset"`
}

func (r planRequest) validate() handler.ValidationError {
	vErr := handler.NewValidationError()
	if r.Name == "" {
		vErr.Add("name", "name is required")
	}
	if r.ToolLimit < catalog.Unlimited {
		vErr.Add("tool_limit", "must be -1 (unlimited) or non-negative")
	}
	return vErr
}

func (r toolRequest) validate() handler.ValidationError {
	vErr := handler.NewValidationError()
	if r.Name == "" {
		vErr.Add("name", "name is required")
	}
	if r.FreeUsageLimit < 0 {
		vErr.Add("free_usage_limit", "must be non-negative")
	}
	return vErr
}

func (s *Service) createPlan(ctx handler.Context, req planRequest) handler.Response {
	if vErr := req.validate(); !vErr.IsEmpty() {
		return handler.JSONError(vErr)
	}

	plan, err := s.repo.CreatePlan(ctx, catalog.Plan{
		Name:                   req.Name,
		Description:            req.Description,
		PriceMonthly:           req.PriceMonthly,
		PriceYearly:            req.PriceYearly,
		ProviderPriceIDMonthly: req.ProviderPriceIDMonthly,
		ProviderPriceIDYearly:  req.ProviderPriceIDYearly,
		Features:               req.Features,
		ToolLimit:              req.ToolLimit,
		IsActive:               true,
	})
	if err != nil {
		if errors.Is(err, catalog.ErrPlanAlreadyExists) {
			return handler.JSONError(handler.ErrConflict)
		}
		return handler.JSONError(err)
	}
	return handler.JSON(plan, handler.WithJSONStatus(http.StatusCreated))
}

func (s *Service) updatePlan(ctx handler.Context, req planRequest) handler.Response {
	planID, err := uuid.Parse(req.PlanID)
	if err != nil {
		return handler.JSONError(handler.ErrBadRequest)
	}
	if vErr := req.validate(); !vErr.IsEmpty() {
		return handler.JSONError(vErr)
	}

	existing, err := s.repo.GetPlan(ctx, planID)
	if err != nil {
		if errors.Is(err, catalog.ErrPlanNotFound) {
			return handler.JSONError(handler.ErrNotFound)
		}
		return handler.JSONError(err)
	}

	existing.Name = req.Name
	existing.Description = req.Description
	existing.PriceMonthly = req.PriceMonthly
	existing.PriceYearly = req.PriceYearly
	existing.ProviderPriceIDMonthly = req.ProviderPriceIDMonthly
	existing.ProviderPriceIDYearly = req.ProviderPriceIDYearly
	existing.Features = req.Features
	existing.ToolLimit = req.ToolLimit

	plan, err := s.repo.UpdatePlan(ctx, existing)
	if err != nil {
		return handler.JSONError(err)
	}
	return handler.JSON(plan)
}

func (s *Service) retirePlan(ctx handler.Context, req idRequest) handler.Response {
	planID, err := uuid.Parse(req.PlanID)
	if err != nil {
		return handler.JSONError(handler.ErrBadRequest)
	}
	if err := s.repo.RetirePlan(ctx, planID); err != nil {
		if errors.Is(err, catalog.ErrPlanNotFound) {
			return handler.JSONError(handler.ErrNotFound)
		}
		return handler.JSONError(err)
	}
	return handler.Empty()
}

func (s *Service) createTool(ctx handler.Context, req toolRequest) handler.Response {
	if vErr := req.validate(); !vErr.IsEmpty() {
		return handler.JSONError(vErr)
	}

	tool, err := s.repo.CreateTool(ctx, catalog.Tool{
		Name:           req.Name,
		Description:    req.Description,
		Icon:           req.Icon,
		IsPremium:      req.IsPremium,
		FreeUsageLimit: req.FreeUsageLimit,
		IsActive:       true,
	})
	if err != nil {
		if errors.Is(err, catalog.ErrToolAlreadyExists) {
			return handler.JSONError(handler.ErrConflict)
		}
		return handler.JSONError(err)
	}
	return handler.JSON(tool, handler.WithJSONStatus(http.StatusCreated))
}

func (s *Service) updateTool(ctx handler.Context, req toolRequest) handler.Response {
	toolID, err := uuid.Parse(req.ToolID)
	if err != nil {
		return handler.JSONError(handler.ErrBadRequest)
	}
	if vErr := req.validate(); !vErr.IsEmpty() {
		return handler.JSONError(vErr)
	}

	existing, err := s.repo.GetTool(ctx, toolID)
	if err != nil {
		if errors.Is(err, catalog.ErrToolNotFound) {
			return handler.JSONError(handler.ErrNotFound)
		}
		return handler.JSONError(err)
	}

	existing.Name = req.Name
	existing.Description = req.Description
	existing.Icon = req.Icon
	existing.IsPremium = req.IsPremium
	existing.FreeUsageLimit = req.FreeUsageLimit

	tool, err := s.repo.UpdateTool(ctx, existing)
	if err != nil {
		return handler.JSONError(err)
	}
	return handler.JSON(tool)
}

func (s *Service) retireTool(ctx handler.Context, req idRequest) handler.Response {
	toolID, err := uuid.Parse(req.ToolID)
	if err != nil {
		return handler.JSONError(handler.ErrBadRequest)
	}
	if err := s.repo.RetireTool(ctx, toolID); err != nil {
		if errors.Is(err, catalog.ErrToolNotFound) {
			return handler.JSONError(handler.ErrNotFound)
		}
		return handler.JSONError(err)
	}
	return handler.Empty()
}

func (s *Service) setGrant(ctx handler.Context, req grantRequest) handler.Response {
	planID, err := uuid.Parse(req.PlanID)
	if err != nil {
		return handler.JSONError(handler.ErrBadRequest)
	}
	toolID, err := uuid.Parse(req.ToolID)
	if err != nil {
		return handler.JSONError(handler.ErrBadRequest)
	}
	if req.UsageLimit < catalog.Unlimited {
		vErr := handler.NewValidationError()
		vErr.Add("usage_limit", "must be -1 (unlimited) or non-negative")
		return handler.JSONError(vErr)
	}

	if err := s.repo.SetGrant(ctx, catalog.ToolGrant{
		PlanID:     planID,
		ToolID:     toolID,
		UsageLimit: req.UsageLimit,
	}); err != nil {
		switch {
		case errors.Is(err, catalog.ErrPlanNotFound), errors.Is(err, catalog.ErrToolNotFound):
			return handler.JSONError(handler.ErrNotFound)
		default:
			return handler.JSONError(err)
		}
	}
	return handler.Empty()
}

func (s *Service) removeGrant(ctx handler.Context, req grantRequest) handler.Response {
	planID, err := uuid.Parse(req.PlanID)
	if err != nil {
		return handler.JSONError(handler.ErrBadRequest)
	}
	toolID, err := uuid.Parse(req.ToolID)
	if err != nil {
		return handler.JSONError(handler.ErrBadRequest)
	}

	if err := s.repo.RemoveGrant(ctx, planID, toolID); err != nil {
		if errors.Is(err, catalog.ErrGrantNotFound) {
			return handler.JSONError(handler.ErrNotFound)
		}
		return handler.JSONError(err)
	}
	return handler.Empty()
}

func (s *Service) listSubscriptions(ctx handler.Context, req listSubscriptionsRequest) handler.Response {
	limit := req.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	subs, err := s.subs.ListSubscriptions(ctx, subscription.Status(req.Status), limit, req.Offset)
	if err != nil {
		return handler.JSONError(err)
	}
	return handler.JSON(subs, handler.WithJSONMeta(map[string]any{
		"limit":  limit,
		"offset": req.Offset,
	}))
}
