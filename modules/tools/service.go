// Package tools exposes the tool catalog and the usage ledger over
// HTTP: listing tools with per-tool access decisions, access checks,
// and the invocation lifecycle (start, progress updates, history).
package tools

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/toolstack/toolstack/catalog"
	"github.com/toolstack/toolstack/entitlement"
	"github.com/toolstack/toolstack/handler"
	"github.com/toolstack/toolstack/identity"
	"github.com/toolstack/toolstack/pkg/binder"
	"github.com/toolstack/toolstack/pkg/logger"
	"github.com/toolstack/toolstack/usage"
)

type Service struct {
	tools        catalog.ToolReader
	evaluator    *entitlement.Evaluator
	records      usage.Store
	reserver     usage.Reserver
	log          *slog.Logger
	errorHandler handler.ErrorHandler[handler.Context]
}

// NewService creates the tools HTTP service. Panics if any dependency is nil.
func NewService(
	tools catalog.ToolReader,
	evaluator *entitlement.Evaluator,
	records usage.Store,
	reserver usage.Reserver,
	log *slog.Logger,
	errorHandler handler.ErrorHandler[handler.Context],
) *Service {
	if tools == nil {
		panic("tools: tool reader is required")
	}
	if evaluator == nil {
		panic("tools: entitlement evaluator is required")
	}
	if records == nil {
		panic("tools: usage store is required")
	}
	if reserver == nil {
		panic("tools: usage reserver is required")
	}
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		tools:        tools,
		evaluator:    evaluator,
		records:      records,
		reserver:     reserver,
		log:          log,
		errorHandler: errorHandler,
	}
}

func (s *Service) Handle() http.Handler {
	r := chi.NewRouter()

	r.Get("/", handler.Wrap(s.listTools,
		handler.WithErrorHandler[handler.Context, emptyRequest](s.errorHandler),
	))
	r.Get("/usage-stats", handler.Wrap(s.usageStats,
		handler.WithErrorHandler[handler.Context, emptyRequest](s.errorHandler),
	))
	r.Get("/usage-history", handler.Wrap(s.usageHistory,
		handler.WithBinders[handler.Context, usageHistoryRequest](binder.Query()),
		handler.WithErrorHandler[handler.Context, usageHistoryRequest](s.errorHandler),
	))
	r.Get("/{tool_id}", handler.Wrap(s.getTool,
		handler.WithBinders[handler.Context, toolRequest](binder.Path()),
		handler.WithErrorHandler[handler.Context, toolRequest](s.errorHandler),
	))
	r.Get("/{tool_id}/access", handler.Wrap(s.checkAccess,
		handler.WithBinders[handler.Context, toolRequest](binder.Path()),
		handler.WithErrorHandler[handler.Context, toolRequest](s.errorHandler),
	))
	r.Post("/{tool_id}/usage", handler.Wrap(s.startUsage,
		handler.WithBinders[handler.Context, startUsageRequest](binder.Path(), binder.JSON()),
		handler.WithErrorHandler[handler.Context, startUsageRequest](s.errorHandler),
	))
	r.Put("/usage/{usage_id}", handler.Wrap(s.updateUsage,
		handler.WithBinders[handler.Context, updateUsageRequest](binder.Path(), binder.JSON()),
		handler.WithErrorHandler[handler.Context, updateUsageRequest](s.errorHandler),
	))

	return r
}

type emptyRequest struct{}

type toolRequest struct {
	ToolID string `path:"tool_id"`
}

type startUsageRequest struct {
	ToolID string         `path:"tool_id"`
	Input  map[string]any `json:"input"`
}

type updateUsageRequest struct {
	UsageID string         `path:"usage_id"`
	Status  string         `json:"status"`
	Result  map[string]any `json:"result"`
}

type usageHistoryRequest struct {
	Limit  int `query:"limit"`
	Offset int `query:"offset"`
}

type toolResponse struct {
	ID             uuid.UUID `json:"id"`
	Name           string    `json:"name"`
	Description    string    `json:"description"`
	Icon           string    `json:"icon,omitempty"`
	IsPremium      bool      `json:"is_premium"`
	FreeUsageLimit int64     `json:"free_usage_limit"`
}

type toolWithAccess struct {
	toolResponse
	Access entitlement.AccessDecision `json:"access"`
}

type recordResponse struct {
	ID          uuid.UUID      `json:"id"`
	ToolID      uuid.UUID      `json:"tool_id"`
	Status      usage.Status   `json:"status"`
	InputData   map[string]any `json:"input_data,omitempty"`
	ResultData  map[string]any `json:"result_data,omitempty"`
	StartedAt   time.Time      `json:"started_at"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
}

type toolStatResponse struct {
	ToolID uuid.UUID `json:"tool_id"`
	Count  int64     `json:"count"`
}

func newToolResponse(tool catalog.Tool) toolResponse {
	return toolResponse{
		ID:             tool.ID,
		Name:           tool.Name,
		Description:    tool.Description,
		Icon:           tool.Icon,
		IsPremium:      tool.IsPremium,
		FreeUsageLimit: tool.FreeUsageLimit,
	}
}

func newRecordResponse(rec *usage.Record) recordResponse {
	return recordResponse{
		ID:          rec.ID,
		ToolID:      rec.ToolID,
		Status:      rec.Status,
		InputData:   rec.InputData,
		ResultData:  rec.ResultData,
		StartedAt:   rec.StartedAt,
		CompletedAt: rec.CompletedAt,
	}
}

func (s *Service) listTools(ctx handler.Context, _ emptyRequest) handler.Response {
	user := identity.GetUserFromContext(ctx)
	if user == nil {
		return handler.JSONError(handler.ErrUnauthorized)
	}

	tools, err := s.tools.ListActiveTools(ctx)
	if err != nil {
		return handler.JSONError(err)
	}

	now := time.Now()
	out := make([]toolWithAccess, 0, len(tools))
	for _, tool := range tools {
		ent, err := s.evaluator.Evaluate(ctx, user.ID, tool.ID, now)
		if err != nil {
			return handler.JSONError(err)
		}
		out = append(out, toolWithAccess{
			toolResponse: newToolResponse(tool),
			Access:       ent.Decision,
		})
	}
	return handler.JSON(out)
}

func (s *Service) getTool(ctx handler.Context, req toolRequest) handler.Response {
	toolID, err := uuid.Parse(req.ToolID)
	if err != nil {
		return handler.JSONError(handler.ErrBadRequest)
	}

	tool, err := s.tools.GetTool(ctx, toolID)
	if err != nil {
		if errors.Is(err, catalog.ErrToolNotFound) {
			return handler.JSONError(handler.ErrNotFound)
		}
		return handler.JSONError(err)
	}
	if !tool.IsActive {
		return handler.JSONError(handler.ErrNotFound)
	}
	return handler.JSON(newToolResponse(tool))
}

func (s *Service) checkAccess(ctx handler.Context, req toolRequest) handler.Response {
	user := identity.GetUserFromContext(ctx)
	if user == nil {
		return handler.JSONError(handler.ErrUnauthorized)
	}
	toolID, err := uuid.Parse(req.ToolID)
	if err != nil {
		return handler.JSONError(handler.ErrBadRequest)
	}

	ent, err := s.evaluator.Evaluate(ctx, user.ID, toolID, time.Now())
	if err != nil {
		return handler.JSONError(err)
	}
	return handler.JSON(ent.Decision)
}

// startUsage gates the invocation behind the evaluator's verdict and an
// atomic slot reservation, then appends the ledger record. The
// reservation is rolled back if the append fails so the slot is not
// leaked.
func (s *Service) startUsage(ctx handler.Context, req startUsageRequest) handler.Response {
	user := identity.GetUserFromContext(ctx)
	if user == nil {
		return handler.JSONError(handler.ErrUnauthorized)
	}
	toolID, err := uuid.Parse(req.ToolID)
	if err != nil {
		return handler.JSONError(handler.ErrBadRequest)
	}

	now := time.Now()
	ent, err := s.evaluator.Evaluate(ctx, user.ID, toolID, now)
	if err != nil {
		return handler.JSONError(err)
	}
	if !ent.Decision.Allowed {
		return deniedResponse(ent.Decision.Reason)
	}

	if err := s.reserver.Reserve(ctx, user.ID, toolID, ent.Limit, now); err != nil {
		if errors.Is(err, usage.ErrQuotaExhausted) {
			// Lost the race against a concurrent invocation for the last slot.
			return deniedResponse("usage limit reached")
		}
		return handler.JSONError(err)
	}

	rec, err := s.records.Append(ctx, user.ID, toolID, req.Input)
	if err != nil {
		if releaseErr := s.reserver.Release(ctx, user.ID, toolID, now); releaseErr != nil {
			s.log.ErrorContext(ctx, "failed to release reserved usage slot",
				logger.UserID(user.ID),
				logger.Error(releaseErr))
		}
		return handler.JSONError(err)
	}

	return handler.JSON(newRecordResponse(rec), handler.WithJSONStatus(http.StatusCreated))
}

func (s *Service) updateUsage(ctx handler.Context, req updateUsageRequest) handler.Response {
	user := identity.GetUserFromContext(ctx)
	if user == nil {
		return handler.JSONError(handler.ErrUnauthorized)
	}
	usageID, err := uuid.Parse(req.UsageID)
	if err != nil {
		return handler.JSONError(handler.ErrBadRequest)
	}

	status := usage.Status(req.Status)
	if !status.Valid() {
		return handler.JSONError(handler.ErrUnprocessableEntity)
	}

	rec, err := s.records.Update(ctx, usageID, user.ID, status, req.Result)
	if err != nil {
		switch {
		case errors.Is(err, usage.ErrRecordNotFound):
			return handler.JSONError(handler.ErrNotFound)
		case errors.Is(err, usage.ErrNotRecordOwner):
			return handler.JSONError(handler.ErrForbidden)
		case errors.Is(err, usage.ErrRecordFinalized):
			return handler.JSONError(handler.ErrConflict)
		case errors.Is(err, usage.ErrInvalidStatus):
			return handler.JSONError(handler.ErrUnprocessableEntity)
		default:
			return handler.JSONError(err)
		}
	}
	return handler.JSON(newRecordResponse(rec))
}

func (s *Service) usageStats(ctx handler.Context, _ emptyRequest) handler.Response {
	user := identity.GetUserFromContext(ctx)
	if user == nil {
		return handler.JSONError(handler.ErrUnauthorized)
	}

	since := usage.MonthStart(time.Now())
	stats, err := s.records.StatsSince(ctx, user.ID, since)
	if err != nil {
		return handler.JSONError(err)
	}

	out := make([]toolStatResponse, 0, len(stats))
	for _, st := range stats {
		out = append(out, toolStatResponse{ToolID: st.ToolID, Count: st.Count})
	}
	return handler.JSON(out, handler.WithJSONMeta(map[string]any{
		"period_start": since,
	}))
}

func (s *Service) usageHistory(ctx handler.Context, req usageHistoryRequest) handler.Response {
	user := identity.GetUserFromContext(ctx)
	if user == nil {
		return handler.JSONError(handler.ErrUnauthorized)
	}

	limit := req.Limit
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	records, err := s.records.ListByUser(ctx, user.ID, limit, req.Offset)
	if err != nil {
		return handler.JSONError(err)
	}

	out := make([]recordResponse, 0, len(records))
	for i := range records {
		out = append(out, newRecordResponse(&records[i]))
	}
	return handler.JSON(out, handler.WithJSONMeta(map[string]any{
		"limit":  limit,
		"offset": req.Offset,
	}))
}

// deniedResponse renders the evaluator's denial reason as a 403.
func deniedResponse(reason string) handler.Response {
	return handler.JSON(handler.JSONResponse{
		Error: &handler.ErrorDetail{
			Code:    "forbidden",
			Message: reason,
		},
	}, handler.WithJSONStatus(http.StatusForbidden))
}
