// Package billing exposes plans, subscription self-service, and the
// provider webhook over HTTP.
package billing

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/toolstack/toolstack/billing"
	"github.com/toolstack/toolstack/catalog"
	"github.com/toolstack/toolstack/handler"
	"github.com/toolstack/toolstack/identity"
	"github.com/toolstack/toolstack/pkg/binder"
	"github.com/toolstack/toolstack/pkg/logger"
	"github.com/toolstack/toolstack/subscription"
)

// maxWebhookBody caps webhook payload reads; provider payloads are
// a few KB at most.
const maxWebhookBody = 1 << 20

type Service struct {
	plans        catalog.PlanReader
	subs         *subscription.Service
	reconciler   *subscription.Reconciler
	provider     billing.Provider
	log          *slog.Logger
	errorHandler handler.ErrorHandler[handler.Context]
}

// NewService creates the billing HTTP service. Panics if any dependency is nil.
func NewService(
	plans catalog.PlanReader,
	subs *subscription.Service,
	reconciler *subscription.Reconciler,
	provider billing.Provider,
	log *slog.Logger,
	errorHandler handler.ErrorHandler[handler.Context],
) *Service {
	if plans == nil {
		panic("billing: plan reader is required")
	}
	if subs == nil {
		panic("billing: subscription service is required")
	}
	if reconciler == nil {
		panic("billing: reconciler is required")
	}
	if provider == nil {
		panic("billing: provider is required")
	}
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		plans:        plans,
		subs:         subs,
		reconciler:   reconciler,
		provider:     provider,
		log:          log,
		errorHandler: errorHandler,
	}
}

// Handle mounts the authenticated self-service routes. The webhook is
// mounted separately via HandleWebhook because it is authenticated by
// signature, not by user session.
func (s *Service) Handle() http.Handler {
	r := chi.NewRouter()

	r.Get("/plans", handler.Wrap(s.listPlans,
		handler.WithErrorHandler[handler.Context, emptyRequest](s.errorHandler),
	))
	r.Get("/my-subscription", handler.Wrap(s.mySubscription,
		handler.WithErrorHandler[handler.Context, emptyRequest](s.errorHandler),
	))
	r.Get("/payments", handler.Wrap(s.listPayments,
		handler.WithErrorHandler[handler.Context, emptyRequest](s.errorHandler),
	))
	r.Post("/checkout", handler.Wrap(s.checkout,
		handler.WithBinders[handler.Context, checkoutRequest](binder.JSON()),
		handler.WithErrorHandler[handler.Context, checkoutRequest](s.errorHandler),
	))
	r.Post("/billing-portal", handler.Wrap(s.billingPortal,
		handler.WithBinders[handler.Context, portalRequest](binder.JSON()),
		handler.WithErrorHandler[handler.Context, portalRequest](s.errorHandler),
	))
	r.Post("/cancel", handler.Wrap(s.cancel,
		handler.WithBinders[handler.Context, cancelRequest](binder.JSON()),
		handler.WithErrorHandler[handler.Context, cancelRequest](s.errorHandler),
	))

	return r
}

type emptyRequest struct{}

type checkoutRequest struct {
	PlanID     string `json:"plan_id"`
	Interval   string `json:"billing_interval"`
	SuccessURL string `json:"success_url"`
	CancelURL  string `json:"cancel_url"`
}

type portalRequest struct {
	ReturnURL string `json:"return_url"`
}

type cancelRequest struct {
	AtPeriodEnd bool `json:"at_period_end"`
}

type planResponse struct {
	ID           uuid.UUID     `json:"id"`
	Name         string        `json:"name"`
	Description  string        `json:"description"`
	PriceMonthly catalog.Money `json:"price_monthly"`
	PriceYearly  catalog.Money `json:"price_yearly"`
	Features     []string      `json:"features,omitempty"`
	ToolLimit    int64         `json:"tool_limit"`
}

type paymentResponse struct {
	ID       uuid.UUID                  `json:"id"`
	Amount   float64                    `json:"amount"`
	Currency string                     `json:"currency"`
	Status   subscription.PaymentStatus `json:"status"`
	Date     time.Time                  `json:"date"`
}

func (s *Service) listPlans(ctx handler.Context, _ emptyRequest) handler.Response {
	plans, err := s.plans.ListActivePlans(ctx)
	if err != nil {
		return handler.JSONError(err)
	}

	out := make([]planResponse, 0, len(plans))
	for _, p := range plans {
		out = append(out, planResponse{
			ID:           p.ID,
			Name:         p.Name,
			Description:  p.Description,
			PriceMonthly: p.PriceMonthly,
			PriceYearly:  p.PriceYearly,
			Features:     p.Features,
			ToolLimit:    p.ToolLimit,
		})
	}
	return handler.JSON(out)
}

func (s *Service) mySubscription(ctx handler.Context, _ emptyRequest) handler.Response {
	user := identity.GetUserFromContext(ctx)
	if user == nil {
		return handler.JSONError(handler.ErrUnauthorized)
	}

	sub, err := s.subs.GetCurrent(ctx, user.ID)
	if err != nil {
		if errors.Is(err, subscription.ErrNoActiveSubscription) {
			return handler.JSON(nil)
		}
		return handler.JSONError(err)
	}

	summary, err := s.subs.Summarize(ctx, sub)
	if err != nil {
		return handler.JSONError(err)
	}
	return handler.JSON(summary)
}

func (s *Service) listPayments(ctx handler.Context, _ emptyRequest) handler.Response {
	user := identity.GetUserFromContext(ctx)
	if user == nil {
		return handler.JSONError(handler.ErrUnauthorized)
	}

	payments, err := s.subs.ListPayments(ctx, user.ID)
	if err != nil {
		return handler.JSONError(err)
	}

	out := make([]paymentResponse, 0, len(payments))
	for _, p := range payments {
		out = append(out, paymentResponse{
			ID:       p.ID,
			Amount:   p.Amount,
			Currency: p.Currency,
			Status:   p.Status,
			Date:     p.CreatedAt,
		})
	}
	return handler.JSON(out)
}

func (s *Service) checkout(ctx handler.Context, req checkoutRequest) handler.Response {
	user := identity.GetUserFromContext(ctx)
	if user == nil {
		return handler.JSONError(handler.ErrUnauthorized)
	}
	planID, err := uuid.Parse(req.PlanID)
	if err != nil {
		return handler.JSONError(handler.ErrBadRequest)
	}

	link, err := s.subs.Checkout(ctx, user, subscription.CheckoutParams{
		PlanID:     planID,
		Interval:   catalog.BillingInterval(req.Interval),
		SuccessURL: req.SuccessURL,
		CancelURL:  req.CancelURL,
	})
	if err != nil {
		return s.billingError(err)
	}
	return handler.JSON(map[string]any{"checkout_url": link.URL})
}

func (s *Service) billingPortal(ctx handler.Context, req portalRequest) handler.Response {
	user := identity.GetUserFromContext(ctx)
	if user == nil {
		return handler.JSONError(handler.ErrUnauthorized)
	}

	link, err := s.subs.PortalLink(ctx, user, req.ReturnURL)
	if err != nil {
		return s.billingError(err)
	}
	return handler.JSON(map[string]any{
		"portal_url": link.URL,
		"cancel_url": link.CancelURL,
	})
}

func (s *Service) cancel(ctx handler.Context, req cancelRequest) handler.Response {
	user := identity.GetUserFromContext(ctx)
	if user == nil {
		return handler.JSONError(handler.ErrUnauthorized)
	}

	sub, err := s.subs.Cancel(ctx, user.ID, req.AtPeriodEnd)
	if err != nil {
		return s.billingError(err)
	}

	summary, err := s.subs.Summarize(ctx, sub)
	if err != nil {
		return handler.JSONError(err)
	}
	return handler.JSON(summary)
}

// billingError maps domain errors onto HTTP statuses. Provider outages
// surface as 502 so clients can distinguish them from our own faults.
func (s *Service) billingError(err error) handler.Response {
	switch {
	case errors.Is(err, catalog.ErrPlanNotFound),
		errors.Is(err, subscription.ErrNoActiveSubscription):
		return handler.JSONError(handler.ErrNotFound)
	case errors.Is(err, subscription.ErrNoBillingAccount),
		errors.Is(err, subscription.ErrNoPriceForInterval):
		return handler.JSONError(handler.ErrUnprocessableEntity)
	case errors.Is(err, billing.ErrProviderUnavailable):
		return handler.JSONError(handler.ErrBadGateway)
	default:
		return handler.JSONError(err)
	}
}

// HandleWebhook processes provider webhooks. Signature failures are
// 400; events referencing unknown entities are acknowledged with 200 so
// the provider stops redelivering; store failures are 500 to trigger a
// retry.
func (s *Service) HandleWebhook() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
		if err != nil {
			http.Error(w, "failed to read body", http.StatusBadRequest)
			return
		}

		event, err := s.provider.ParseWebhook(r.Context(), body, r.Header.Get("Paddle-Signature"))
		if err != nil {
			if errors.Is(err, billing.ErrWebhookVerificationFailed) ||
				errors.Is(err, billing.ErrMalformedWebhookPayload) {
				s.log.WarnContext(r.Context(), "rejected webhook",
					logger.Error(err))
				http.Error(w, "invalid webhook", http.StatusBadRequest)
				return
			}
			s.log.ErrorContext(r.Context(), "failed to parse webhook",
				logger.Error(err))
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}

		if err := s.reconciler.Apply(r.Context(), event); err != nil {
			s.log.ErrorContext(r.Context(), "failed to apply billing event",
				slog.String("event_id", event.EventID),
				slog.String("event_type", string(event.Type)),
				logger.Error(err))
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}

		w.WriteHeader(http.StatusOK)
	}
}
