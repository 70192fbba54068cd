// Package handler provides type-safe HTTP request handling.
//
// Handlers are generic functions that receive a typed, already-bound
// request struct and return a Response. Binding and error rendering are
// configured once per route, which keeps the handler bodies free of
// parsing boilerplate:
//
//	type startUsageRequest struct {
//		ToolID string         `path:"tool_id"`
//		Input  map[string]any `json:"input"`
//	}
//
//	func startUsage(ctx handler.Context, req startUsageRequest) handler.Response {
//		record, err := svc.Start(ctx, req.ToolID, req.Input)
//		if err != nil {
//			return handler.JSONError(err)
//		}
//		return handler.JSON(record, handler.WithJSONStatus(http.StatusCreated))
//	}
//
//	r.Post("/{tool_id}/usage", handler.Wrap(startUsage,
//		handler.WithBinders[handler.Context, startUsageRequest](binder.Path(), binder.JSON()),
//		handler.WithErrorHandler[handler.Context, startUsageRequest](errorHandler),
//	))
//
// Binders run in declaration order; a binder that does not apply to the
// request (see binder.ErrBinderNotApplicable) is skipped, so one request
// struct can combine path, query, and body fields.
//
// # Error Handling
//
// Errors map onto HTTP statuses through two error shapes. HTTPError
// carries an explicit status code and a stable machine-readable key:
//
//	return handler.JSONError(handler.ErrNotFound)
//
// ValidationError carries per-field messages and always renders as 422:
//
//	verr := handler.NewValidationError()
//	verr.Add("status", "unknown status value")
//	return handler.JSONError(verr)
//
// Anything else renders as 500. NewErrorHandler builds an ErrorHandler
// that logs with the request ID before rendering, which services install
// route-wide via WithErrorHandler.
package handler
