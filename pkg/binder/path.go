package binder

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Path creates a binder for chi URL parameters.
//
// Example:
//
//	type GetToolRequest struct {
//		ToolID string `path:"tool_id"`
//	}
//
//	r.Get("/tools/{tool_id}", handler.Wrap(h.getTool,
//		handler.WithBinders[handler.Context, GetToolRequest](binder.Path()),
//	))
func Path() func(r *http.Request, v any) error {
	return func(r *http.Request, v any) error {
		rctx := chi.RouteContext(r.Context())
		if rctx == nil {
			return ErrBinderNotApplicable
		}

		values := make(map[string][]string, len(rctx.URLParams.Keys))
		for i, key := range rctx.URLParams.Keys {
			if key == "*" {
				continue
			}
			values[key] = []string{rctx.URLParams.Values[i]}
		}
		return bindToStruct(v, "path", values, ErrFailedToParsePath)
	}
}
