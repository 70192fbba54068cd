package binder

import "net/http"

// Query creates a query parameter binder.
//
// It supports struct tags for custom parameter names:
//   - `query:"name"` - binds to query parameter "name"
//   - `query:"-"` - skips the field
//
// Supported types are strings, numeric types, bools, slices of those,
// and pointers for optional fields.
//
// Example:
//
//	type ListRequest struct {
//		Status string `query:"status"`
//		Limit  int    `query:"limit"`
//		Offset int    `query:"offset"`
//	}
func Query() func(r *http.Request, v any) error {
	return func(r *http.Request, v any) error {
		return bindToStruct(v, "query", r.URL.Query(), ErrFailedToParseQuery)
	}
}
