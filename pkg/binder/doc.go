// Package binder provides type-safe HTTP request data binding.
//
// Binders map request data onto struct fields using tags. Three sources
// are supported:
//
//   - JSON():  request bodies, using `json:` tags
//   - Query(): URL query parameters, using `query:` tags
//   - Path():  chi route parameters, using `path:` tags
//
// A binder returns ErrBinderNotApplicable when the request cannot carry
// its data source (a GET request has no JSON body, a request routed
// without chi has no path parameters). Callers apply several binders in
// order and skip the inapplicable ones, so a single request struct can
// mix all three tag kinds:
//
//	type updateUsageRequest struct {
//		UsageID string `path:"usage_id"`
//		Status  string `json:"status"`
//	}
//
// Supported field types are string, bool, integer and float variants,
// and slices and pointers of those. Unknown JSON fields are rejected and
// bodies are capped at DefaultMaxJSONSize.
package binder
