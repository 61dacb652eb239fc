// Package middleware provides the HTTP wrappers that apply rate limiting,
// request IDs, and panic recovery to the gateway's routes.
//
// Handlers compose as plain func(http.Handler) http.Handler wrappers; routes
// opt in per category:
//
//	r.Handle("/api/signup", mw.Signup(signupHandler))
//	r.Handle("/api/questions", mw.Authenticated(ratelimit.CategoryGeneral)(askHandler))
package middleware
