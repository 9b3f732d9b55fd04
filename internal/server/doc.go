// Package server is the cur8 HTTP API: login with Spotify, session cookies, and the swipe queue.
//
// # Router Infrastructure
//
// The [Router] interface defines HTTP routing with middleware support.
//
// [Middleware] wraps handlers in reverse order (last added executes first), following the standard Go pattern.
// Routes may carry extra middleware of their own, applied inside the global stack; the session and
// rate limit checks are attached this way so /health and /auth/login stay public.
//
// The [BasicRouter] implementation uses [http.ServeMux] internally with method filtering.
// Method filtering runs inside the middleware chain so CORS preflight requests are answered before it.
//
// # OAuth Callback Handler
//
// [OAuthHandler] completes the authorization code flow started by GET /auth/login. It hands the
// code and state to [auth.Flow], sets the session cookie and redirects the browser to the front end.
//
// # Errors
//
// Handlers return errors to a single writer that maps them to a status code and a {"detail": ...}
// body; see statusFor.
//
// # Handler Interface
//
// Custom handlers implement the [Handler] interface, which wraps the stdlib handler interface and adds routes,
// allowing handlers to register multiple routes to encapsulate route definitions within the implementation.
package server
