// Package server provides HTTP routing, middleware and the two handlers bcx serves locally.
//
// # Router Infrastructure
//
// The [Router] interface defines HTTP routing with middleware support. [BasicRouter] is backed by
// [http.ServeMux] method patterns. [Middleware] added first runs outermost; [LoggingMiddleware] writes
// one structured log line per request and [RecoverMiddleware] turns panics into 500 responses.
//
// # Site Preview
//
// [SiteHandler] serves a generated site directory for `bcx site serve`. Browser local storage is
// scoped to the origin, so marks made on the preview host are separate from the published site.
//
// # OAuth Callback Handler
//
// [OAuthHandler] receives the redirect of the mail provider's authorization code flow for
// `bcx auth oauth`. It validates the state parameter, exchanges the code for tokens, and sends the
// result through a channel. Only one callback is processed.
//
// [Serve] runs a server until its context is cancelled and then shuts it down gracefully.
package server
