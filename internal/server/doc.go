// Package server provides HTTP routing, middleware, and the OAuth callback receiver used by the
// web application and the CLI.
//
// # Router Infrastructure
//
// The [Router] interface defines HTTP routing with middleware support.
//
// [Middleware] wraps handlers in reverse order (last added executes first), following the standard Go pattern.
// [Logging] and [Recover] are the stock middleware.
//
// The [BasicRouter] implementation registers method patterns ("GET /feed/home") on an [http.ServeMux].
//
// # OAuth Callback Handler
//
// [CallbackHandler] receives the authorization-code redirect during `amalgam servers add`.
// A temporary server listens on the configured redirect URI, the handler checks the state
// parameter and hands the code back over a channel, and the server shuts down.
//
// It only processes one callback to prevent replay attacks.
//
// # Handler Interface
//
// Custom handlers implement the [Handler] interface, which wraps the stdlib handler interface and adds routes,
// allowing handlers to register multiple routes to encapsulate route definitions within the implementation.
package server
