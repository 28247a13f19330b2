// Package authclient provides an authenticated HTTP client for a username/password backend that
// issues short-lived access tokens and long-lived refresh tokens.
//
// A [Client] attaches the stored access token to every request sent through [Client.HTTPClient]
// or [Client.Transport]. When the backend answers 401 the client refreshes the pair once and
// replays the request once; if the refresh fails the token store and the session are cleared and
// the caller receives a [*SessionExpiredError]. Concurrent 401s share a single refresh.
//
// Client methods are safe to call from multiple goroutines after initialization through
// [Builder.Build].
//
// # Architecture boundaries
//
// authclient is the public surface. It exposes [Client], [Builder], [Config], the error taxonomy,
// events and metrics. Token persistence lives in tokenstore, session state in session, and the
// backend exchanges and the request pipeline under internal/.
//
// # What this package must NOT do
//
//   - Log, emit, or return token values in errors.
//   - Send the refresh call through the authenticated transport.
//   - Retry a request more than once, or retry anything but a 401.
package authclient
