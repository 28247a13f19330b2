// Package authtest runs an in-process backend that speaks the login, register, and refresh
// contract the client expects, plus a few protected resource endpoints.
//
// Access tokens are HS256 JWTs; refresh tokens are opaque, single-use, and rotated on every
// refresh. Tests drive failure modes through [Server.ExpireAccessTokens], [Server.SetRejectRefresh],
// [Server.SetRefreshDelay], and [Server.HoldRefresh], and read call counters through [Server.Stats].
//
// # What this package must NOT do
//
//   - Persist anything outside process memory.
//   - Depend on the authclient package (the client is tested against it, not the reverse).
package authtest
