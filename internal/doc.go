// Package internal holds helpers private to this module.
//
// # Sub-packages
//
//   - flows: pure-function gateway calls (login, register, refresh)
//   - intercept: the bearer/401 request pipeline behind Client.RoundTrip
//
// # What this package must NOT do
//
//   - Export types that appear in the public authclient API.
package internal
