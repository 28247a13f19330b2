// Package flows contains the orchestrators behind every Client auth operation.
//
// Each flow function (RunLogin, RunRegister, RunRefresh) accepts a typed dependency struct and
// returns a result carrying either the persisted token pair or failure metadata. The root
// package maps failures to public errors, metrics, and events.
//
// # Architecture boundaries
//
// Flow functions own the wire format of the auth endpoints: request encoding, token response
// decoding, and server error detail extraction. They do NOT touch session state, metrics, or
// events; that stays with the Client.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import authclient (to avoid import cycles).
//   - Send requests through the authenticated transport (refresh must never recurse).
package flows
