// Package tokenstore persists the client's access/refresh token pair.
//
// # Contract
//
// Every [Store] exposes Get, Set, and Clear. Set is atomic: a concurrent Get observes either the
// previous pair or the new one, never a mix of the two. A store that holds only one of the two
// token entries reports itself as empty.
//
// # Backends
//
//   - [MemoryStore]: process memory, for tests and short-lived clients.
//   - [FileStore]: JSON document under an application-instance directory, optionally sealed.
//   - [RedisStore]: a Redis hash written with MULTI/EXEC.
//   - [SQLStore]: a key/value table written in a single transaction (SQLite via [OpenSQLite]).
//
// # What this package must NOT do
//
//   - Track token expiry or inspect token contents.
//   - Import authclient or session (no upward imports).
package tokenstore
