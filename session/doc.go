// Package session holds the client's observable session state: the current user, the
// authenticated flag consulted by navigation guards, the loading flag of in-flight auth forms,
// and the last user-displayable error.
//
// # Ownership
//
// A [State] is created once per client and handed to every component that reads or mutates it.
// There is no package-level instance.
//
// # Observers
//
// [State.Subscribe] returns a channel that always holds the most recent [Snapshot]. Slow
// observers miss intermediate transitions but never block writers.
//
// # What this package must NOT do
//
//   - Read or write tokens (the authenticated flag is fed in by the caller).
//   - Perform I/O.
package session
