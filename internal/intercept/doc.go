// Package intercept implements the bearer-token request pipeline used by the authenticated
// transport.
//
// Every outbound request is wrapped in an [Attempt] and walked through a fixed sequence of
// steps: attach the access token, send, classify the response into an [Outcome]. An
// Unauthorized outcome on a fresh attempt triggers one refresh and one replay; a replayed
// attempt can never be Unauthorized again, so the pipeline always terminates.
//
// # What this package must NOT do
//
//   - Import authclient, tokenstore, or session (all state is reached through [Deps]).
//   - Retry transport failures or non-401 statuses.
//   - Log or otherwise expose token values.
package intercept
