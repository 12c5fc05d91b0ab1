// Package credential manages a client-side authentication token across
// three trust tiers (fallback anonymous, scoped anonymous, user scoped),
// coordinating a remote exchange service and a session-bound data client.
//
// Tier lifecycle:
//   - Boot restores a stored, still valid token without a network call,
//     otherwise performs the scoped anonymous exchange, otherwise settles
//     on the static fallback credential. Boot never fails: the manager
//     always produces some usable, if degraded, credential.
//   - A renewal timer re-exchanges the active token before it expires; an
//     upgrade timer periodically retries the anonymous exchange while
//     degraded so the manager self-heals once the gateway returns.
//   - Login and SignUp delegate password authentication to an external
//     IdentityProvider and trade the resulting bearer token for a user
//     scoped token. An unreachable gateway degrades the tier without
//     logging the user out.
//
// Activity sinks:
//   - ActivitySink is a light-weight audit emitter describing logins, sign
//     ups, renewals, and tier transitions. Sinks run best-effort (errors
//     are logged) so telemetry cannot block the credential lifecycle.
//
// The manager never verifies token signatures and never stores passwords;
// both belong to its collaborators.
package credential
