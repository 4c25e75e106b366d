// Package repositories implements SQL persistence for credentials and sessions.
//
// Both repositories work against sqlite and postgres; queries are written with ? placeholders
// and rebound per [shared.Dialect]. Timestamps are written in UTC.
//
// Key Implementations:
//   - [CredentialRepository] : OAuth credentials, lookups by refresh token, cascading delete
//   - [SessionRepository] : session rows keyed by token digest, revocation, expiry purge
//
// [WithTx] runs a function inside a transaction and rolls back on error. While a transaction
// is open callers must only use the [*sql.Tx]; an in-memory sqlite pool has a single connection.
package repositories
