// Package models defines the entities the gateway persists and the interfaces used to store them.
//
// The package contains two kinds of types:
//
// 1. Value types handed between packages
//   - [Credential] : OAuth2 authorization granted by Google. Treated as immutable; a refresh
//     produces a new value via [Credential.WithToken].
//   - [SessionMeta] : request details captured when a session is opened
//
// 2. Persistent entities
//   - [StoredCredential] : a [Credential] with its database identity and timestamps
//   - [Session] : a server-issued bearer session bound to one stored credential
//
// Persistent entities implement [Model]; [Repository] is the minimal storage contract the
// repositories package satisfies.
package models
