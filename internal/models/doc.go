// Package models defines the data model shared by the bcx mail export, site generator and sync commands.
//
// The package contains two categories of types:
//
// 1. Documents: plain structs persisted as JSON files
//   - [Album] : one Bandcamp release discovered in a notification email
//   - [Collection] : genre to ordered album records, the collection document
//   - [ListenedSnapshot] : local storage keys exported from the generated site
//   - [FolderSpec] : a mailbox folder paired with the genre it feeds
//
// 2. Persistent Entities: database-backed rows used for caching and history
//   - [CachedMessage] : a processed email keyed by server, account, folder and message id
//   - [TrackedAlbum] : per-genre add/remove history used to keep listened albums out
//   - [SyncRun] : a single reconciliation run and its totals
//
// Persistent entities implement the Model interface providing identity, timestamps and validation.
package models
