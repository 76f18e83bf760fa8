// Package repositories implements SQLite persistence for bcx's bookkeeping.
//
// Key Implementations:
//   - [MessageCacheRepository] : processed emails keyed by server, account, folder and Message-ID, with
//     the resolved album stored as JSON so later exports skip the Bandcamp request
//   - [TrackerRepository] : per-genre album lifecycle (active, removed) feeding history suppression in sync
//   - [SyncRunRepository] : one row per sync execution with its totals
//
// Timestamps are stored in UTC so range queries such as [MessageCacheRepository.Prune] can compare them
// directly. The schema lives in the shared package's embedded migrations.
package repositories
