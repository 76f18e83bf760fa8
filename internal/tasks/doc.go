// Package tasks implements the two long-running operations behind the bcx CLI.
//
// # Reconciliation
//
// [Reconciler.Reconcile] merges three inputs into the next collection document:
//
//  1. the current [models.Collection]
//  2. a [models.ListenedSnapshot] exported from the generated site
//  3. an optional batch of freshly fetched albums
//
// Listened records are dropped, the remaining records keep their order and fresh records
// tagged with a genre are appended when they are neither present nor listened. The function
// has no side effects. Snapshot keys are mapped to genres by a [KeyTable].
//
// # Collection
//
// [Collector.Collect] walks mailbox folders through a [MailSource], skips messages found in
// the [MessageCache], extracts Bandcamp links and resolves embeds concurrently through an
// [EmbedResolver].
//
// # Progress Reporting
//
// Collect sends [ProgressUpdate] values on an optional channel. Sends never block; updates
// are dropped when the channel is full.
package tasks
