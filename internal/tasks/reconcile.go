package tasks

import (
	"fmt"
	"sort"
	"strings"

	"github.com/desertthunder/bcx/internal/models"
	"github.com/desertthunder/bcx/internal/shared"
)

// Identifier derives the stable identifier of an album record.
type Identifier func(models.Album) (string, bool)

// GenreStats counts what reconciliation did to one genre.
//
// Kept, Added and Removed only count records carrying an identifier. Total is the length of the
// resulting sequence, which also holds retained records without one (Unidentified).
type GenreStats struct {
	Original     int      `json:"original"`
	Kept         int      `json:"kept"`
	Added        int      `json:"added"`
	Removed      int      `json:"removed"`
	Total        int      `json:"total"`
	Duplicates   int      `json:"duplicates,omitempty"`   // repeated ids collapsed within the current genre
	Unidentified int      `json:"unidentified,omitempty"` // current records retained without an id
	Skipped      int      `json:"skipped,omitempty"`      // fresh records without an id or genre
	Suppressed   int      `json:"suppressed,omitempty"`   // fresh records already listened
	Keys         []string `json:"keys,omitempty"`         // snapshot keys that resolved to this genre
}

func (s *GenreStats) add(o GenreStats) {
	s.Original += o.Original
	s.Kept += o.Kept
	s.Added += o.Added
	s.Removed += o.Removed
	s.Total += o.Total
	s.Duplicates += o.Duplicates
	s.Unidentified += o.Unidentified
	s.Skipped += o.Skipped
	s.Suppressed += o.Suppressed
}

// SyncResult is the outcome of one reconciliation.
type SyncResult struct {
	Collection    models.Collection     `json:"-"`
	Genres        map[string]GenreStats `json:"genres"`
	Totals        GenreStats            `json:"totals"`
	Unmatched     []string              `json:"unmatched_keys,omitempty"`
	AddedIDs      map[string][]string   `json:"added_ids,omitempty"`
	RemovedIDs    map[string][]string   `json:"removed_ids,omitempty"`
	FreshProvided bool                  `json:"fresh_provided"`
}

// GenreNames returns the genres with statistics, sorted.
func (r *SyncResult) GenreNames() []string {
	names := make([]string, 0, len(r.Genres))
	for g := range r.Genres {
		names = append(names, g)
	}
	sort.Strings(names)
	return names
}

// NothingRemoved reports whether no listened identifier matched a current record.
func (r *SyncResult) NothingRemoved() bool {
	return r.Totals.Removed == 0
}

// Reconciler merges a collection, a listened snapshot and an optional fresh batch.
type Reconciler struct {
	prefix   string
	identify Identifier
	history  ListenedSet
}

// ReconcilerOpt configures a [Reconciler].
type ReconcilerOpt func(*Reconciler)

// WithIdentifier replaces the identifier derivation, which defaults to [models.Album.Identifier].
func WithIdentifier(fn Identifier) ReconcilerOpt {
	return func(r *Reconciler) {
		if fn != nil {
			r.identify = fn
		}
	}
}

// WithHistory blocks fresh records whose identifiers were removed in earlier runs.
func WithHistory(history ListenedSet) ReconcilerOpt {
	return func(r *Reconciler) { r.history = history }
}

// NewReconciler creates a Reconciler reading snapshot keys with the given prefix.
func NewReconciler(prefix string, opts ...ReconcilerOpt) *Reconciler {
	r := &Reconciler{prefix: prefix, identify: models.Album.Identifier}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Reconcile computes the next collection document.
//
// For every genre the records marked listened are removed, the rest keep their order, and
// fresh records tagged with the genre are appended unless already present or listened. A nil
// fresh batch means removal only. Inputs are never modified. A snapshot holding an empty
// identifier fails the whole call before any output is produced.
func (r *Reconciler) Reconcile(current models.Collection, listened models.ListenedSnapshot, fresh []models.Album) (*SyncResult, error) {
	if err := r.validateSnapshot(listened); err != nil {
		return nil, err
	}

	result := &SyncResult{
		Collection:    models.Collection{},
		Genres:        map[string]GenreStats{},
		AddedIDs:      map[string][]string{},
		RemovedIDs:    map[string][]string{},
		FreshProvided: fresh != nil,
	}

	freshByGenre := map[string][]models.Album{}
	for _, rec := range fresh {
		if rec.Genre == "" {
			result.Totals.Skipped++
			continue
		}
		freshByGenre[rec.Genre] = append(freshByGenre[rec.Genre], rec)
	}

	genres := make([]string, 0, len(current)+len(freshByGenre))
	for g := range current {
		genres = append(genres, g)
	}
	for g := range freshByGenre {
		if _, ok := current[g]; !ok {
			genres = append(genres, g)
		}
	}
	sort.Strings(genres)

	table := NewKeyTable(r.prefix, genres)
	set, unmatched, matched := table.Resolve(listened)
	result.Unmatched = unmatched

	for _, g := range genres {
		records, inCurrent := current[g]
		out, stats := r.reconcileGenre(g, records, freshByGenre[g], set, result)
		stats.Keys = matched[g]

		if inCurrent || len(out) > 0 {
			result.Collection[g] = out
		}
		result.Genres[g] = stats
		result.Totals.add(stats)
	}

	return result, nil
}

func (r *Reconciler) reconcileGenre(genre string, records, fresh []models.Album, set ListenedSet, result *SyncResult) ([]models.Album, GenreStats) {
	stats := GenreStats{Original: len(records)}
	out := make([]models.Album, 0, len(records)+len(fresh))
	seen := map[string]struct{}{}

	for _, rec := range records {
		id, ok := r.identify(rec)
		if !ok {
			out = append(out, rec)
			stats.Unidentified++
			continue
		}
		if set.Has(genre, id) {
			stats.Removed++
			result.RemovedIDs[genre] = append(result.RemovedIDs[genre], id)
			continue
		}
		if _, dup := seen[id]; dup {
			stats.Duplicates++
			continue
		}
		seen[id] = struct{}{}
		out = append(out, rec)
		stats.Kept++
	}

	for _, rec := range fresh {
		id, ok := r.identify(rec)
		if !ok {
			stats.Skipped++
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		if set.Has(genre, id) || r.history.Has(genre, id) {
			stats.Suppressed++
			continue
		}
		seen[id] = struct{}{}
		out = append(out, rec)
		stats.Added++
		result.AddedIDs[genre] = append(result.AddedIDs[genre], id)
	}

	stats.Total = len(out)
	return out, stats
}

func (r *Reconciler) validateSnapshot(listened models.ListenedSnapshot) error {
	for _, key := range listened.Keys(r.prefix) {
		for i, id := range listened[key] {
			if strings.TrimSpace(id) == "" {
				return fmt.Errorf("%w: key %q has an empty identifier at index %d", shared.ErrMalformedSnapshot, key, i)
			}
		}
	}
	return nil
}
