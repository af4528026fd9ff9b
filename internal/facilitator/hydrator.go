package facilitator

import (
	"context"
	"log/slog"
)

// HydrationState names a step in the boot hydration state machine.
type HydrationState string

const (
	StateInit          HydrationState = "init"
	StateEnvValidated  HydrationState = "env_validated"
	StateTryDB         HydrationState = "try_db"
	StateTryFSLKG      HydrationState = "try_fs_lkg"
	StateTryDBLKG      HydrationState = "try_db_lkg"
	StateReady         HydrationState = "ready"
	StateNotReady      HydrationState = "not_ready"
)

// Hydrator drives the boot sequence: init → env_validated → try_db →
// [ok | try_fs_lkg | try_db_lkg] → ready | not_ready(fatal). It never
// retries forever; a total failure to find any data source raises a
// KindBootFatal error so the process can exit instead of serving traffic
// it cannot back with anything but an empty map.
type Hydrator struct {
	store  *Store
	lkg    *LKGStore
	logger *slog.Logger
}

// NewHydrator constructs a Boot Hydrator bound to the given Mirror Store
// and LKG Store.
func NewHydrator(store *Store, lkg *LKGStore, logger *slog.Logger) *Hydrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hydrator{store: store, lkg: lkg, logger: logger}
}

// HydrationResult is the outcome of one boot attempt: the terminal state
// reached, the data source that actually backed the initial snapshot,
// and the fatal error if hydration could not produce any snapshot at
// all.
type HydrationResult struct {
	State  HydrationState
	Source SnapshotSource
	Count  int
	Err    *Error
}

// Hydrate runs the boot sequence to completion. It always ensures an LKG
// file exists on disk (creating an empty one if absent) before trying
// the database, so a fresh deployment with no prior LKG data still has a
// well-formed fallback target.
func (h *Hydrator) Hydrate(ctx context.Context, requestID string) HydrationResult {
	h.logger.Info("hydration starting", "state", StateInit)

	if err := h.lkg.EnsureExists(requestID); err != nil {
		h.logger.Warn("lkg ensure-exists failed, continuing", "error", err)
	}

	h.logger.Info("hydration progressing", "state", StateEnvValidated)
	h.logger.Info("hydration progressing", "state", StateTryDB)

	snap, err := h.store.GetWithTTL(ctx)
	if err == nil && snap != nil && snap.Source == SourceDB {
		h.logger.Info("hydration ready from db", "state", StateReady, "count", len(snap.Map))
		return HydrationResult{State: StateReady, Source: SourceDB, Count: len(snap.Map)}
	}

	if err != nil {
		h.logger.Warn("db load failed during hydration", "error", err)
	}

	h.logger.Info("hydration progressing", "state", StateTryFSLKG)
	if fsSnap := h.lkg.TryLoad(); fsSnap != nil && len(fsSnap.Map) > 0 {
		h.logger.Info("hydration ready from filesystem lkg", "state", StateReady, "count", len(fsSnap.Map))
		return HydrationResult{State: StateReady, Source: SourceLKG, Count: len(fsSnap.Map)}
	}

	h.logger.Info("hydration progressing", "state", StateTryDBLKG)
	if dbSnap := h.lkg.TryLoadDB(ctx); dbSnap != nil && len(dbSnap.Map) > 0 {
		h.logger.Info("hydration ready from database lkg", "state", StateReady, "count", len(dbSnap.Map))
		return HydrationResult{State: StateReady, Source: SourceLKG, Count: len(dbSnap.Map)}
	}

	if snap != nil && len(snap.Map) > 0 {
		h.logger.Warn("hydration falling back to non-empty stale snapshot", "state", StateReady)
		return HydrationResult{State: StateReady, Source: snap.Source, Count: len(snap.Map)}
	}

	ferr := newBootFatalError("no_db_no_lkg")
	h.logger.Error("hydration failed: no db and no lkg available", "state", StateNotReady)
	return HydrationResult{State: StateNotReady, Err: ferr}
}
