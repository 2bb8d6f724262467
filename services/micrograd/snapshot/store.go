// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package snapshot persists exported loss graphs captured during training.
//
// A Snapshot is the engine.View of a run's loss graph at one step, plus the
// loss value and a timestamp. Snapshots are keyed by run and step:
//
//	snap/<run id>/<step, zero padded to 8 digits>
//
// so a prefix scan over one run yields its snapshots in step order.
package snapshot

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Kodylow/nn-zero-to-hero/services/micrograd/engine"
	"github.com/Kodylow/nn-zero-to-hero/services/micrograd/storage/badger"
	dgbadger "github.com/dgraph-io/badger/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// -----------------------------------------------------------------------------
// Errors
// -----------------------------------------------------------------------------

var (
	// ErrSnapshotNotFound is returned when no snapshot exists for a run/step.
	ErrSnapshotNotFound = errors.New("snapshot not found")

	// ErrInvalidRunID is returned for an empty run id or one containing '/'.
	ErrInvalidRunID = errors.New("invalid run id")

	// ErrInvalidSnapshot is returned by Put for a snapshot without a view or
	// with a negative step.
	ErrInvalidSnapshot = errors.New("invalid snapshot")
)

const keyPrefix = "snap/"

var tracer = otel.Tracer("micrograd.snapshot")

// Snapshot is one persisted view of a run's loss graph.
type Snapshot struct {
	RunID     string       `json:"run_id"`
	Step      int          `json:"step"`
	Loss      float64      `json:"loss"`
	CreatedAt time.Time    `json:"created_at"`
	View      *engine.View `json:"view"`
}

// Summary describes a snapshot without its view, for listings.
type Summary struct {
	RunID     string    `json:"run_id"`
	Step      int       `json:"step"`
	Loss      float64   `json:"loss"`
	CreatedAt time.Time `json:"created_at"`
	Nodes     int       `json:"nodes"`
	Edges     int       `json:"edges"`
}

// Store reads and writes snapshots in a BadgerDB.
//
// # Thread Safety
//
// Safe for concurrent use; concurrent training runs share one Store.
type Store struct {
	db     *badger.DB
	logger *slog.Logger
	now    func() time.Time
}

// NewStore wraps an open database. The Store does not own db; the caller
// closes it.
func NewStore(db *badger.DB, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		db:     db,
		logger: logger.With(slog.String("component", "snapshot")),
		now:    time.Now,
	}
}

// Put stores a snapshot, replacing any existing one at the same run and
// step. A zero CreatedAt is set to the current time.
//
// # Inputs
//
//   - ctx: Context for cancellation.
//   - snap: The snapshot. RunID must be valid, Step >= 0 and View non-nil.
//
// # Outputs
//
//   - error: ErrInvalidRunID, ErrInvalidSnapshot, or a storage error.
func (s *Store) Put(ctx context.Context, snap *Snapshot) error {
	ctx, span := tracer.Start(ctx, "Store.Put")
	defer span.End()

	if snap == nil || snap.View == nil || snap.Step < 0 {
		return ErrInvalidSnapshot
	}
	if err := validateRunID(snap.RunID); err != nil {
		return err
	}
	span.SetAttributes(
		attribute.String("snapshot.run_id", snap.RunID),
		attribute.Int("snapshot.step", snap.Step),
	)

	if snap.CreatedAt.IsZero() {
		snap.CreatedAt = s.now().UTC()
	}

	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	err = s.db.WithTxn(ctx, func(txn *dgbadger.Txn) error {
		return txn.Set(stepKey(snap.RunID, snap.Step), data)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("put snapshot %s/%d: %w", snap.RunID, snap.Step, err)
	}

	s.logger.Debug("snapshot stored",
		slog.String("run_id", snap.RunID),
		slog.Int("step", snap.Step),
		slog.Int("bytes", len(data)))
	return nil
}

// Get loads the snapshot for run at step.
func (s *Store) Get(ctx context.Context, runID string, step int) (*Snapshot, error) {
	ctx, span := tracer.Start(ctx, "Store.Get",
		trace.WithAttributes(
			attribute.String("snapshot.run_id", runID),
			attribute.Int("snapshot.step", step),
		))
	defer span.End()

	if err := validateRunID(runID); err != nil {
		return nil, err
	}

	var snap Snapshot
	err := s.db.WithReadTxn(ctx, func(txn *dgbadger.Txn) error {
		item, err := txn.Get(stepKey(runID, step))
		if errors.Is(err, dgbadger.ErrKeyNotFound) {
			return ErrSnapshotNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &snap)
		})
	})
	if errors.Is(err, ErrSnapshotNotFound) {
		return nil, fmt.Errorf("%w: %s/%d", ErrSnapshotNotFound, runID, step)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("get snapshot %s/%d: %w", runID, step, err)
	}
	return &snap, nil
}

// List returns summaries of a run's snapshots in step order. A run with no
// snapshots yields an empty slice, not an error.
func (s *Store) List(ctx context.Context, runID string) ([]Summary, error) {
	ctx, span := tracer.Start(ctx, "Store.List",
		trace.WithAttributes(attribute.String("snapshot.run_id", runID)))
	defer span.End()

	if err := validateRunID(runID); err != nil {
		return nil, err
	}

	summaries := make([]Summary, 0)
	prefix := runPrefix(runID)
	err := s.db.WithReadTxn(ctx, func(txn *dgbadger.Txn) error {
		opts := dgbadger.DefaultIteratorOptions
		opts.PrefetchValues = true

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			var snap Snapshot
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &snap)
			})
			if err != nil {
				s.logger.Warn("skipping unreadable snapshot",
					slog.String("key", string(it.Item().Key())),
					slog.String("error", err.Error()))
				continue
			}
			summaries = append(summaries, summarize(&snap))
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("list snapshots for %s: %w", runID, err)
	}
	span.SetAttributes(attribute.Int("snapshot.count", len(summaries)))
	return summaries, nil
}

// Runs returns the ids of all runs with at least one snapshot, in key order.
func (s *Store) Runs(ctx context.Context) ([]string, error) {
	ctx, span := tracer.Start(ctx, "Store.Runs")
	defer span.End()

	runs := make([]string, 0)
	prefix := []byte(keyPrefix)
	err := s.db.WithReadTxn(ctx, func(txn *dgbadger.Txn) error {
		opts := dgbadger.DefaultIteratorOptions
		opts.PrefetchValues = false

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			rest := bytes.TrimPrefix(it.Item().Key(), prefix)
			run, _, ok := bytes.Cut(rest, []byte("/"))
			if !ok {
				continue
			}
			if n := len(runs); n == 0 || runs[n-1] != string(run) {
				runs = append(runs, string(run))
			}
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return runs, nil
}

// DeleteRun removes every snapshot of a run and reports how many were removed.
//
// Keys are collected in a read transaction and deleted in as many write
// transactions as badger needs, so runs with more snapshots than fit in one
// transaction are still removed. If a later chunk fails, the snapshots
// deleted by earlier chunks stay deleted and are included in the count.
func (s *Store) DeleteRun(ctx context.Context, runID string) (int, error) {
	ctx, span := tracer.Start(ctx, "Store.DeleteRun",
		trace.WithAttributes(attribute.String("snapshot.run_id", runID)))
	defer span.End()

	if err := validateRunID(runID); err != nil {
		return 0, err
	}

	prefix := runPrefix(runID)
	var keys [][]byte
	err := s.db.WithReadTxn(ctx, func(txn *dgbadger.Txn) error {
		opts := dgbadger.DefaultIteratorOptions
		opts.PrefetchValues = false

		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return 0, fmt.Errorf("delete run %s: %w", runID, err)
	}

	removed := 0
	for removed < len(keys) {
		n, err := s.deleteChunk(ctx, keys[removed:])
		removed += n
		if err != nil {
			span.RecordError(err)
			return removed, fmt.Errorf("delete run %s: %w", runID, err)
		}
	}
	span.SetAttributes(attribute.Int("snapshot.removed", removed))
	s.logger.Debug("run deleted", slog.String("run_id", runID), slog.Int("removed", removed))
	return removed, nil
}

// deleteChunk deletes a prefix of keys in one transaction, stopping early
// when the transaction is full, and returns how many keys it committed.
func (s *Store) deleteChunk(ctx context.Context, keys [][]byte) (int, error) {
	n := 0
	err := s.db.WithTxn(ctx, func(txn *dgbadger.Txn) error {
		n = 0
		for _, key := range keys {
			if err := txn.Delete(key); err != nil {
				if errors.Is(err, dgbadger.ErrTxnTooBig) && n > 0 {
					return nil
				}
				return err
			}
			n++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

func validateRunID(runID string) error {
	if runID == "" || strings.Contains(runID, "/") {
		return fmt.Errorf("%w: %q", ErrInvalidRunID, runID)
	}
	return nil
}

func runPrefix(runID string) []byte {
	return []byte(keyPrefix + runID + "/")
}

func stepKey(runID string, step int) []byte {
	return []byte(fmt.Sprintf("%s%s/%08d", keyPrefix, runID, step))
}

func summarize(snap *Snapshot) Summary {
	sum := Summary{
		RunID:     snap.RunID,
		Step:      snap.Step,
		Loss:      snap.Loss,
		CreatedAt: snap.CreatedAt,
	}
	if snap.View != nil {
		sum.Nodes = len(snap.View.Nodes)
		sum.Edges = len(snap.View.Edges)
	}
	return sum
}
