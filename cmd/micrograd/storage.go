// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"fmt"
	"time"

	"github.com/Kodylow/nn-zero-to-hero/services/micrograd/snapshot"
	"github.com/Kodylow/nn-zero-to-hero/services/micrograd/storage/badger"
)

// openStore opens the configured snapshot database. The returned close func
// must be called once the store is no longer used.
func openStore(app *cliApp) (*snapshot.Store, func() error, error) {
	cfg := badger.DefaultConfig()
	cfg.Path = app.cfg.Storage.Path
	cfg.SyncWrites = app.cfg.Storage.SyncWrites
	cfg.Logger = app.slog()
	cfg.GCInterval = 5 * time.Minute

	db, err := badger.Open(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("open snapshot store at %s: %w", cfg.Path, err)
	}
	return snapshot.NewStore(db, app.slog()), db.Close, nil
}
