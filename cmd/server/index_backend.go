package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"reformkit/internal/persistence/indexdb"
	"reformkit/internal/protocol"
	"reformkit/internal/sim/tuning"
)

type runtimeIndex interface {
	WriteEvent(ev protocol.Event) error
	Close() error
	Stats() indexdb.Stats
	UpsertTuning(ctx context.Context, tune tuning.Tuning) (string, error)
	SaveRegions(ctx context.Context, planet int, text string) error
	LoadRegions(ctx context.Context, planet int) (string, bool, error)
	RecentRuns(ctx context.Context, limit int) ([]indexdb.RunRow, error)
}

func openRuntimeIndex(dataDir string, disableDB bool) (runtimeIndex, error) {
	if disableDB {
		return nil, nil
	}

	backend := strings.ToLower(strings.TrimSpace(os.Getenv("RK_INDEX_BACKEND")))
	if backend == "" {
		backend = "sqlite"
	}

	switch backend {
	case "none", "off", "disabled":
		return nil, nil
	case "sqlite":
		return indexdb.OpenSQLite(filepath.Join(dataDir, "index", "ledger.sqlite"))
	default:
		return nil, fmt.Errorf("unsupported RK_INDEX_BACKEND: %s", backend)
	}
}

type multiEventLogger struct {
	a interface {
		WriteEvent(protocol.Event) error
	}
	b runtimeIndex
}

func (m multiEventLogger) WriteEvent(ev protocol.Event) error {
	var err error
	if m.a != nil {
		err = m.a.WriteEvent(ev)
	}
	if m.b != nil {
		_ = m.b.WriteEvent(ev)
	}
	return err
}
