package indexdb

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"reformkit/internal/protocol"
	"reformkit/internal/sim/tuning"
)

var ErrClosed = errors.New("index closed")

// SQLiteIndex is the run ledger: every session event, one row per finished
// run, the applied tuning and the region text per planet. Event writes are
// queued and batched by a single writer goroutine; queries and region saves
// run on that goroutine too, after the pending batch commits.
type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	dropEvents atomic.Uint64
}

type reqKind int

const (
	reqEvent reqKind = iota + 1
	reqSync
)

type req struct {
	kind reqKind

	event protocol.Event
	fn    func(db *sql.DB) error
	done  chan error
}

// RunRow is one finished run.
type RunRow struct {
	ID        int64
	Run       string
	Planet    int
	Factory   string
	StartTick uint64
	EndTick   uint64
	State     string
	Code      string
	Total     int
	Processed int
	Failed    int
	Dropped   int
}

type Stats struct {
	QueueDepth     int
	DropEventTotal uint64
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db: db,
		ch: make(chan req, 16384),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS config (
			name TEXT PRIMARY KEY,
			digest TEXT NOT NULL,
			json TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS events (
			tick INTEGER NOT NULL,
			seq INTEGER NOT NULL,
			planet INTEGER NOT NULL,
			type TEXT NOT NULL,
			run TEXT NOT NULL,
			code TEXT,
			message TEXT,
			raw_json TEXT NOT NULL,
			PRIMARY KEY (tick, seq)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_events_run_tick ON events(run, tick);`,
		`CREATE TABLE IF NOT EXISTS runs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run TEXT NOT NULL,
			planet INTEGER NOT NULL,
			factory TEXT NOT NULL,
			start_tick INTEGER NOT NULL,
			end_tick INTEGER NOT NULL,
			state TEXT NOT NULL,
			code TEXT,
			total INTEGER NOT NULL,
			processed INTEGER NOT NULL,
			failed INTEGER NOT NULL,
			dropped INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_runs_planet ON runs(planet, end_tick);`,
		`CREATE TABLE IF NOT EXISTS regions (
			planet INTEGER PRIMARY KEY,
			text TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

func (s *SQLiteIndex) Stats() Stats {
	if s == nil {
		return Stats{}
	}
	return Stats{QueueDepth: len(s.ch), DropEventTotal: s.dropEvents.Load()}
}

// WriteEvent queues ev. It never blocks; when the writer falls behind the
// event is dropped and counted. The JSONL run log remains the source of
// truth.
func (s *SQLiteIndex) WriteEvent(ev protocol.Event) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	select {
	case s.ch <- req{kind: reqEvent, event: ev}:
	default:
		s.dropEvents.Add(1)
	}
	return nil
}

// do runs fn on the writer goroutine once every earlier request is
// committed.
func (s *SQLiteIndex) do(ctx context.Context, fn func(db *sql.DB) error) (err error) {
	if s == nil || s.closed.Load() {
		return ErrClosed
	}
	done := make(chan error, 1)
	defer func() {
		// Close raced with us.
		if recover() != nil {
			err = ErrClosed
		}
	}()
	select {
	case s.ch <- req{kind: reqSync, fn: fn, done: done}:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// UpsertTuning stores the values actually applied, as canonical JSON with
// its sha256 digest.
func (s *SQLiteIndex) UpsertTuning(ctx context.Context, tune tuning.Tuning) (string, error) {
	b, err := json.Marshal(tune)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(b)
	digest := hex.EncodeToString(sum[:])
	now := time.Now().UTC().Format(time.RFC3339Nano)
	err = s.do(ctx, func(db *sql.DB) error {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()
		if _, err := tx.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1')`); err != nil {
			return err
		}
		if _, err := tx.Exec(`INSERT OR REPLACE INTO config(name,digest,json,updated_at) VALUES('tuning',?,?,?)`, digest, string(b), now); err != nil {
			return err
		}
		return tx.Commit()
	})
	return digest, err
}

// SaveRegions stores the $-delimited region text for planet.
func (s *SQLiteIndex) SaveRegions(ctx context.Context, planet int, text string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	return s.do(ctx, func(db *sql.DB) error {
		_, err := db.ExecContext(ctx, `INSERT OR REPLACE INTO regions(planet,text,updated_at) VALUES(?,?,?)`, planet, text, now)
		return err
	})
}

// LoadRegions returns the stored region text for planet.
func (s *SQLiteIndex) LoadRegions(ctx context.Context, planet int) (text string, ok bool, err error) {
	err = s.do(ctx, func(db *sql.DB) error {
		err := db.QueryRowContext(ctx, `SELECT text FROM regions WHERE planet=?`, planet).Scan(&text)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}
		ok = true
		return nil
	})
	return text, ok, err
}

// RecentRuns returns up to limit finished runs, newest first.
func (s *SQLiteIndex) RecentRuns(ctx context.Context, limit int) ([]RunRow, error) {
	if limit <= 0 {
		limit = 20
	}
	var out []RunRow
	err := s.do(ctx, func(db *sql.DB) error {
		rows, err := db.QueryContext(ctx, `SELECT id,run,planet,factory,start_tick,end_tick,state,COALESCE(code,''),total,processed,failed,dropped
			FROM runs ORDER BY id DESC LIMIT ?`, limit)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var r RunRow
			var start, end int64
			if err := rows.Scan(&r.ID, &r.Run, &r.Planet, &r.Factory, &start, &end, &r.State, &r.Code, &r.Total, &r.Processed, &r.Failed, &r.Dropped); err != nil {
				return err
			}
			r.StartTick, r.EndTick = uint64(start), uint64(end)
			out = append(out, r)
		}
		return rows.Err()
	})
	return out, err
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	insertEvent, _ := s.db.Prepare(`INSERT OR REPLACE INTO events(tick,seq,planet,type,run,code,message,raw_json) VALUES(?,?,?,?,?,?,?,?)`)
	insertRun, _ := s.db.Prepare(`INSERT INTO runs(run,planet,factory,start_tick,end_tick,state,code,total,processed,failed,dropped) VALUES(?,?,?,?,?,?,?,?,?,?,?)`)
	defer func() {
		if insertEvent != nil {
			_ = insertEvent.Close()
		}
		if insertRun != nil {
			_ = insertRun.Close()
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 500
		commitMaxWait = 2 * time.Second

		lastTick uint64
		seq      int
		// run name -> start tick of the run in flight
		started = map[string]uint64{}
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		_ = tx.Commit()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	flushIfNeeded := func() {
		if tx == nil {
			return
		}
		if opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait {
			commit()
		}
	}

	for r := range s.ch {
		if r.kind == reqSync {
			commit()
			r.done <- r.fn(s.db)
			continue
		}
		begin()
		if tx == nil {
			continue
		}
		ev := r.event
		if ev.Tick != lastTick {
			lastTick = ev.Tick
			seq = 0
		}
		raw, _ := json.Marshal(ev)
		if insertEvent != nil {
			if _, err := tx.Stmt(insertEvent).Exec(int64(ev.Tick), seq, ev.Planet, ev.Type, ev.Run, ev.Code, ev.Message, string(raw)); err != nil {
				rollback()
				continue
			}
			opCount++
		}
		seq++
		switch ev.Type {
		case protocol.EventRunStart:
			started[ev.Run] = ev.Tick
		case protocol.EventRunEnd:
			start, ok := started[ev.Run]
			if !ok {
				start = ev.Tick
			}
			delete(started, ev.Run)
			if insertRun != nil {
				if _, err := tx.Stmt(insertRun).Exec(ev.Run, ev.Planet, ev.Factory, int64(start), int64(ev.Tick), ev.State, ev.Code,
					ev.Total, ev.Processed, ev.Failed, ev.Dropped); err != nil {
					rollback()
					continue
				}
				opCount++
			}
		}
		flushIfNeeded()
	}

	commit()
}
