package main

import (
	"database/sql"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

func dbCmd(args []string) {
	fs := flag.NewFlagSet("db", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	dbPath := fs.String("db", "", "sqlite db path (optional)")
	planet := fs.Int("planet", 0, "planet filter (0 = all)")
	run := fs.String("run", "", "run filter for events (e.g. REFORM)")
	limit := fs.Int("limit", 20, "result limit")
	_ = fs.Parse(args)

	q := "runs"
	if fs.NArg() > 0 {
		q = strings.TrimSpace(fs.Arg(0))
	}

	path := strings.TrimSpace(*dbPath)
	if path == "" {
		path = filepath.Join(*dataDir, "index", "ledger.sqlite")
	}
	if *limit <= 0 {
		*limit = 20
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := query(db, q, *planet, strings.ToUpper(strings.TrimSpace(*run)), *limit, printJSON); err != nil {
		fmt.Fprintln(os.Stderr, err)
		if strings.HasPrefix(err.Error(), "unknown query") {
			fmt.Fprintln(os.Stderr, "usage: admin db [-data ./data|-db PATH] [-planet N] [-run NAME] [-limit N] runs|events|regions|config")
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func query(db *sql.DB, q string, planet int, run string, limit int, emit func(any)) error {
	switch q {
	case "runs":
		rows, err := db.Query(`SELECT id,run,planet,factory,start_tick,end_tick,state,COALESCE(code,''),total,processed,failed,dropped
			FROM runs WHERE (?=0 OR planet=?) ORDER BY id DESC LIMIT ?`, planet, planet, limit)
		if err != nil {
			return fmt.Errorf("query: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				ID        int64  `json:"id"`
				Run       string `json:"run"`
				Planet    int    `json:"planet"`
				Factory   string `json:"factory"`
				StartTick int64  `json:"start_tick"`
				EndTick   int64  `json:"end_tick"`
				State     string `json:"state"`
				Code      string `json:"code,omitempty"`
				Total     int    `json:"total"`
				Processed int    `json:"processed"`
				Failed    int    `json:"failed"`
				Dropped   int    `json:"dropped"`
			}
			if err := rows.Scan(&r.ID, &r.Run, &r.Planet, &r.Factory, &r.StartTick, &r.EndTick, &r.State, &r.Code, &r.Total, &r.Processed, &r.Failed, &r.Dropped); err != nil {
				return fmt.Errorf("scan: %w", err)
			}
			emit(r)
		}
		return rows.Err()

	case "events":
		rows, err := db.Query(`SELECT tick,seq,planet,type,run,COALESCE(code,''),COALESCE(message,'')
			FROM events WHERE (?=0 OR planet=?) AND (?='' OR run=?) ORDER BY tick DESC, seq DESC LIMIT ?`,
			planet, planet, run, run, limit)
		if err != nil {
			return fmt.Errorf("query: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				Tick    int64  `json:"tick"`
				Seq     int64  `json:"seq"`
				Planet  int    `json:"planet"`
				Type    string `json:"type"`
				Run     string `json:"run"`
				Code    string `json:"code,omitempty"`
				Message string `json:"message,omitempty"`
			}
			if err := rows.Scan(&r.Tick, &r.Seq, &r.Planet, &r.Type, &r.Run, &r.Code, &r.Message); err != nil {
				return fmt.Errorf("scan: %w", err)
			}
			emit(r)
		}
		return rows.Err()

	case "regions":
		rows, err := db.Query(`SELECT planet,text,updated_at FROM regions WHERE (?=0 OR planet=?) ORDER BY planet`, planet, planet)
		if err != nil {
			return fmt.Errorf("query: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				Planet    int    `json:"planet"`
				Text      string `json:"text"`
				UpdatedAt string `json:"updated_at"`
			}
			if err := rows.Scan(&r.Planet, &r.Text, &r.UpdatedAt); err != nil {
				return fmt.Errorf("scan: %w", err)
			}
			emit(r)
		}
		return rows.Err()

	case "config":
		var r struct {
			Name      string `json:"name"`
			Digest    string `json:"digest"`
			JSON      string `json:"json"`
			UpdatedAt string `json:"updated_at"`
		}
		row := db.QueryRow(`SELECT name,digest,json,updated_at FROM config WHERE name='tuning'`)
		if err := row.Scan(&r.Name, &r.Digest, &r.JSON, &r.UpdatedAt); err != nil {
			return fmt.Errorf("scan: %w", err)
		}
		emit(r)
		return nil

	default:
		return fmt.Errorf("unknown query: %s", q)
	}
}
