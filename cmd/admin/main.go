package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/klauspost/compress/zstd"

	persistlog "reformkit/internal/persistence/log"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "audit":
			auditCmd(os.Args[2:])
			return
		case "db":
			dbCmd(os.Args[2:])
			return
		case "state":
			stateCmd(os.Args[2:])
			return
		case "command":
			commandCmd(os.Args[2:])
			return
		}
	}
	listCmd(os.Args[1:])
}

func listCmd(args []string) {
	fs := flag.NewFlagSet("admin", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	_ = fs.Parse(args)

	for _, sub := range []string{"events", "audit", "index"} {
		entries, err := os.ReadDir(filepath.Join(*dataDir, sub))
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			fmt.Fprintln(os.Stderr, "read:", err)
			os.Exit(1)
		}
		for _, e := range entries {
			fmt.Println(filepath.Join(sub, e.Name()))
		}
	}
}

func auditCmd(args []string) {
	fs := flag.NewFlagSet("audit", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	actor := fs.String("actor", "", "only entries from this client id")
	action := fs.String("action", "", "only this command op (e.g. REFORM)")
	sinceTick := fs.Uint64("since_tick", 0, "first tick (inclusive)")
	toTick := fs.Uint64("to_tick", 0, "last tick (inclusive, optional)")
	rejected := fs.Bool("rejected", false, "only rejected commands")
	_ = fs.Parse(args)

	f := auditFilter{
		Actor:     strings.TrimSpace(*actor),
		Action:    strings.ToUpper(strings.TrimSpace(*action)),
		SinceTick: *sinceTick,
		ToTick:    *toTick,
		Rejected:  *rejected,
	}
	recs, err := readAudit(filepath.Join(*dataDir, "audit"), f)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read audit:", err)
		os.Exit(1)
	}
	for _, r := range recs {
		printJSON(r)
	}
	fmt.Fprintf(os.Stderr, "%d entries\n", len(recs))
}

type auditFilter struct {
	Actor     string
	Action    string
	SinceTick uint64
	ToTick    uint64
	Rejected  bool
}

func (f auditFilter) match(e persistlog.AuditEntry) bool {
	if f.Actor != "" && e.Actor != f.Actor {
		return false
	}
	if f.Action != "" && e.Action != f.Action {
		return false
	}
	if e.Tick < f.SinceTick || (f.ToTick != 0 && e.Tick > f.ToTick) {
		return false
	}
	if f.Rejected && e.Code == "" {
		return false
	}
	return true
}

// readAudit returns matching entries in file order (files sort by hour).
func readAudit(dir string, f auditFilter) ([]persistlog.AuditEntry, error) {
	ents, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(ents))
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasPrefix(name, "audit-") && strings.HasSuffix(name, ".jsonl.zst") {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	var out []persistlog.AuditEntry
	for _, name := range names {
		if err := scanAuditFile(filepath.Join(dir, name), f, &out); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func scanAuditFile(path string, f auditFilter, out *[]persistlog.AuditEntry) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()
	dec, err := zstd.NewReader(file)
	if err != nil {
		return err
	}
	defer dec.Close()

	sc := bufio.NewScanner(dec)
	sc.Buffer(make([]byte, 64*1024), 8*1024*1024)
	for sc.Scan() {
		var e persistlog.AuditEntry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			return fmt.Errorf("%s: unmarshal: %w", filepath.Base(path), err)
		}
		if f.match(e) {
			*out = append(*out, e)
		}
	}
	return sc.Err()
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}
