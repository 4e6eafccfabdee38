package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	persistlog "reformkit/internal/persistence/log"
	"reformkit/internal/protocol"
)

func main() {
	var (
		eventsDir = flag.String("events", "./data/events", "events dir containing events-*.jsonl.zst")
		runName   = flag.String("run", "", "only this run (DEMOLISH, REFORM, BURY_VEIN, RAISE_VEIN, INDEX)")
		fromTick  = flag.Uint64("from_tick", 0, "start verifying from tick (inclusive, optional)")
		toTick    = flag.Uint64("to_tick", 0, "stop at tick (inclusive, optional)")
		asJSON    = flag.Bool("json", false, "print runs as JSON lines")
	)
	flag.Parse()

	files, err := listEventFiles(*eventsDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "list events:", err)
		os.Exit(1)
	}
	if len(files) == 0 {
		fmt.Fprintln(os.Stderr, "no events files found in", *eventsDir)
		os.Exit(1)
	}

	rp := newReplayer(strings.ToUpper(strings.TrimSpace(*runName)), *fromTick, *toTick)
	for _, path := range files {
		evs, err := persistlog.ReadEvents(path)
		if err != nil {
			fmt.Fprintln(os.Stderr, "read:", err)
			os.Exit(1)
		}
		if err := rp.feed(filepath.Base(path), evs); err != nil {
			fmt.Fprintln(os.Stderr, "replay:", err)
			os.Exit(1)
		}
	}

	for _, r := range rp.runs {
		if *asJSON {
			b, _ := json.Marshal(r)
			fmt.Println(string(b))
			continue
		}
		fmt.Printf("%-10s ticks=%d..%d state=%s code=%s total=%d processed=%d failed=%d dropped=%d notices=%d\n",
			r.Run, r.StartTick, r.EndTick, r.State, r.Code, r.Total, r.Processed, r.Failed, r.Dropped, r.Notices)
	}
	open := rp.open()
	fmt.Printf("replay ok: events=%d runs=%d open=%d\n", rp.events, len(rp.runs), len(open))
	if len(open) > 0 {
		fmt.Printf("still running at end of log: %s\n", strings.Join(open, ","))
	}
}

func listEventFiles(dir string) ([]string, error) {
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
		if strings.HasPrefix(name, "events-") && strings.HasSuffix(name, ".jsonl.zst") {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	out := make([]string, 0, len(names))
	for _, name := range names {
		out = append(out, filepath.Join(dir, name))
	}
	return out, nil
}

type runSummary struct {
	Run       string `json:"run"`
	Planet    int    `json:"planet"`
	StartTick uint64 `json:"start_tick"`
	EndTick   uint64 `json:"end_tick"`
	State     string `json:"state"`
	Code      string `json:"code,omitempty"`
	Total     int    `json:"total"`
	Processed int    `json:"processed"`
	Failed    int    `json:"failed"`
	Dropped   int    `json:"dropped"`
	Notices   int    `json:"notices"`
}

// replayer folds the event stream back into completed runs and checks the
// ordering guarantees the session gives: ticks never go backwards, a run
// name has at most one open run, and RUN_END accounts for every item.
type replayer struct {
	only     string
	from, to uint64

	lastTick uint64
	events   int
	active   map[string]*runSummary
	runs     []runSummary
}

func newReplayer(only string, from, to uint64) *replayer {
	return &replayer{only: only, from: from, to: to, active: map[string]*runSummary{}}
}

func (r *replayer) feed(file string, evs []protocol.Event) error {
	for i, ev := range evs {
		if ev.Tick < r.lastTick {
			return fmt.Errorf("%s:%d: tick went backwards: %d after %d", file, i+1, ev.Tick, r.lastTick)
		}
		r.lastTick = ev.Tick
		if ev.Tick < r.from || (r.to != 0 && ev.Tick > r.to) {
			continue
		}
		if r.only != "" && ev.Run != r.only {
			continue
		}
		r.events++

		switch ev.Type {
		case protocol.EventRunStart:
			if cur := r.active[ev.Run]; cur != nil {
				return fmt.Errorf("%s:%d: %s started at tick %d while open since %d", file, i+1, ev.Run, ev.Tick, cur.StartTick)
			}
			r.active[ev.Run] = &runSummary{Run: ev.Run, Planet: ev.Planet, StartTick: ev.Tick, Total: ev.Total}
		case protocol.EventNotice:
			if cur := r.active[ev.Run]; cur != nil {
				cur.Notices++
			}
		case protocol.EventRunEnd:
			cur := r.active[ev.Run]
			if cur == nil {
				// Started before the verified window.
				cur = &runSummary{Run: ev.Run, Planet: ev.Planet, StartTick: ev.Tick}
			}
			delete(r.active, ev.Run)
			cur.EndTick = ev.Tick
			cur.State = ev.State
			cur.Code = ev.Code
			cur.Total = ev.Total
			cur.Processed = ev.Processed
			cur.Failed = ev.Failed
			cur.Dropped = ev.Dropped
			if ev.Total > 0 && ev.Processed+ev.Dropped != ev.Total {
				return fmt.Errorf("%s:%d: %s at tick %d: processed=%d dropped=%d total=%d", file, i+1, ev.Run, ev.Tick, ev.Processed, ev.Dropped, ev.Total)
			}
			r.runs = append(r.runs, *cur)
		}
	}
	return nil
}

func (r *replayer) open() []string {
	out := make([]string, 0, len(r.active))
	for name := range r.active {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
