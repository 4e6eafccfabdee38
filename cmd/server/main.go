package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	persistlog "reformkit/internal/persistence/log"
	"reformkit/internal/protocol"
	"reformkit/internal/sim/hostsim"
	"reformkit/internal/sim/loop"
	"reformkit/internal/sim/session"
	"reformkit/internal/sim/tuning"
	"reformkit/internal/transport/observer"
	"reformkit/internal/transport/ws"
)

func main() {
	var (
		addr          = flag.String("addr", ":8080", "http listen address")
		configDir     = flag.String("configs", "./configs", "config directory")
		dataDir       = flag.String("data", "./data", "runtime data directory")
		tuningPath    = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		disableDB     = flag.Bool("disable_db", false, "disable the sqlite run ledger")
		controlPublic = flag.Bool("control_public", false, "accept control connections from non-loopback addresses")

		hw = hostWorldConfig{}
	)
	flag.IntVar(&hw.PlanetID, "planet", 1, "planet id")
	flag.Float64Var(&hw.Radius, "planet_radius", 200, "planet radius")
	flag.IntVar(&hw.Rows, "planet_rows", 200, "latitude rows of the reform grid (even)")
	flag.IntVar(&hw.EquatorWidth, "planet_equator_width", 1000, "cells in an equator row")
	flag.IntVar(&hw.Bands, "planet_bands", 5, "row width steps between equator and pole")
	flag.IntVar(&hw.RawPerCell, "planet_raw_per_cell", 2, "raw terrain samples per cell per axis")
	flag.Int64Var(&hw.Seed, "seed", 1337, "seed for the demo factory and veins")
	flag.IntVar(&hw.Entities, "entities", 500, "demo factory entities")
	flag.IntVar(&hw.Ghosts, "ghosts", 50, "demo factory ghosts")
	flag.IntVar(&hw.Veins, "veins", 40, "ore veins")
	flag.IntVar(&hw.Foundation, "foundation", 50000, "starting foundation count")
	flag.IntVar(&hw.Soil, "soil", 0, "starting soil pile")
	flag.IntVar(&hw.SoilPerFlatten, "soil_per_flatten", 3, "soil produced by levelling one natural cell")
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)
	sessLogger := log.New(os.Stdout, "[session] ", log.LstdFlags|log.Lmicroseconds)

	_ = os.MkdirAll(*dataDir, 0o755)

	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}
	tune, err := tuning.Load(tp)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Fatalf("load tuning: %v", err)
		}
		logger.Printf("tuning not found (%s); using defaults", tp)
		tune = tuning.Defaults()
	}

	// Optional: run ledger (does not affect the simulation).
	idx, err := openRuntimeIndex(*dataDir, *disableDB)
	if err != nil {
		logger.Fatalf("open index backend: %v", err)
	}
	if idx != nil {
		defer idx.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		digest, err := idx.UpsertTuning(ctx, tune)
		cancel()
		if err != nil {
			logger.Printf("index backend: upsert tuning: %v", err)
		} else {
			logger.Printf("tuning digest=%s", digest[:12])
		}
	}

	world := buildHostWorld(hw)
	notices := &hostsim.Notices{Logger: sessLogger, Limit: 256}
	sess := session.New(tune, session.Host{
		Entities:      world.factories,
		Inventory:     world.inventory,
		Notifier:      notices,
		ActiveFactory: world.factories.Active,
	}, sessLogger)
	if idx != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		text, ok, err := idx.LoadRegions(ctx, hw.PlanetID)
		cancel()
		switch {
		case err != nil:
			logger.Printf("index backend: load regions: %v", err)
		case ok:
			logger.Printf("restored %d region(s) for planet %d", sess.SetRegions(text), hw.PlanetID)
		}
	}
	sess.OnPlanetChanged(world.planet, world.terrain, world.terrain)

	runLog := persistlog.NewRunLogger(*dataDir)
	auditLog := persistlog.NewAuditLogger(*dataDir)
	defer runLog.Close()
	defer auditLog.Close()
	sess.SetEventLogger(multiEventLogger{a: runLog, b: idx})

	lp := loop.New(loop.Config{TickRateHz: tune.TickRateHz}, sess, logger)
	if idx != nil {
		lp.SetRegionSink(func(planet int, text string) {
			go func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := idx.SaveRegions(ctx, planet, text); err != nil {
					logger.Printf("index backend: save regions: %v", err)
				}
			}()
		})
	}

	ctx, cancel := signalContext()
	defer cancel()

	go func() {
		if err := lp.Run(ctx); err != nil && err != context.Canceled {
			logger.Printf("loop stopped: %v", err)
		}
	}()

	control := ws.NewServer(lp, logger)
	control.AllowRemote = *controlPublic
	control.Audit = func(clientID string, cmd protocol.CommandMsg, ack protocol.AckMsg) {
		_ = auditLog.WriteAudit(persistlog.AuditEntry{
			Time:   time.Now().UTC(),
			Tick:   ack.Tick,
			Actor:  clientID,
			Action: cmd.Op,
			Detail: ack.Message,
			Code:   ack.Code,
		})
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", metricsHandler(lp, idx))

	enableAdminHTTP := envBool("RK_ENABLE_ADMIN_HTTP", defaultEnableAdminHTTP())
	enablePprofHTTP := envBool("RK_ENABLE_PPROF_HTTP", false)
	if enableAdminHTTP {
		// Local-only admin endpoints.
		mux.HandleFunc("/admin/v1/state", func(rw http.ResponseWriter, r *http.Request) {
			if !observer.IsLoopbackRemote(r.RemoteAddr) {
				http.Error(rw, "forbidden", http.StatusForbidden)
				return
			}
			rw.Header().Set("Content-Type", "application/json")
			resp := struct {
				Progress any        `json:"progress"`
				Stats    loop.Stats `json:"stats"`
			}{
				Progress: loop.ProgressMsg(lp.Snapshot()),
				Stats:    lp.Stats(),
			}
			_ = json.NewEncoder(rw).Encode(resp)
		})
		mux.HandleFunc("/admin/v1/runs", runsHandler(idx))
		mux.HandleFunc("/admin/v1/command", control.CommandHandler())

		obsSrv := observer.NewServer(lp, tune.TickRateHz, tune.WorkItemsPerTick, logger)
		mux.HandleFunc("/admin/v1/observer/bootstrap", obsSrv.BootstrapHandler())
		mux.HandleFunc("/admin/v1/observer/ws", obsSrv.WSHandler())
	} else {
		logger.Printf("admin endpoints disabled (RK_ENABLE_ADMIN_HTTP=false)")
	}
	if enablePprofHTTP {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	} else {
		logger.Printf("pprof endpoints disabled (RK_ENABLE_PPROF_HTTP=false)")
	}
	mux.HandleFunc("/v1/ws", control.Handler())

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Printf("planet %d: %d cells, %d entities, %d veins", hw.PlanetID, world.planet.CellCount(), hw.Entities, hw.Veins)
	logger.Printf("listening on %s", *addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
	}
}

func metricsHandler(lp *loop.Loop, idx runtimeIndex) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")

		snap := lp.Snapshot()
		st := lp.Stats()

		// Minimal Prometheus exposition format.
		fmt.Fprintf(rw, "# HELP reformkit_tick Current session tick.\n")
		fmt.Fprintf(rw, "# TYPE reformkit_tick gauge\n")
		fmt.Fprintf(rw, "reformkit_tick{planet=\"%d\"} %d\n", snap.PlanetID, snap.Tick)

		fmt.Fprintf(rw, "# HELP reformkit_index_fraction Surface index build progress (0..1).\n")
		fmt.Fprintf(rw, "# TYPE reformkit_index_fraction gauge\n")
		fmt.Fprintf(rw, "reformkit_index_fraction{planet=\"%d\"} %.6f\n", snap.PlanetID, snap.Index.Fraction())

		fmt.Fprintf(rw, "# HELP reformkit_run_items Work items of the current or last run.\n")
		fmt.Fprintf(rw, "# TYPE reformkit_run_items gauge\n")
		for _, run := range snap.Runs {
			fmt.Fprintf(rw, "reformkit_run_items{run=%q,state=%q,kind=%q} %d\n", run.Name, run.State.String(), "pending", run.Pending)
			fmt.Fprintf(rw, "reformkit_run_items{run=%q,state=%q,kind=%q} %d\n", run.Name, run.State.String(), "processed", run.Processed)
			fmt.Fprintf(rw, "reformkit_run_items{run=%q,state=%q,kind=%q} %d\n", run.Name, run.State.String(), "failed", run.Failed)
		}

		fmt.Fprintf(rw, "# HELP reformkit_commands_total Commands applied by the loop.\n")
		fmt.Fprintf(rw, "# TYPE reformkit_commands_total counter\n")
		fmt.Fprintf(rw, "reformkit_commands_total %d\n", st.Commands)

		fmt.Fprintf(rw, "# HELP reformkit_observers Connected observers.\n")
		fmt.Fprintf(rw, "# TYPE reformkit_observers gauge\n")
		fmt.Fprintf(rw, "reformkit_observers %d\n", st.Observers)

		fmt.Fprintf(rw, "# HELP reformkit_observer_dropped_total Progress frames dropped for slow observers.\n")
		fmt.Fprintf(rw, "# TYPE reformkit_observer_dropped_total counter\n")
		fmt.Fprintf(rw, "reformkit_observer_dropped_total %d\n", st.DroppedFrames)

		if idx != nil {
			is := idx.Stats()
			fmt.Fprintf(rw, "# HELP reformkit_index_queue_depth Run ledger writer backlog.\n")
			fmt.Fprintf(rw, "# TYPE reformkit_index_queue_depth gauge\n")
			fmt.Fprintf(rw, "reformkit_index_queue_depth %d\n", is.QueueDepth)
			fmt.Fprintf(rw, "# HELP reformkit_index_dropped_total Events the run ledger dropped.\n")
			fmt.Fprintf(rw, "# TYPE reformkit_index_dropped_total counter\n")
			fmt.Fprintf(rw, "reformkit_index_dropped_total %d\n", is.DropEventTotal)
		}
	}
}

func runsHandler(idx runtimeIndex) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !observer.IsLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		if idx == nil {
			http.Error(rw, "run ledger disabled", http.StatusServiceUnavailable)
			return
		}
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		runs, err := idx.RecentRuns(ctx, limit)
		if err != nil {
			http.Error(rw, err.Error(), http.StatusServiceUnavailable)
			return
		}
		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(map[string]any{"runs": runs})
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}

func defaultEnableAdminHTTP() bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("DEPLOY_ENV"))) {
	case "staging", "production":
		return false
	default:
		return true
	}
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
