package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"hemoclast.online/internal/persistence/indexdb"
	persistlog "hemoclast.online/internal/persistence/log"
	"hemoclast.online/internal/sim/catalogs"
	"hemoclast.online/internal/sim/loot"
	"hemoclast.online/internal/sim/tuning"
	"hemoclast.online/internal/transport/ws"
)

func main() {
	var (
		addr       = flag.String("addr", ":8080", "http listen address")
		tableID    = flag.String("table", "table_1", "loot table id")
		seed       = flag.Int64("seed", 1337, "roll value seed")
		configDir  = flag.String("configs", "./configs", "config directory")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		disableDB  = flag.Bool("disable_db", false, "disable the roster read-model db")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	cats, err := catalogs.Load(*configDir)
	if err != nil {
		logger.Fatalf("load catalogs: %v", err)
	}

	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}
	tune, err := tuning.Load(tp)
	if err != nil {
		logger.Fatalf("load tuning: %v", err)
	}

	tableDir := filepath.Join(*dataDir, "tables", *tableID)
	_ = os.MkdirAll(tableDir, 0o755)

	// Optional: roster read-model (does not affect arbitration determinism).
	var roster *indexdb.SQLiteRoster
	if !*disableDB {
		roster, err = indexdb.OpenSQLite(filepath.Join(tableDir, "roster.db"))
		if err != nil {
			logger.Fatalf("open roster db: %v", err)
		}
		defer roster.Close()
		if err := roster.UpsertCatalogs(*configDir, cats, tune); err != nil {
			logger.Printf("roster db: upsert catalogs: %v", err)
		}
	}

	table, err := loot.New(loot.TableConfig{
		ID:                 *tableID,
		TickRateHz:         tune.TickRateHz,
		Seed:               *seed,
		RollWindowTicks:    tune.RollWindowTicks,
		AnnounceGraceTicks: tune.AnnounceGraceTicks,
		AutoClaimTicks:     tune.AutoClaimTicks,
		RateLimits: loot.RateLimitConfig{
			RollWindowTicks:  uint64(tune.RateLimits.RollWindowTicks),
			RollMax:          tune.RateLimits.RollMax,
			AwardWindowTicks: uint64(tune.RateLimits.AwardWindowTicks),
			AwardMax:         tune.RateLimits.AwardMax,
		},
	}, cats)
	if err != nil {
		logger.Fatalf("table: %v", err)
	}

	ctx, cancel := signalContext()
	defer cancel()

	journal := persistlog.NewJournalLogger(tableDir)
	defer journal.Close()
	table.SetJournal(journal)
	if roster != nil {
		table.SetRoster(roster)
	}
	table.SetLogger(logger)

	go func() {
		if err := table.Run(ctx); err != nil && err != context.Canceled {
			logger.Printf("table stopped: %v", err)
		}
	}()

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")

		m := table.Metrics()
		tick := table.CurrentTick()
		if m.Tick != 0 {
			tick = m.Tick
		}

		// Minimal Prometheus exposition format.
		fmt.Fprintf(rw, "# HELP hemoclast_table_tick Current table tick.\n")
		fmt.Fprintf(rw, "# TYPE hemoclast_table_tick gauge\n")
		fmt.Fprintf(rw, "hemoclast_table_tick{table=%q} %d\n", *tableID, tick)

		fmt.Fprintf(rw, "# HELP hemoclast_table_members Current number of party members.\n")
		fmt.Fprintf(rw, "# TYPE hemoclast_table_members gauge\n")
		fmt.Fprintf(rw, "hemoclast_table_members{table=%q} %d\n", *tableID, m.Members)

		fmt.Fprintf(rw, "# HELP hemoclast_table_clients Current number of connected clients.\n")
		fmt.Fprintf(rw, "# TYPE hemoclast_table_clients gauge\n")
		fmt.Fprintf(rw, "hemoclast_table_clients{table=%q} %d\n", *tableID, m.Clients)

		fmt.Fprintf(rw, "# HELP hemoclast_table_active_entries Live loot entries awaiting resolution or claim.\n")
		fmt.Fprintf(rw, "# TYPE hemoclast_table_active_entries gauge\n")
		fmt.Fprintf(rw, "hemoclast_table_active_entries{table=%q} %d\n", *tableID, m.ActiveEntries)

		fmt.Fprintf(rw, "# HELP hemoclast_table_queue_depth Channel backlog depth.\n")
		fmt.Fprintf(rw, "# TYPE hemoclast_table_queue_depth gauge\n")
		fmt.Fprintf(rw, "hemoclast_table_queue_depth{table=%q,queue=%q} %d\n", *tableID, "inbox", m.QueueDepths.Inbox)
		fmt.Fprintf(rw, "hemoclast_table_queue_depth{table=%q,queue=%q} %d\n", *tableID, "join", m.QueueDepths.Join)
		fmt.Fprintf(rw, "hemoclast_table_queue_depth{table=%q,queue=%q} %d\n", *tableID, "leave", m.QueueDepths.Leave)

		fmt.Fprintf(rw, "# HELP hemoclast_table_step_ms Last tick step duration in milliseconds.\n")
		fmt.Fprintf(rw, "# TYPE hemoclast_table_step_ms gauge\n")
		fmt.Fprintf(rw, "hemoclast_table_step_ms{table=%q} %.3f\n", *tableID, m.StepMS)
	})

	if envBool("HC_ENABLE_ADMIN_HTTP", defaultEnableAdminHTTP()) {
		// Local-only admin endpoint (does not affect table determinism).
		mux.HandleFunc("/admin/v1/state", func(rw http.ResponseWriter, r *http.Request) {
			if !isLoopbackRemote(r.RemoteAddr) {
				http.Error(rw, "forbidden", http.StatusForbidden)
				return
			}
			rw.Header().Set("Content-Type", "application/json")
			resp := struct {
				TableID string            `json:"table_id"`
				Tick    uint64            `json:"tick"`
				Metrics loot.TableMetrics `json:"metrics"`
			}{
				TableID: *tableID,
				Tick:    table.CurrentTick(),
				Metrics: table.Metrics(),
			}
			_ = json.NewEncoder(rw).Encode(resp)
		})
	} else {
		logger.Printf("admin endpoints disabled (HC_ENABLE_ADMIN_HTTP=false)")
	}

	mux.HandleFunc("/v1/ws", ws.NewServer(table, logger).Handler())

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

	logger.Printf("listening on %s", *addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
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

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func envBool(name string, def bool) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(name)))
	switch v {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return def
	}
}

func defaultEnableAdminHTTP() bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("DEPLOY_ENV"))) {
	case "staging", "production":
		return false
	default:
		return true
	}
}
