package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"

	"github.com/zoworld/eventsync/functions/gateway/constants"
	"github.com/zoworld/eventsync/functions/gateway/interfaces"
	"github.com/zoworld/eventsync/functions/gateway/services"
	"github.com/zoworld/eventsync/functions/gateway/types"
)

type pinger interface {
	Ping(ctx context.Context) error
}

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	spec := os.Getenv("SYNC_CRON")
	if spec == "" {
		spec = constants.DEFAULT_SYNC_CRON
	}
	scheduler, err := newScheduler(ctx, spec, services.GetSyncService(ctx))
	if err != nil {
		log.Fatalf("ERR: %v", err)
	}
	scheduler.Start()
	defer func() { <-scheduler.Stop().Done() }()

	port := os.Getenv("SYNCJOBS_PORT")
	if port == "" {
		port = "8080"
	}
	server := &http.Server{
		Addr:              ":" + port,
		Handler:           newRouter(services.GetPostgresService(ctx)),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	log.Printf("syncjobs scheduled on %q, listening on :%s", spec, port)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("ERR: %v", err)
	}
}

// newScheduler runs an apply-mode sync on spec. SkipIfStillRunning keeps a slow pass from
// overlapping the next tick.
func newScheduler(ctx context.Context, spec string, runner interfaces.SyncRunnerInterface) (*cron.Cron, error) {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)))
	if _, err := c.AddFunc(spec, func() { runScheduledSync(ctx, runner) }); err != nil {
		return nil, fmt.Errorf("invalid SYNC_CRON %q: %w", spec, err)
	}
	return c, nil
}

func runScheduledSync(ctx context.Context, runner interfaces.SyncRunnerInterface) *types.SyncRun {
	run, err := runner.RunSync(ctx, types.SyncOptions{DryRun: false})
	if err != nil {
		log.Printf("ERR: scheduled sync: %v", err)
		return nil
	}
	log.Printf("scheduled sync %s finished in %dms: %d calendars, %d failed", run.ID, run.DurationMs, run.Stats.Totals.Calendars, run.Stats.Totals.CalendarsFailed)
	return run
}

func newRouter(db pinger) *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/pingdb", pingDBHandler(db)).Methods("GET")
	return r
}

func pingDBHandler(db pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if db == nil {
			http.Error(w, "DB not configured", http.StatusInternalServerError)
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		if err := db.Ping(ctx); err != nil {
			log.Println("Ping error:", err)
			http.Error(w, "DB not reachable", http.StatusInternalServerError)
			return
		}
		fmt.Fprintln(w, "Successfully connected to the DB!")
	}
}
