package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"lead_engine/admin"
	"lead_engine/models"
	"lead_engine/scheduler"
	"lead_engine/workers"
)

const shutdownTimeout = 10 * time.Second

var configPath string

var rootCmd = &cobra.Command{
	Use:   "lead_engine",
	Short: "Lead generation engine",
	Long:  "Runs campaigns on a schedule: scrapes configured sources, qualifies each record with a local model pool and stores the scored leads.",
	Args:  cobra.NoArgs,
	Run:   runDaemon,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to the engine YAML document (default $CONFIG_PATH or config.yaml)")
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runDaemon(_ *cobra.Command, _ []string) {
	log.Println("Starting lead_engine...")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := newApp(ctx, configPath)
	if err != nil {
		log.Fatalf("Failed to start: %v", err)
	}
	defer a.Close()

	a.verifyInference(ctx)

	healthWorker := workers.NewHealthcheckWorker(a.ai, a.events)
	healthWorker.AddDependency("postgres", a.pg)
	if a.redis != nil {
		healthWorker.AddDependency("redis", a.redis)
	}
	healthWorker.SetLogger(func(level models.LogLevel, scope, message string) {
		a.sqlite.Log(nil, level, message, scope)
	})
	if a.env.HealthcheckMins > 0 {
		go healthWorker.Run(ctx, time.Duration(a.env.HealthcheckMins)*time.Minute)
		log.Printf("Healthcheck worker started (every %d min)", a.env.HealthcheckMins)
	}

	sched := scheduler.New(a.holder, a.orchestrator, a.sqlite)
	sched.SetWorkers(healthWorker)
	if err := sched.Start(ctx); err != nil {
		log.Fatalf("Failed to start scheduler: %v", err)
	}

	var adminSrv *admin.Server
	if a.env.AdminAddr != "" {
		deps := admin.Deps{
			Config:  a.holder,
			Engine:  a.orchestrator,
			Control: sched,
			Runs:    a.sqlite,
			Leads:   a.pg,
			Health:  healthWorker,
			Quota:   a.quota,
		}
		if a.redis != nil {
			deps.Publisher = a.redis
		}
		adminSrv = admin.New(a.env.AdminAddr, deps)
		adminSrv.Start()
	}

	if a.redis != nil {
		go sched.WatchReloads(ctx, a.redis.SubscribeReload(ctx))
	}

	hup := make(chan struct{}, 1)
	go sched.WatchReloads(ctx, hup)

	log.Println("Daemon running. Press Ctrl+C to stop.")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	for sig := range sigCh {
		if sig == syscall.SIGHUP {
			select {
			case hup <- struct{}{}:
			default:
			}
			continue
		}
		break
	}

	log.Println("Shutting down...")
	cancel()
	if adminSrv != nil {
		shutdownCtx, done := context.WithTimeout(context.Background(), shutdownTimeout)
		if err := adminSrv.Shutdown(shutdownCtx); err != nil {
			log.Printf("[warn] admin shutdown: %v", err)
		}
		done()
	}
	sched.Stop()
	log.Println("Goodbye!")
}
