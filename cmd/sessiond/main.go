package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/cuemby/sessiond/pkg/agentrpc"
	"github.com/cuemby/sessiond/pkg/cache"
	"github.com/cuemby/sessiond/pkg/config"
	"github.com/cuemby/sessiond/pkg/events"
	"github.com/cuemby/sessiond/pkg/handlers"
	"github.com/cuemby/sessiond/pkg/health"
	"github.com/cuemby/sessiond/pkg/lock"
	"github.com/cuemby/sessiond/pkg/log"
	"github.com/cuemby/sessiond/pkg/manager"
	"github.com/cuemby/sessiond/pkg/metrics"
	"github.com/cuemby/sessiond/pkg/scheduler"
)

var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

var configPath string

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "sessiond",
	Short:   "Cluster session scheduler and lifecycle controller",
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("sessiond version %s\nCommit: %s\nBuilt: %s\n", Version, Commit, BuildTime))
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to the YAML config file (falls back to built-in defaults)")
	rootCmd.AddCommand(runCmd, joinCmd, statusCmd)
}

func loadConfig() (config.Config, error) {
	if configPath == "" {
		cfg := config.Default()
		return cfg, nil
	}
	return config.Load(configPath)
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Bootstrap a new cluster on this node and start the coordinator and health monitor",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		return serve(cfg, func(mgr *manager.Manager) error {
			return mgr.Bootstrap()
		})
	},
}

var joinCmd = &cobra.Command{
	Use:   "join <leader-addr>",
	Short: "Join an existing Raft cluster through its control listener",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		leaderAddr := args[0]
		return serve(cfg, func(mgr *manager.Manager) error {
			return mgr.Join(leaderAddr)
		})
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print this node's view of the Raft cluster and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		mgr, err := manager.NewManager(&manager.Config{
			NodeID:      cfg.Raft.NodeID,
			BindAddr:    cfg.Raft.BindAddr,
			ControlAddr: cfg.Raft.ControlAddr,
			DataDir:     cfg.Raft.DataDir,
		})
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer mgr.Close()

		stats := mgr.GetRaftStats()
		fmt.Printf("node:   %s\n", cfg.Raft.NodeID)
		for k, v := range stats {
			fmt.Printf("%s: %v\n", k, v)
		}
		return nil
	},
}

// serve wires every long-running component and runs until signaled,
// delegating how this node enters the Raft cluster to join.
func serve(cfg config.Config, join func(*manager.Manager) error) error {
	log.Init(log.Config{Level: log.Level(cfg.Log.Level), JSONOutput: cfg.Log.JSONOutput})
	logger := log.WithComponent("main")

	mgr, err := manager.NewManager(&manager.Config{
		NodeID:      cfg.Raft.NodeID,
		BindAddr:    cfg.Raft.BindAddr,
		ControlAddr: cfg.Raft.ControlAddr,
		DataDir:     cfg.Raft.DataDir,
	})
	if err != nil {
		return fmt.Errorf("create manager: %w", err)
	}
	defer mgr.Close()

	if err := join(mgr); err != nil {
		return fmt.Errorf("join raft cluster: %w", err)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	locks := lock.NewService(redisClient)
	sessionCache := cache.New(redisClient)

	store := mgr.Store()
	agents := agentrpc.New(store, cfg.RPC.CheckTimeout())
	defer agents.Close()

	hooks := handlers.NewHookRegistry()
	handlerChain := []handlers.LifecycleHandler{
		handlers.NewSchedulePendingHandler(store, store, store),
		handlers.NewCheckPullingProgressHandler(),
		handlers.NewCheckCreatingProgressHandler(hooks),
		handlers.NewCheckTerminatingProgressHandler(store, store, hooks),
		handlers.NewCheckRunningSessionTerminationHandler(),
	}

	bus := mgr.GetEventBroker()
	coordinator := scheduler.New("default", handlerChain, store, store, locks, bus, scheduler.Config{
		TickInterval:       cfg.Scheduler.TickInterval(),
		Debounce:           cfg.Scheduler.Debounce(),
		LockAcquireTimeout: cfg.Scheduler.LockAcquireTimeout(),
	})
	coordinator.Start()
	defer coordinator.Stop()

	sub := bus.Subscribe()
	go relayScheduleTriggers(sub, coordinator, sessionCache, "default")
	defer bus.Unsubscribe(sub)

	monitor := health.NewMonitor(store, store, agents, cfg.Health.CheckInterval())
	monitor.Start()
	defer monitor.Stop()

	metrics.RegisterComponent("raft", true, "")
	metrics.RegisterComponent("store", true, "")
	metrics.RegisterComponent("redis", true, "")
	collector := manager.NewMetricsCollector(mgr)
	collector.Start()
	defer collector.Stop()

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.Handle("/health", metrics.HealthHandler())
	mux.Handle("/ready", metrics.ReadyHandler())
	mux.Handle("/live", metrics.LivenessHandler())
	httpServer := &http.Server{Addr: ":9090", Handler: mux}
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("metrics http server exited")
		}
	}()
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		httpServer.Shutdown(ctx)
	}()

	logger.Info().Str("node_id", cfg.Raft.NodeID).Msg("sessiond started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info().Msg("shutting down")
	return nil
}

// relayScheduleTriggers wakes the coordinator early whenever an event
// implies new scheduling work might be possible (a kernel freed resources,
// or an agent reported in), marking the cache flag first so a round that
// starts for an unrelated reason still sees it.
func relayScheduleTriggers(sub events.Subscriber, coordinator *scheduler.Coordinator, sessionCache *cache.Cache, scalingGroup string) {
	for event := range sub {
		switch event.Type {
		case events.EventKernelTerminated, events.EventAgentHeartbeat, events.EventSessionTerminated:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			_ = sessionCache.MarkScheduleNeeded(ctx, scalingGroup, time.Minute)
			cancel()
			coordinator.MarkSchedulingNeeded(string(event.Type))
		}
	}
}
