package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/larkela/chunkline/internal/auth"
	"github.com/larkela/chunkline/internal/config"
	"github.com/larkela/chunkline/internal/reminder"
	"github.com/larkela/chunkline/internal/server"
	"github.com/larkela/chunkline/internal/storage"
	"github.com/larkela/chunkline/internal/tracker"
)

func main() {
	var (
		addr    = flag.String("addr", "", "listen address (overrides CHUNKLINE_HOST/CHUNKLINE_PORT)")
		dataDir = flag.String("data", "", "data directory (overrides CHUNKLINE_DATA_DIR)")
	)
	flag.Parse()

	log := logrus.New()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	if *dataDir != "" {
		cfg.DataDir = *dataDir
	}

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.WithFields(logrus.Fields{"level": cfg.LogLevel}).Warn("Unknown log level, using info")
		level = logrus.InfoLevel
	}
	log.SetLevel(level)

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		log.Fatal(err)
	}

	store, err := storage.Open(cfg.DatabasePath(), storage.Options{
		BusyTimeout: 5 * time.Second,
	})
	if err != nil {
		log.Fatal(err)
	}
	defer store.Close()

	var authManager *auth.Manager
	if cfg.AuthEnabled {
		authManager = auth.NewManager(store, cfg.TokenTTL)
		password, err := authManager.InitializePairing()
		if err != nil {
			log.Fatal(err)
		}
		if password != "" {
			// Shown exactly once, on first run.
			fmt.Println("========================================")
			fmt.Println("Pairing password (enter it in the client):")
			fmt.Printf("  %s\n", password)
			fmt.Println("========================================")
		}
	}

	listenAddr := cfg.ServerAddress()
	if *addr != "" {
		listenAddr = *addr
	}

	s := server.New(server.Options{
		Addr:        listenAddr,
		Store:       store,
		AuthManager: authManager,
		TrackerConfig: tracker.Config{
			ConfirmationWait: cfg.ConfirmationWait,
			DebounceWindow:   cfg.DebounceWindow,
		},
		AllowedOrigin: cfg.AllowedOrigins[0],
		Log:           log,
	})

	sched := reminder.New(store, s.Hub(), log)
	s.SetReminder(sched)
	sched.Start()
	defer sched.Close()

	// graceful-ish stop
	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
		<-ch
		log.Info("shutting down...")
		sched.Close()
		_ = s.Close()
	}()

	log.WithFields(logrus.Fields{"addr": listenAddr, "data": cfg.DataDir}).Info("chunkline listening")
	log.Fatal(s.Start())
}
