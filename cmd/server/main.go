package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/cfiore016/go-connect/internal/api"
	"github.com/cfiore016/go-connect/internal/config"
	"github.com/cfiore016/go-connect/internal/server"
	"github.com/cfiore016/go-connect/internal/stats"
	"github.com/cfiore016/go-connect/internal/store"
)

type stringSliceFlag []string

func (s *stringSliceFlag) String() string {
	return strings.Join(*s, ",")
}

func (s *stringSliceFlag) Set(value string) error {
	*s = append(*s, strings.Split(value, ",")...)
	return nil
}

var (
	addr           string
	dataDir        string
	signingSecret  string
	allowedOrigins stringSliceFlag
)

func main() {
	flag.StringVar(&addr, "addr", "", "server address")
	flag.StringVar(&dataDir, "data-dir", "", "message store directory")
	flag.StringVar(&signingSecret, "signing-secret", "", "base64 encoded token signing secret")
	flag.Var(&allowedOrigins, "allowed-origins", "comma-separated list of allowed origins for CORS")
	flag.Parse()

	logger := log.New(os.Stderr, "[go-connect] ", log.LstdFlags)

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("config:", err)
	}

	if addr != "" {
		cfg.ServerAddr = addr
	}
	if dataDir != "" {
		cfg.DataDir = dataDir
	}
	if signingSecret != "" {
		cfg.SigningSecret = signingSecret
	}
	if len(allowedOrigins) > 0 {
		cfg.AllowedOrigins = allowedOrigins
	}

	if err := cfg.Finalize(); err != nil {
		logger.Fatal("config:", err)
	}

	db, err := store.Open(cfg.DataDir)
	if err != nil {
		logger.Fatal("store open:", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Fatal("store close:", err)
		}
	}()

	mux := http.NewServeMux()

	statsUpdater := stats.NewStatsUpdater(mux)

	chatServer, err := server.NewChatServer(logger, db, statsUpdater)
	if err != nil {
		logger.Fatal("new chat server:", err)
	}

	srv := api.NewApp(mux, logger, chatServer, db, cfg)

	statsUpdater.Run()
	defer statsUpdater.Stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigs:
		logger.Printf("received signal: %s\n", sig)
	case err := <-errCh:
		logger.Println("server:", err)
	}

	shutDownCtx, cancel := context.WithTimeout(
		context.Background(),
		10*time.Second,
	)
	defer cancel()

	if err := srv.Shutdown(shutDownCtx); err != nil {
		logger.Fatalln("HTTP server shutdown:", err)
	}

	logger.Println("shutting down chat server...")
	if err := chatServer.Shutdown(shutDownCtx); err != nil {
		logger.Fatalln("chat server shutdown:", err)
	}

	logger.Println("shutdown complete")
}
