// kaiwa-server - relay between chat clients and the Groq API.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jeranaias/kaiwa/internal/config"
	"github.com/jeranaias/kaiwa/internal/groq"
	"github.com/jeranaias/kaiwa/internal/relay"
)

func main() {
	var (
		configPath = flag.String("config", "", "path to config file (default ~/.kaiwa/config.toml)")
		port       = flag.Int("port", 0, "listen port (overrides config)")
		model      = flag.String("model", "", "upstream model (overrides config)")
	)
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if *model != "" {
		cfg.Upstream.Model = *model
	}

	if cfg.Upstream.APIKey == "" {
		fmt.Fprintln(os.Stderr, "Error: no Groq API key configured (set GROQ_API_KEY or upstream.api_key)")
		os.Exit(1)
	}

	server := relay.NewServer(cfg.Server.Port, buildProvider(cfg))
	if len(cfg.Server.AllowedOrigins) > 0 {
		cors := relay.DefaultCORSConfig()
		cors.AllowedOrigins = cfg.Server.AllowedOrigins
		server.WithCORS(cors)
	}
	if cfg.Server.RateLimitPerSec > 0 {
		server.WithRateLimiter(relay.NewRateLimiter(cfg.Server.RateLimitPerSec, cfg.Server.RateLimitBurst))
	}

	// Hot reload: upstream settings apply to new requests without a
	// restart. Port changes still need one.
	watcher := watchConfig(*configPath, server)
	if watcher != nil {
		defer watcher.Close()
	}

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			log.Printf("SERVER_FAILED | error=%v", err)
			os.Exit(1)
		}
	case sig := <-sigCh:
		log.Printf("SERVER_STOPPING | signal=%v", sig)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			log.Printf("SERVER_SHUTDOWN_FAILED | error=%v", err)
			os.Exit(1)
		}
		log.Printf("SERVER_STOPPED")
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFromPath(path)
	}
	return config.Load()
}

func buildProvider(cfg *config.Config) relay.Provider {
	client := groq.NewClientWithConfig(&groq.ClientConfig{
		BaseURL:   cfg.Upstream.BaseURL,
		APIKey:    cfg.Upstream.APIKey,
		Model:     cfg.Upstream.Model,
		MaxTokens: cfg.Upstream.MaxTokens,
		Timeout:   cfg.UpstreamTimeout(),
	})
	return relay.NewGroqProvider(client)
}

func watchConfig(path string, server *relay.Server) *config.Watcher {
	if path == "" {
		defaultPath, err := config.ConfigPath()
		if err != nil {
			return nil
		}
		path = defaultPath
	}
	if _, err := os.Stat(path); err != nil {
		return nil
	}

	watcher, err := config.Watch(path, func(cfg *config.Config) {
		server.SetProvider(buildProvider(cfg))
	})
	if err != nil {
		log.Printf("CONFIG_WATCH_FAILED | path=%s error=%v", path, err)
		return nil
	}
	return watcher
}
