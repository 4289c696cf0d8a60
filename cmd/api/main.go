package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pkigate.org/internal/account"
	"pkigate.org/internal/auth"
	"pkigate.org/internal/config"
	"pkigate.org/internal/directory"
	"pkigate.org/internal/groups"
	"pkigate.org/internal/httpapi"
	"pkigate.org/internal/obs"
	"pkigate.org/internal/policy"
	"pkigate.org/internal/session"
	"pkigate.org/internal/stream"
)

var (
	version = "0.3.0"
	commit  = "unknown"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", os.Getenv("PKIGATE_CONFIG"), "path to config file")
	flag.Parse()

	obs.Init()
	obs.InitBuildInfo(version, commit)

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	var (
		store account.Store
		probe httpapi.ReadyProbe
	)
	if cfg.DatabaseDSN != "" {
		pg, err := account.Open(cfg.DatabaseDSN)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		defer pg.Close()
		store = pg
		probe = httpapi.ReadyProbe{DB: pg.DB()}
	} else {
		// No DSN means local development against an in-process store.
		store = account.NewInMemory()
	}

	var dir directory.Client
	if cfg.DirectoryURL != "" {
		dir = directory.NewHTTPClient(cfg.DirectoryURL)
	} else {
		dir = directory.Static{}
	}

	var checker groups.Checker
	if cfg.GroupsURL != "" {
		checker = groups.NewHTTPChecker(cfg.GroupsURL)
	}

	pol := policy.New(policy.Config{
		SuperUsers:       cfg.SuperUsers,
		DefaultResources: cfg.DefaultResources,
		UseGroupPolicy:   cfg.UseGroupPolicy,
		Group:            cfg.Group,
		Project:          cfg.Project,
		ViewableUsers:    cfg.ViewableUsers,
	}, checker)

	reconciler := auth.NewReconciler(store, pol)
	authn := auth.NewAuthenticator(dir, reconciler, cfg.AuthKey)
	sessions := session.NewManager(cfg.AuthKey, cfg.CookieName, cfg.CookiePath, cfg.CookieSecure, cfg.SessionTTL)
	events := stream.New()

	api := httpapi.New(authn, sessions, store, events, probe, version)

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting pkigate-api %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()
	obs.SetReady(true)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")
	obs.SetReady(false)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	log.Println("Stopped")
}
