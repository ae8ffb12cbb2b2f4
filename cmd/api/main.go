package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"statuswise.org/internal/authz"
	"statuswise.org/internal/billing"
	"statuswise.org/internal/config"
	"statuswise.org/internal/entitlement"
	"statuswise.org/internal/group"
	"statuswise.org/internal/httpapi"
	"statuswise.org/internal/identity"
	"statuswise.org/internal/obs"
	"statuswise.org/internal/project"
	pgstore "statuswise.org/internal/store/pg"
	"statuswise.org/internal/stream"
)

var (
	version = "0.3.1"
	commit  = "dev"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	obs.Init()
	obs.InitBuildInfo(version, commit)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if errs := cfg.Validate(); errs != nil {
		for concern, msg := range errs {
			log.Printf("config %s: %s", concern, msg)
		}
		log.Fatal("invalid configuration")
	}

	// Stores: Postgres when a DSN is set, in-memory otherwise.
	var (
		users        identity.Store
		entitlements entitlement.Store
		projectStore project.Store
		groupStore   group.Store
		readyProbe   httpapi.ReadyProbe
	)
	if cfg.DatabaseDSN != "" {
		store, err := pgstore.Open(cfg.DatabaseDSN)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		defer func() { _ = store.Close() }()
		users = store
		entitlements = store
		projectStore = store
		groupStore = store
		readyProbe = httpapi.ReadyProbe{DB: store.DB()}
	} else {
		log.Println("no STATUSWISE_PG_DSN set, using in-memory stores")
		users = identity.NewInMemory()
		entitlements = entitlement.NewInMemory()
		projectStore = project.NewInMemory()
		groupStore = group.NewInMemory()
	}

	idSvc, err := identity.NewService(users, entitlements)
	if err != nil {
		log.Fatalf("identity service: %v", err)
	}
	engine, err := authz.NewEngine(entitlements, cfg.Gates)
	if err != nil {
		log.Fatalf("authz engine: %v", err)
	}
	engine.UseMembership(groupStore)
	groups, err := group.NewService(groupStore, users, engine)
	if err != nil {
		log.Fatalf("group service: %v", err)
	}
	events := stream.New()
	projects, err := project.NewService(projectStore, engine, entitlements, cfg.Limits, events, groupStore)
	if err != nil {
		log.Fatalf("project service: %v", err)
	}

	var reconciler *billing.Reconciler
	if cfg.BillingEnabled {
		reconciler, err = billing.NewReconciler(cfg.WebhookSecret, users, entitlements)
		if err != nil {
			log.Fatalf("billing reconciler: %v", err)
		}
	}

	if cfg.BootstrapAdminEmail != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := idSvc.BootstrapAdmin(ctx, cfg.BootstrapAdminEmail); err != nil {
			log.Printf("bootstrap admin: %v", err)
		}
		cancel()
	}

	api := httpapi.New(readyProbe, version, httpapi.Services{
		Identity:     idSvc,
		Engine:       engine,
		Entitlements: entitlements,
		Projects:     projects,
		Groups:       groups,
		Reconciler:   reconciler,
		Stream:       events,
		AdminEnabled: cfg.AdminEnabled,
	})

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting statuswise-api %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	log.Println("Stopped")
}
