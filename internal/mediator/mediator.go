package mediator

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"vidgen/config"
	"vidgen/internal/clients/veo"
	"vidgen/internal/credentials"
	"vidgen/internal/dependencies"
	"vidgen/internal/generation"
	"vidgen/internal/media"
	"vidgen/internal/services"
	"vidgen/internal/studio"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"
)

type App struct {
	api    *services.Api
	rpc    *dependencies.Rpc
	hub    *services.Hub
	studio *studio.Controller
	// settings
	Config *config.Config
}

func NewApp(cfg config.Config) (*App, error) {
	setLogLevel(cfg.Log.Level)

	store, err := newMediaStore(cfg.Media)
	if err != nil {
		return nil, fmt.Errorf("error creating newapp: %w", err)
	}

	source := credentials.EnvSource(cfg.Generation.KeyEnv())
	initial := cfg.Generation.ApiKey
	if strings.TrimSpace(initial) == "" {
		initial = source()
	}
	keys := credentials.NewStore(initial, source)

	generator, err := newGenerator(cfg.Generation, keys, store)
	if err != nil {
		return nil, fmt.Errorf("error creating newapp: %w", err)
	}

	ctrl, err := studio.NewController(studio.Options{
		Gate:     keys,
		Workflow: generator,
		Media:    store,
	})
	if err != nil {
		return nil, fmt.Errorf("error creating newapp: %w", err)
	}

	hub := services.NewHub()
	ctrl.Subscribe(func(s studio.Snapshot) {
		hub.Broadcast(services.StateEvent(s))
	})

	var rpc *dependencies.Rpc
	if strings.TrimSpace(cfg.Rpc.Port) != "" {
		rpc = dependencies.NewRpc(cfg.Rpc.Port)
		ctrl.Subscribe(rpc.Observe)
	}

	ctrl.Init(context.Background())

	return &App{
		api:    services.NewApi(cfg.Api, ctrl, keys, store, hub),
		rpc:    rpc,
		hub:    hub,
		studio: ctrl,
		Config: &cfg,
	}, nil
}

// Start blocks until the HTTP server or the rpc listener stops.
func (a *App) Start() error {
	var g errgroup.Group
	g.Go(a.api.Start)
	if a.rpc != nil {
		g.Go(a.rpc.Start)
	}
	return g.Wait()
}

func (a *App) Shutdown() {
	if err := a.api.Shutdown(); err != nil {
		log.Error("api shutdown failed", "err", err)
	}
	a.studio.Shutdown()
	a.hub.Shutdown()

	if a.rpc != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := a.rpc.Close(ctx); err != nil {
			log.Error("rpc shutdown failed", "err", err)
		}
	}
}

func newMediaStore(cfg config.MediaConfig) (media.Store, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "", "memory":
		return media.NewMemoryStore(cfg.UrlPrefix), nil
	case "disk":
		return media.NewDiskStore(cfg.Dir, cfg.UrlPrefix)
	case "minio":
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return media.NewMinioStore(ctx, media.MinioOptions{
			Endpoint:  cfg.Minio.Endpoint,
			AccessKey: cfg.Minio.AccessKey,
			SecretKey: cfg.Minio.SecretKey,
			Bucket:    cfg.Minio.Bucket,
			Prefix:    cfg.Minio.Prefix,
			UseSSL:    cfg.Minio.UseSSL,
		}, cfg.UrlPrefix)
	default:
		return nil, fmt.Errorf("unknown media backend %q", cfg.Backend)
	}
}

func newGenerator(cfg config.GenerationConfig, keys *credentials.Store, store media.Store) (*generation.Generator, error) {
	interval, err := cfg.PollEvery()
	if err != nil {
		return nil, err
	}
	maxWait, err := cfg.MaxWaitFor()
	if err != nil {
		return nil, err
	}
	downloadTimeout, err := cfg.DownloadTimeoutFor()
	if err != nil {
		return nil, err
	}

	return generation.NewGenerator(generation.Options{
		Dial: generation.VeoDialer(veo.Options{
			BaseURL: cfg.BaseUrl,
			Model:   cfg.Model,
		}),
		APIKey:       keys.APIKey,
		Media:        store,
		HTTPClient:   &http.Client{Timeout: downloadTimeout},
		Resolution:   cfg.Resolution,
		PollInterval: interval,
		MaxWait:      maxWait,
	})
}

func setLogLevel(level string) {
	if strings.TrimSpace(level) == "" {
		return
	}
	lvl, err := log.ParseLevel(level)
	if err != nil {
		log.Warn("unknown log level, keeping default", "level", level)
		return
	}
	log.SetLevel(lvl)
}
