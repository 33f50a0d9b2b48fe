package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/AssadourKH/NEWAIBOT/internal/catalog"
	"github.com/AssadourKH/NEWAIBOT/internal/config"
	"github.com/AssadourKH/NEWAIBOT/internal/flow"
	"github.com/AssadourKH/NEWAIBOT/internal/genai"
	"github.com/AssadourKH/NEWAIBOT/internal/lockfile"
	"github.com/AssadourKH/NEWAIBOT/internal/messaging"
	"github.com/AssadourKH/NEWAIBOT/internal/metrics"
	"github.com/AssadourKH/NEWAIBOT/internal/scheduler"
	"github.com/AssadourKH/NEWAIBOT/internal/store"
	"github.com/AssadourKH/NEWAIBOT/internal/twiliowhatsapp"
	"github.com/AssadourKH/NEWAIBOT/internal/whatsapp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"
)

// Messaging providers accepted by RunConfig.Provider.
const (
	ProviderMeta      = "meta"
	ProviderTwilio    = "twilio"
	ProviderWhatsmeow = "whatsmeow"
)

// RunConfig collects everything Run needs to assemble the bot.
type RunConfig struct {
	Provider    string
	StateDir    string
	DatabaseURL string // empty keeps all data in memory
	ProfilePath string // empty uses the embedded profile
	CatalogPath string // CSV snapshot; empty starts with an empty catalog
	// CatalogReloadSpec is the cron spec for re-reading CatalogPath.
	CatalogReloadSpec string

	Meta     []messaging.MetaOption
	Twilio   []twiliowhatsapp.Option
	WhatsApp []whatsapp.Option
	GenAI    []genai.Option
	API      []Option
}

// bot is the assembled runtime.
type bot struct {
	server *Server
	svc    messaging.Service
	proc   *flow.Processor
	sched  *scheduler.Scheduler
	window time.Duration
}

// Run assembles the store, catalog, model client, messaging service and HTTP
// server, then serves until ctx is cancelled.
func Run(ctx context.Context, cfg RunConfig) error {
	slog.Debug("api.Run: starting", "provider", cfg.Provider, "state_dir", cfg.StateDir, "dsn_set", cfg.DatabaseURL != "")

	lock, err := lockfile.AcquireLock(cfg.StateDir)
	if err != nil {
		return err
	}
	defer func() {
		if err := lock.Release(); err != nil {
			slog.Warn("api.Run: failed to release state lock", "error", err)
		}
	}()

	profile, err := config.Load(cfg.ProfilePath)
	if err != nil {
		return fmt.Errorf("failed to load profile: %w", err)
	}

	st, err := store.Open(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer func() {
		if err := st.Close(); err != nil {
			slog.Warn("api.Run: failed to close store", "error", err)
		}
	}()
	if err := seedBranches(ctx, st, profile.Branches); err != nil {
		return err
	}

	cat, err := loadCatalog(cfg.CatalogPath)
	if err != nil {
		return err
	}

	model, err := genai.NewClient(cfg.GenAI...)
	if err != nil {
		return fmt.Errorf("failed to create model client: %w", err)
	}

	svc, err := newMessagingService(ctx, cfg, profile, cat)
	if err != nil {
		return err
	}
	if dedup, ok := st.(store.DedupRepo); ok {
		if d, ok := svc.(interface{ SetDeduper(messaging.Deduper) }); ok {
			d.SetDeduper(dedup)
		}
	}

	reg := prometheus.NewRegistry()
	m := metrics.New()
	if err := m.Register(reg); err != nil {
		stopService(svc)
		return fmt.Errorf("failed to register metrics: %w", err)
	}
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	procOpts := []flow.Option{flow.WithMetrics(m)}
	if marker, ok := st.(flow.ProcessedMarker); ok {
		procOpts = append(procOpts, flow.WithProcessedMarker(marker))
	}
	proc := flow.NewProcessor(st, svc, model, cat, profile, procOpts...)

	sched, err := newScheduler(cfg, cat, proc)
	if err != nil {
		stopService(svc)
		return err
	}

	apiOpts := append([]Option{WithGatherer(reg)}, cfg.API...)
	b := &bot{
		server: NewServer(svc, st, apiOpts...),
		svc:    svc,
		proc:   proc,
		sched:  sched,
		window: profile.MergeWindow,
	}
	return b.serve(ctx)
}

// serve starts the messaging service and the HTTP listener and feeds inbound
// messages through the merge buffer until ctx is cancelled. Shutdown stops
// the listener first, then lets running turns finish before closing the
// messaging channels.
func (b *bot) serve(ctx context.Context) error {
	if err := b.svc.Start(ctx); err != nil {
		stopService(b.svc)
		stopScheduler(b.sched)
		return fmt.Errorf("failed to start messaging service: %w", err)
	}

	merge := flow.NewMergeBuffer(context.WithoutCancel(ctx), b.window, func(ctx context.Context, turn flow.Turn) {
		if _, err := b.proc.HandleTurn(ctx, turn); err != nil {
			slog.Error("api.Run: turn failed", "error", err, "from", turn.Message.From)
		}
	})

	srv := &http.Server{
		Addr:              b.server.Addr(),
		Handler:           b.server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("api.Run: HTTP server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("api.Run: shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), b.server.opts.ShutdownTimeout)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		merge.Close()
		if stopErr := b.svc.Stop(); stopErr != nil {
			err = errors.Join(err, stopErr)
		}
		if schedErr := b.sched.Stop(shutdownCtx); schedErr != nil {
			err = errors.Join(err, schedErr)
		}
		return err
	})
	g.Go(func() error {
		for msg := range b.svc.Responses() {
			merge.Add(msg)
		}
		return nil
	})
	g.Go(func() error {
		for rc := range b.svc.Receipts() {
			slog.Debug("api.Run: receipt", "to", rc.To, "status", rc.Status)
		}
		return nil
	})

	err := g.Wait()
	slog.Info("api.Run: stopped", "error", err)
	return err
}

func newMessagingService(ctx context.Context, cfg RunConfig, profile *config.Profile, cat *catalog.Holder) (messaging.Service, error) {
	switch strings.ToLower(cfg.Provider) {
	case "", ProviderMeta:
		opts := append([]messaging.MetaOption{
			messaging.WithCatalog(cat),
			messaging.WithTemplate(profile.Template.Name, profile.Template.Language),
		}, cfg.Meta...)
		svc, err := messaging.NewMetaService(opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create Meta service: %w", err)
		}
		return svc, nil
	case ProviderTwilio:
		client, err := twiliowhatsapp.NewClient(cfg.Twilio...)
		if err != nil {
			return nil, fmt.Errorf("failed to create Twilio client: %w", err)
		}
		return messaging.NewTwilioService(client), nil
	case ProviderWhatsmeow:
		client, err := whatsapp.NewClient(ctx, cfg.WhatsApp...)
		if err != nil {
			return nil, fmt.Errorf("failed to create WhatsApp client: %w", err)
		}
		return messaging.NewWhatsAppService(client), nil
	default:
		return nil, fmt.Errorf("unknown messaging provider %q", cfg.Provider)
	}
}

// seedBranches stores the profile branches when the table is empty.
func seedBranches(ctx context.Context, st store.Repository, seeds []config.Branch) error {
	existing, err := st.ListBranches(ctx)
	if err != nil {
		return fmt.Errorf("failed to list branches: %w", err)
	}
	if len(existing) > 0 || len(seeds) == 0 {
		return nil
	}
	for _, seed := range seeds {
		if _, err := st.AddBranch(ctx, seed.Model()); err != nil {
			return fmt.Errorf("failed to seed branch %q: %w", seed.Name, err)
		}
	}
	slog.Info("api.Run: seeded branches", "count", len(seeds))
	return nil
}

func loadCatalog(path string) (*catalog.Holder, error) {
	if path == "" {
		slog.Warn("api.Run: no catalog snapshot configured, prices will not resolve")
		return catalog.NewHolder(catalog.Empty()), nil
	}
	idx, err := catalog.LoadSnapshot(path)
	if err != nil {
		// Start with an empty catalog; the reload job picks the file up later.
		slog.Error("api.Run: failed to load catalog, starting empty", "path", path, "error", err)
		return catalog.NewHolder(idx), nil
	}
	slog.Info("api.Run: catalog loaded", "path", path, "items", idx.Len())
	return catalog.NewHolder(idx), nil
}

// newScheduler registers the periodic catalog reload and throttle sweep.
func newScheduler(cfg RunConfig, cat *catalog.Holder, proc *flow.Processor) (*scheduler.Scheduler, error) {
	sched := scheduler.NewScheduler()
	if cfg.CatalogPath != "" {
		spec := cfg.CatalogReloadSpec
		if spec == "" {
			spec = scheduler.DefaultCatalogReloadSpec
		}
		err := sched.AddJob("catalog-reload", spec, func() {
			if err := cat.Reload(cfg.CatalogPath); err != nil {
				slog.Error("api.Run: catalog reload failed, keeping previous catalog", "error", err)
			}
		})
		if err != nil {
			stopScheduler(sched)
			return nil, fmt.Errorf("catalog reload schedule: %w", err)
		}
	}
	err := sched.AddJob("throttle-sweep", scheduler.DefaultSweepSpec, func() {
		if n := proc.Throttle().Sweep(); n > 0 {
			slog.Debug("api.Run: swept throttle entries", "removed", n)
		}
	})
	if err != nil {
		stopScheduler(sched)
		return nil, err
	}
	return sched, nil
}

func stopScheduler(sched *scheduler.Scheduler) {
	if err := sched.Stop(context.Background()); err != nil {
		slog.Warn("api.Run: failed to stop scheduler", "error", err)
	}
}

func stopService(svc messaging.Service) {
	if err := svc.Stop(); err != nil {
		slog.Warn("api.Run: failed to stop messaging service", "error", err)
	}
}

