package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aretw0/conductor"
	"github.com/aretw0/conductor/internal/cli"
	api "github.com/aretw0/conductor/pkg/adapters/http"
	"github.com/aretw0/conductor/pkg/schedule"
	"github.com/aretw0/conductor/pkg/session"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(g *globals) *cobra.Command {
	var (
		addr    string
		imports []string
		resync  time.Duration
		noCron  bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API and fire scheduled triggers",
		Long: `Starts the JSON API over the configured store. Enabled trigger nodes with a
cron schedule fire their flow; schedules are re-read from the store
periodically so edits made through the API take effect.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr != "" {
				g.cfg.HTTP.Addr = addr
			}
			app, err := g.app()
			if err != nil {
				return err
			}
			defer app.Close()

			if len(imports) > 0 {
				if _, err := importFlows(cmd, app, imports); err != nil {
					return err
				}
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, app, resync, !noCron)
		},
	}
	cmd.Flags().StringVarP(&addr, "addr", "a", "", "Listen address (default from config, :8080)")
	cmd.Flags().StringSliceVar(&imports, "import", nil, "Import flow files or directories before serving")
	cmd.Flags().DurationVar(&resync, "resync", time.Minute, "How often schedules are re-read from the store")
	cmd.Flags().BoolVar(&noCron, "no-cron", false, "Do not fire scheduled triggers")
	return cmd
}

func serve(ctx context.Context, app *cli.App, resync time.Duration, cron bool) error {
	sessions := app.Sessions()
	opts := []api.Option{api.WithRunStore(app.Runs), api.WithLogger(app.Logger)}
	if app.Metrics != nil {
		opts = append(opts, api.WithMetricsHandler(app.Metrics.Handler()))
	}
	server := api.NewServer(app.Engine, sessions, opts...)
	httpServer := &http.Server{
		Addr:              app.Config.HTTP.Addr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	var scheduler *schedule.Scheduler
	if cron {
		scheduler = schedule.NewScheduler(scheduledRun(app, sessions), schedule.WithLogger(app.Logger))
		syncSchedules(ctx, app, sessions, scheduler)
		scheduler.Start()
	}

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		app.Logger.Info("http server listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	if scheduler != nil && resync > 0 {
		group.Go(func() error {
			ticker := time.NewTicker(resync)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
					syncSchedules(ctx, app, sessions, scheduler)
				}
			}
		})
	}
	group.Go(func() error {
		<-ctx.Done()
		app.Logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		var errs []error
		if scheduler != nil {
			errs = append(errs, scheduler.Stop(shutdownCtx))
		}
		errs = append(errs, httpServer.Shutdown(shutdownCtx), server.Close(shutdownCtx))
		return errors.Join(errs...)
	})
	return group.Wait()
}

// scheduledRun runs the stored flow a trigger belongs to, with the
// trigger's payload as input.
func scheduledRun(app *cli.App, sessions *session.Manager) schedule.RunFunc {
	return func(ctx context.Context, flowID, triggerID, payload string) {
		flow, err := sessions.Load(ctx, flowID)
		if err != nil {
			app.Logger.Error("scheduled flow unavailable", "flow_id", flowID, "trigger", triggerID, "err", err)
			return
		}
		state, err := app.Engine.Run(ctx, flow, conductor.RunOptions{Input: payload})
		if err != nil {
			app.Logger.Error("scheduled run failed", "flow_id", flowID, "trigger", triggerID, "err", err)
			return
		}
		app.Logger.Info("scheduled run finished", "flow_id", flowID, "trigger", triggerID, "run_id", state.RunID, "status", state.Status)
	}
}

// syncSchedules registers the triggers of every stored flow and drops
// flows that no longer exist.
func syncSchedules(ctx context.Context, app *cli.App, sessions *session.Manager, s *schedule.Scheduler) {
	flows, err := sessions.List(ctx, "")
	if err != nil {
		app.Logger.Error("schedule sync failed", "err", err)
		return
	}
	live := make(map[string]bool, len(flows))
	for _, summary := range flows {
		live[summary.ID] = true
		flow, err := sessions.Load(ctx, summary.ID)
		if err != nil {
			app.Logger.Warn("schedule sync skipped flow", "flow_id", summary.ID, "err", err)
			continue
		}
		if _, err := s.Sync(flow); err != nil {
			app.Logger.Warn("invalid schedule", "flow_id", summary.ID, "err", err)
		}
	}
	for _, e := range s.Entries() {
		if !live[e.FlowID] {
			s.Remove(e.FlowID)
		}
	}
}
