package cmd

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"ncrflow/internal/bootstrap"
	"ncrflow/internal/bootstrap/logging"
	"ncrflow/internal/errs"
	"ncrflow/internal/usecase/ncr"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the staff API and the supplier portal over HTTP",
	RunE: withApp(func(cmd *cobra.Command, app *bootstrap.App, svc *ncr.Service) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		addr, _ := cmd.Flags().GetString("addr")
		withScheduler, _ := cmd.Flags().GetBool("with-scheduler")
		if !cmd.Flags().Changed("addr") {
			addr = app.Config.HTTP.Addr
		}
		addr = strings.TrimSpace(addr)
		if addr == "" {
			addr = ":8080"
		}

		secret := strings.TrimSpace(app.Config.HTTP.JWTSecret)
		if secret == "" {
			return errors.New("http.jwt_secret is required to serve the staff API")
		}

		runCtx, cancel := context.WithCancel(ctx)
		defer cancel()

		var wg sync.WaitGroup
		if app.Config.Policy.Watch && strings.TrimSpace(app.Config.Policy.File) != "" {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := ncr.WatchPolicy(runCtx, app.Config.Policy.File, app.Policy); err != nil {
					logging.Error(runCtx, "policy watcher stopped", slog.Any("err", errs.Loggable(err)))
				}
			}()
		}
		if withScheduler {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_ = runEscalationLoop(runCtx, app.Config.Scheduler.Interval, func() error {
					_, err := svc.RunEscalationScan(runCtx)
					return err
				})
			}()
		}

		server := &http.Server{
			Addr:              addr,
			Handler:           newAPIRouter(svc, app, []byte(secret)),
			ReadHeaderTimeout: 10 * time.Second,
		}

		serveErr := make(chan error, 1)
		go func() {
			serveErr <- server.ListenAndServe()
		}()
		logging.Info(ctx, "ncr api server started", slog.String("addr", addr), slog.Bool("scheduler", withScheduler))

		var err error
		select {
		case err = <-serveErr:
		case <-ctx.Done():
			shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
			err = server.Shutdown(shutdownCtx)
			cancelShutdown()
		}
		cancel()
		wg.Wait()

		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Error(ctx, "ncr api server failed", slog.Any("err", errs.Loggable(err)))
			return errs.Wrap(err, "serve ncr api")
		}
		logging.Info(ctx, "ncr api server stopped")
		return nil
	}),
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("addr", ":8080", "Listen address (default: http.addr)")
	serveCmd.Flags().Bool("with-scheduler", false, "Also run the escalation scheduler loop")
}
