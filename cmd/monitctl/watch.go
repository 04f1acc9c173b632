package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	monit "github.com/axondata/go-monit"
)

func newWatchCmd(opts *rootOptions) *cobra.Command {
	var (
		debounce    time.Duration
		metricsAddr string
	)
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Reload the supervisor whenever conf.d changes, until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			cfg, err := opts.load()
			if err != nil {
				return err
			}

			var metrics *monit.Metrics
			if metricsAddr != "" {
				reg := prometheus.NewRegistry()
				if metrics, err = monit.NewMetrics(reg); err != nil {
					return err
				}
				srv := &http.Server{
					Addr:              metricsAddr,
					Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
					ReadHeaderTimeout: 5 * time.Second,
				}
				go func() {
					if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						opts.log.WithError(err).Error("metrics server failed")
					}
				}()
				defer func() {
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					_ = srv.Shutdown(shutdownCtx)
				}()
			}

			inst, err := instance(cfg, opts, metrics)
			if err != nil {
				return err
			}
			events, cleanup, err := inst.Watch(ctx, monit.WithDebounce(debounce))
			if err != nil {
				return err
			}
			defer func() { _ = cleanup() }()

			opts.log.WithField("dir", inst.ConfdPath()).Info("watching for fragment changes")
			for {
				select {
				case <-ctx.Done():
					return nil
				case ev, ok := <-events:
					if !ok {
						return nil
					}
					if ev.Err != nil {
						fmt.Fprintf(cmd.OutOrStdout(), "reload after %s failed: %v\n", ev.Path, ev.Err)
						continue
					}
					fmt.Fprintf(cmd.OutOrStdout(), "reloaded after %s\n", ev.Path)
				}
			}
		},
	}
	cmd.Flags().DurationVar(&debounce, "debounce", monit.DefaultDebounce, "quiet period before reloading")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve command metrics on this address")
	return cmd
}
