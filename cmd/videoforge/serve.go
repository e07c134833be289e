package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lordpython/videoforge/api"
	"github.com/lordpython/videoforge/common"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "run the control-plane HTTP server and processor",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer func() { _ = common.Sync(a.logger) }()

		if !a.proc.Start() {
			return errors.New("videoforge: processor failed to start")
		}
		a.sweeper.Start()

		srv := api.NewServer(a.proc, a.store, a.limiter, a.gov, a.logger)
		httpSrv := &http.Server{Addr: a.cfg.ListenAddr, Handler: srv.Handler()}

		errCh := make(chan error, 1)
		go func() {
			a.logger.Info("videoforge: listening", zap.String("addr", a.cfg.ListenAddr))
			if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				errCh <- err
			}
		}()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

		select {
		case err := <-errCh:
			return err
		case <-sigCh:
			a.logger.Info("videoforge: shutting down")
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = httpSrv.Shutdown(ctx)

		a.sweeper.Stop()
		a.proc.Stop(30 * time.Second)
		return nil
	},
}
