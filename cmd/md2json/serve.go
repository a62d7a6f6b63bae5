// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/pdiddy/md2json/internal/api"
	"github.com/pdiddy/md2json/pkg/types"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the conversion pipeline over HTTP",
	Long: `Serve starts an HTTP server with three routes:

  POST /v1/convert  Markdown body (or JSON {"markdown": ...}) -> paper JSON
  POST /v1/plan     Markdown body -> batch plan, no oracle call
  GET  /healthz     liveness

Query parameters budget, normalize, and orphans override the configured
defaults per request. When serve.api_key is set, /v1 routes require it as a
bearer token.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	keys := map[string]string{"addr": "serve.addr", "request-timeout": "serve.request_timeout"}
	for k, v := range oracleKeys {
		keys[k] = v
	}
	if err := bindFlags(cmd, keys); err != nil {
		return err
	}

	cfg, err := conversionConfig()
	if err != nil {
		return err
	}
	cls, err := newClassifier(&cfg)
	if err != nil {
		return err
	}
	serveCfg := types.ServeConfig{
		Addr:           viper.GetString("serve.addr"),
		RequestTimeout: viper.GetDuration("serve.request_timeout"),
		APIKey:         viper.GetString("serve.api_key"),
		MaxBodyBytes:   viper.GetInt64("serve.max_body_bytes"),
	}

	srv := api.NewServer(cls, cfg, serveCfg, logger)
	httpSrv := &http.Server{
		Addr:              srv.Addr(),
		Handler:           srv,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx := cmd.Context()
	errc := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", httpSrv.Addr), zap.String("model", cfg.Model))
		errc <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return httpSrv.Shutdown(shutdownCtx)
}

func init() {
	oracleFlags(serveCmd)
	serveCmd.Flags().String("addr", api.DefaultAddr, "listen address")
	serveCmd.Flags().Duration("request-timeout", api.DefaultRequestTimeout, "timeout for one conversion request")

	rootCmd.AddCommand(serveCmd)
}
