package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/dativo-io/masquerade/internal/alias"
	"github.com/dativo-io/masquerade/internal/server"
	"github.com/dativo-io/masquerade/internal/tenant"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the redaction HTTP API",
	Long: `Serve exposes redaction, alias resolution and scope management over HTTP.

The pattern file is reloaded when it changes, and scopes idle for longer
than scope_ttl are purged on retention_schedule.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default: server_addr, :8080)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := loadStack(ctx)
	if err != nil {
		return err
	}
	defer st.Close()
	cfg := st.cfg

	if cfg.PatternFile != "" {
		if err := st.matcher.Watch(ctx, cfg.PatternFile); err != nil {
			log.Warn().Err(err).Str("pattern_file", cfg.PatternFile).Msg("pattern_watch_unavailable")
		}
	}

	if cfg.ScopeTTL > 0 {
		janitor, err := alias.NewJanitor(st.registry, cfg.RetentionSchedule, cfg.ScopeTTL)
		if err != nil {
			return fmt.Errorf("scope retention: %w", err)
		}
		janitor.Start()
		defer janitor.Stop()
	}

	if len(cfg.APIKeys) == 0 {
		log.Warn().Msg("api_keys_not_configured_requests_unauthenticated")
	}

	srvOpts := []server.Option{
		server.WithCORSOrigins([]string{"*"}),
		server.WithComponents(map[string]string{
			"ai":          st.aiStatus,
			"alias_store": cfg.StoreBackend,
		}),
	}
	if len(cfg.APIKeys) > 0 {
		tenants := tenant.FromAPIKeys(cfg.APIKeys, cfg.TenantRPS)
		srvOpts = append(srvOpts, server.WithTenantManager(tenants))
		log.Info().Strs("tenants", tenants.IDs()).Int("tenant_rps", cfg.TenantRPS).Msg("tenants_configured")
	}
	srv := server.NewServer(st.engine, cfg.APIKeys, srvOpts...)

	addr := serveAddr
	if addr == "" {
		addr = cfg.ServerAddr
	}
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      srv.Routes(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 10 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	log.Info().
		Str("addr", addr).
		Str("ai", st.aiStatus).
		Str("store_backend", cfg.StoreBackend).
		Dur("scope_ttl", cfg.ScopeTTL).
		Int("recognizers", len(st.matcher.Recognizers())).
		Msg("masquerade_serve_started")

	errCh := make(chan error, 1)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown_signal_received")
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	log.Info().Msg("server_stopped")
	return nil
}
