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

	"oauth2-tokenserver/internal/handlers"
	"oauth2-tokenserver/internal/server"
	"oauth2-tokenserver/internal/utils"
	"oauth2-tokenserver/pkg/config"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// Create a logger instance
var log = logrus.New()

// Build-time variables set via ldflags
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

var rootCmd = &cobra.Command{
	Use:          "tokenserver",
	Short:        "OAuth2 token issuance and introspection server",
	SilenceUsage: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the token server",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve(cmd.Context())
	},
}

var hashCost int

var hashSecretCmd = &cobra.Command{
	Use:   "hash-secret <secret>",
	Short: "Print the bcrypt hash of a client or resource secret",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		hashed, err := utils.HashSecret(args[0], hashCost)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(hashed))
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "%s (commit %s, built %s)\n", Version, GitCommit, BuildTime)
	},
}

func init() {
	hashSecretCmd.Flags().IntVar(&hashCost, "cost", 10, "bcrypt cost")
	rootCmd.AddCommand(serveCmd, hashSecretCmd, versionCmd)
}

func main() {
	handlers.SetVersionInfo(Version, GitCommit, BuildTime)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func serve(ctx context.Context) error {
	log.Info("🚀 Starting OAuth2 token server...")

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("❌ failed to load configuration: %w", err)
	}
	configureLogger(cfg.Logging)
	log.Infof("🔧 Log Level: %s, Format: %s, Audit: %t", cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.EnableAudit)

	srv, err := server.New(cfg, server.Options{}, log)
	if err != nil {
		return fmt.Errorf("❌ failed to initialize server: %w", err)
	}
	defer func() {
		if err := srv.Close(); err != nil {
			log.Warnf("⚠️ Failed to close token store: %v", err)
		}
	}()

	cleanupCtx, cancelCleanup := context.WithCancel(ctx)
	defer cancelCleanup()
	go srv.RunCleanup(cleanupCtx)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      srv.Handler(),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infof("🌐 Token server listening on %s", httpServer.Addr)
		log.Infof("🎫 Token endpoint: %s/connect/token", cfg.Security.Issuer)
		log.Infof("🔍 Introspection endpoint: %s/connect/introspect", cfg.Security.Issuer)
		log.Infof("🗑️ Revocation endpoint: %s/connect/revocation", cfg.Security.Issuer)
		log.Infof("🏥 Health check: %s/health", cfg.Security.Issuer)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("❌ server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("🛑 Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownTimeout)*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("❌ graceful shutdown failed: %w", err)
	}
	log.Info("👋 Server stopped")
	return nil
}

func configureLogger(cfg config.LoggingConfig) {
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)

	if cfg.Format == "json" {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	}
}
