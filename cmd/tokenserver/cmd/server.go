package cmd

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"

	"github.com/syncgate/tokenserver/api"
	"github.com/syncgate/tokenserver/internal/util"
	"github.com/syncgate/tokenserver/issuer"
	"github.com/syncgate/tokenserver/storage"
	bboltstorage "github.com/syncgate/tokenserver/storage/bbolt"
	"github.com/syncgate/tokenserver/storage/memory"
	"github.com/syncgate/tokenserver/storage/postgres"
)

// Secrets come from the environment only, never from flags, so they stay
// out of process listings and shell history.
const (
	envMasterSecret  = "TOKENSERVER_MASTER_SECRET"
	envHashKeySecret = "TOKENSERVER_METRICS_HASH_SECRET"
	envAuthSecret    = "TOKENSERVER_AUTH_SECRET"
	envAdminToken    = "TOKENSERVER_ADMIN_TOKEN"
	envDatabaseURL   = "TOKENSERVER_DATABASE_URL"
)

var (
	port        int
	backend     string
	dataDir     string
	emailDomain string
	maxDuration uint64
	tlsCert     string
	tlsKey      string
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the token issuance server",
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))

		master := []byte(os.Getenv(envMasterSecret))
		hashKey := []byte(os.Getenv(envHashKeySecret))
		secrets, err := issuer.NewSecrets(master, hashKey)
		if err != nil {
			return fmt.Errorf("%s and %s must be set: %w", envMasterSecret, envHashKeySecret, err)
		}

		authSecret := []byte(os.Getenv(envAuthSecret))
		if len(authSecret) == 0 {
			return fmt.Errorf("%s must be set", envAuthSecret)
		}
		verifier, err := api.NewHMACVerifier(authSecret)
		if err != nil {
			return err
		}
		util.WipeBytes(authSecret)

		var repo storage.Repository
		switch backend {
		case "memory":
			repo = memory.NewRepository()
		case "bbolt":
			if err := os.MkdirAll(dataDir, 0o700); err != nil {
				return fmt.Errorf("failed to create data directory: %w", err)
			}
			store, err := bboltstorage.NewRepositoryFromFile(dataDir+"/assignments.db", nil)
			if err != nil {
				return fmt.Errorf("failed to open assignment storage: %w", err)
			}
			defer store.Close()
			repo = store
		case "postgres":
			dsn := os.Getenv(envDatabaseURL)
			if dsn == "" {
				return fmt.Errorf("%s must be set for the postgres backend", envDatabaseURL)
			}
			store, err := postgres.NewRepositoryFromDSN(cmd.Context(), dsn)
			if err != nil {
				return fmt.Errorf("failed to connect to postgres: %w", err)
			}
			defer store.Close()
			repo = store
		default:
			return fmt.Errorf("unknown backend %q (want memory, bbolt or postgres)", backend)
		}

		iss := issuer.New(repo, secrets, emailDomain)

		a := api.New(repo, iss, verifier,
			api.WithLogger(logger),
			api.WithAdminToken(os.Getenv(envAdminToken)),
			api.WithMaxDuration(maxDuration),
			api.WithVersion(Version),
			api.WithAlertFunc(func(e api.AlertEvent) {
				logger.Warn("anomaly alert",
					"type", string(e.Type),
					"message", e.Message,
					"count", e.Count,
					"threshold", e.Threshold)
			}))

		r := chi.NewRouter()
		r.Use(middleware.Logger)
		r.Use(middleware.Recoverer)
		r.Mount("/", a.Router())

		var tlsConfig *tls.Config
		if tlsCert != "" && tlsKey != "" {
			cert, err := tls.LoadX509KeyPair(tlsCert, tlsKey)
			if err != nil {
				return fmt.Errorf("failed to load TLS key pair: %w", err)
			}
			tlsConfig = &tls.Config{
				Certificates: []tls.Certificate{cert},
				MinVersion:   tls.VersionTLS12,
			}
		} else {
			cert, err := util.GenerateSelfSignedCert()
			if err != nil {
				return fmt.Errorf("failed to generate self-signed certificate: %w", err)
			}
			tlsConfig = &tls.Config{
				Certificates: []tls.Certificate{cert},
				MinVersion:   tls.VersionTLS12,
			}
			fmt.Println("Using self-signed runtime generated certificate for TLS")
		}

		server := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           r,
			TLSConfig:         tlsConfig,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		}

		// Graceful shutdown on SIGINT/SIGTERM.
		done := make(chan error, 1)
		go func() {
			if err := server.ListenAndServeTLS("", ""); err != nil && !errors.Is(err, http.ErrServerClosed) {
				done <- fmt.Errorf("server failed: %w", err)
				return
			}
			done <- nil
		}()

		printBanner()
		fmt.Printf("Starting server on port %d (backend: %s)...\n", port, backend)

		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

		select {
		case sig := <-quit:
			fmt.Printf("\nReceived %s, shutting down...\n", sig)
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := server.Shutdown(ctx); err != nil {
				return fmt.Errorf("server shutdown failed: %w", err)
			}
			return nil
		case err := <-done:
			return err
		}
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)
	serverCmd.Flags().IntVarP(&port, "port", "p", 8443, "Port to listen on")
	serverCmd.Flags().StringVar(&backend, "backend", "bbolt", "Assignment store backend: memory, bbolt or postgres")
	serverCmd.Flags().StringVar(&dataDir, "data-dir", "./data", "Directory for persistent data (bbolt backend)")
	serverCmd.Flags().StringVar(&emailDomain, "email-domain", "api.accounts.firefox.com", "Domain appended to account IDs for assignment lookup")
	serverCmd.Flags().Uint64Var(&maxDuration, "max-duration", 31536000, "Upper bound on requested token lifetimes, in seconds")
	serverCmd.Flags().StringVar(&tlsCert, "tls-cert", "", "Path to TLS certificate file")
	serverCmd.Flags().StringVar(&tlsKey, "tls-key", "", "Path to TLS key file")
}
