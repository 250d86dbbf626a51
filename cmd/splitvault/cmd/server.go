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

	"github.com/sora-grayscale/splitvault/api"
	"github.com/sora-grayscale/splitvault/internal/util"
	"github.com/sora-grayscale/splitvault/ratelimit"
	bboltstorage "github.com/sora-grayscale/splitvault/storage/bbolt"
	"github.com/sora-grayscale/splitvault/twofactor"
)

var (
	port    int
	dataDir string
	tlsCert string
	tlsKey  string
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the storage server",
	Long: `Starts the HTTP API. The second-factor sealing key is read from the
SPLITVAULT_SERVER_KEY environment variable (64 hex characters, generate one
with "splitvault keygen"). Set SPLITVAULT_CRON_SECRET to enable the
administrative lockout-reset endpoint.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		serverKeyHex := os.Getenv("SPLITVAULT_SERVER_KEY")
		if serverKeyHex == "" {
			return errors.New("SPLITVAULT_SERVER_KEY is not set")
		}
		serverKey, err := util.HexDecode(serverKeyHex)
		if err != nil || len(serverKey) != util.ServerKeySize {
			return errors.New("SPLITVAULT_SERVER_KEY must be 64 hex characters")
		}

		if err := os.MkdirAll(dataDir, 0o700); err != nil {
			return fmt.Errorf("failed to create data directory: %w", err)
		}

		repo, err := bboltstorage.NewRepositoryFromFile(dataDir+"/splitvault.db", nil)
		if err != nil {
			return fmt.Errorf("failed to open storage: %w", err)
		}
		defer repo.Close()

		limiter := ratelimit.New()
		sweepCtx, stopSweep := context.WithCancel(context.Background())
		defer stopSweep()
		go limiter.Run(sweepCtx, ratelimit.DefaultSweepInterval)

		keeper, err := twofactor.NewKeeper(serverKey, repo, limiter)
		if err != nil {
			return fmt.Errorf("failed to initialize second factor: %w", err)
		}

		logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))
		opts := []api.Option{api.WithLogger(logger)}
		if cronSecret := os.Getenv("SPLITVAULT_CRON_SECRET"); cronSecret != "" {
			opts = append(opts, api.WithCronSecret(cronSecret))
		}
		a := api.New(repo, keeper, limiter, opts...)

		r := chi.NewRouter()
		r.Use(middleware.Logger)
		r.Use(middleware.Recoverer)

		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("OK"))
		})

		r.Mount("/api/v1", a.Router())

		server := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           r,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		}

		serveTLS := tlsCert != "" && tlsKey != ""
		if serveTLS {
			cert, err := tls.LoadX509KeyPair(tlsCert, tlsKey)
			if err != nil {
				return fmt.Errorf("failed to load TLS key pair: %w", err)
			}
			server.TLSConfig = &tls.Config{
				Certificates: []tls.Certificate{cert},
				MinVersion:   tls.VersionTLS12,
			}
		}

		// Graceful shutdown on SIGINT/SIGTERM.
		done := make(chan error, 1)
		go func() {
			var err error
			if serveTLS {
				err = server.ListenAndServeTLS("", "")
			} else {
				err = server.ListenAndServe()
			}
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				done <- fmt.Errorf("server failed: %w", err)
				return
			}
			done <- nil
		}()

		printBanner()
		fmt.Printf("Starting server on port %d (data: %s)...\n", port, dataDir)

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
	serverCmd.Flags().IntVarP(&port, "port", "p", 8080, "Port to listen on")
	serverCmd.Flags().StringVar(&dataDir, "data-dir", "./data", "Directory for persistent data")
	serverCmd.Flags().StringVar(&tlsCert, "tls-cert", "", "Path to TLS certificate file")
	serverCmd.Flags().StringVar(&tlsKey, "tls-key", "", "Path to TLS key file")
}
