package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/MeKo-Tech/idscan/internal/server"
	"github.com/MeKo-Tech/idscan/internal/version"
)

// serveCmd represents the serve command.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start HTTP and WebSocket server for document scanning",
	Long: `Start an HTTP server that scans identity document captures.

The server provides the following endpoints:
  POST /scan      - Scan an uploaded capture (multipart field "image")
  GET  /ws        - Live scan session: send captures, receive transitions and results
  GET  /templates - List loaded document templates
  GET  /health    - Health check endpoint
  GET  /metrics   - Prometheus metrics

Examples:
  idscan serve --engine remote --remote-url http://ocr:9000/recognize
  idscan serve --host 0.0.0.0 --port 3000 --rate-limit-enabled`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := GetConfig()

		p, err := buildPipeline(cfg)
		if err != nil {
			return err
		}
		defer p.Close()

		sc := cfg.Server
		srv, err := server.NewServer(server.Config{
			Host:              sc.Host,
			Port:              sc.Port,
			CORSOrigin:        sc.CORSOrigin,
			MaxUploadMB:       int64(sc.MaxUploadMB),
			TimeoutSec:        sc.TimeoutSec,
			Version:           version.Info().Version,
			RateLimitEnabled:  sc.RateLimitEnabled,
			RequestsPerMinute: sc.RequestsPerMinute,
			RequestsPerHour:   sc.RequestsPerHour,
			MaxRequestsPerDay: sc.MaxRequestsPerDay,
			MaxDataPerDay:     sc.MaxDataPerDay,
		}, p)
		if err != nil {
			return fmt.Errorf("failed to initialize server: %w", err)
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		// No WriteTimeout: WebSocket connections are long lived, scans are
		// bounded by the handler timeout instead.
		httpServer := &http.Server{
			Addr:              fmt.Sprintf("%s:%d", sc.Host, sc.Port),
			Handler:           srv.Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		}

		go func() {
			slog.Info("Starting scan server", "host", sc.Host, "port", sc.Port,
				"engine", cfg.Pipeline.Recognition.Engine, "templates", p.Registry().Len(), "build", version.Info().String())
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("Server error", "error", err)
				cancel()
			}
		}()

		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)
		defer signal.Stop(sigChan)

		select {
		case sig := <-sigChan:
			slog.Info("Received shutdown signal", "signal", sig.String())
		case <-ctx.Done():
			slog.Info("Context cancelled, initiating shutdown")
		}

		slog.Info("Starting graceful shutdown", "timeout", fmt.Sprintf("%ds", sc.ShutdownTimeout))
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), time.Duration(sc.ShutdownTimeout)*time.Second)
		defer shutdownCancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("HTTP server shutdown error", "error", err)
		} else {
			slog.Info("HTTP server shutdown completed")
		}
		slog.Info("Graceful shutdown completed")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	f := serveCmd.Flags()
	f.StringP("host", "H", "localhost", "server host")
	f.IntP("port", "p", 8080, "server port")
	f.String("cors-origin", "*", "CORS allowed origins")
	f.Int("max-upload-size", 20, "maximum upload size in MB")
	f.Int("timeout", 60, "scan timeout in seconds")
	f.Int("shutdown-timeout", 10, "shutdown timeout in seconds")
	f.Bool("rate-limit-enabled", false, "enable rate limiting for POST /scan")
	f.Int("requests-per-minute", 60, "maximum requests per minute per client")
	f.Int("requests-per-hour", 1000, "maximum requests per hour per client")
	f.Int("max-requests-per-day", 5000, "maximum requests per day per client")
	f.Int64("max-data-per-day", 500*1024*1024, "maximum data uploaded per day per client (bytes)")

	bindings := []struct{ key, flag string }{
		{"server.host", "host"},
		{"server.port", "port"},
		{"server.cors_origin", "cors-origin"},
		{"server.max_upload_mb", "max-upload-size"},
		{"server.timeout_sec", "timeout"},
		{"server.shutdown_timeout", "shutdown-timeout"},
		{"server.rate_limit_enabled", "rate-limit-enabled"},
		{"server.requests_per_minute", "requests-per-minute"},
		{"server.requests_per_hour", "requests-per-hour"},
		{"server.max_requests_per_day", "max-requests-per-day"},
		{"server.max_data_per_day", "max-data-per-day"},
	}
	for _, b := range bindings {
		if err := viper.BindPFlag(b.key, f.Lookup(b.flag)); err != nil {
			panic(fmt.Sprintf("failed to bind flag %s: %v", b.flag, err))
		}
	}
}
