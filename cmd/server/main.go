package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ignite/mailguard/internal/api"
	"github.com/ignite/mailguard/internal/app"
	"github.com/ignite/mailguard/internal/config"
	"github.com/ignite/mailguard/internal/events"
	"github.com/ignite/mailguard/internal/pkg/logger"
	"github.com/ignite/mailguard/internal/service/sending"
	"github.com/ignite/mailguard/internal/service/webhook"
	"github.com/ignite/mailguard/internal/transport/ses"
	"github.com/ignite/mailguard/internal/worker"
)

// checkPortAvailable verifies that the target port is not already in use.
func checkPortAvailable(host string, port int) error {
	addr := fmt.Sprintf("%s:%d", host, port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("port %d is already in use (addr %s): %v", port, addr, err)
	}
	ln.Close()
	return nil
}

func main() {
	configPath := flag.String("config", os.Getenv("MAILGUARD_CONFIG"), "path to config.yaml (optional)")
	flag.Parse()

	cfg, err := config.LoadFromEnv(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logger.SetLevel(logger.ParseLevel(cfg.Logging.Level))

	host := cfg.Server.GetHost()
	if err := checkPortAvailable(host, cfg.Server.Port); err != nil {
		log.Fatalf("Pre-flight check FAILED: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	deps, err := app.Open(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to open backing services: %v", err)
	}
	defer deps.Close()

	svc := app.Build(cfg, deps, nil)

	// Outbound transport: SES when enabled, otherwise print to stdout
	var transport sending.Transport = sending.NewLogTransport(nil)
	if cfg.SES.Enabled {
		sesTransport, err := ses.New(ctx, cfg.SES)
		if err != nil {
			log.Fatalf("Failed to initialize SES transport: %v", err)
		}
		transport = sesTransport
		logger.Info("SES transport enabled", "region", cfg.SES.Region)
	} else {
		logger.Info("SES disabled, messages are printed to stdout")
	}
	mailer := sending.NewMailer(svc.Interceptor, transport)

	var reconciler *webhook.Reconciler
	if cfg.Webhook.Enabled {
		publisher, err := events.New(ctx, cfg.Events)
		if err != nil {
			log.Fatalf("Failed to initialize status-change publisher: %v", err)
		}
		reconciler = webhook.NewReconciler(svc.Store, svc.Logs,
			webhook.WithTimeouts(cfg.Webhook.EventTimeout(), cfg.Webhook.BatchTimeout()),
			webhook.WithNotifier(publisher),
		)
		if cfg.Webhook.VerifySignature && cfg.Webhook.Secret == "" {
			logger.Warn("webhook.verify_signature is set but no secret is configured; signatures are not checked")
		}
		logger.Info("Mailtrap webhook enabled", "sqs_events", publisher.Enabled())
	}

	if cfg.Logging.Enabled {
		retention := worker.NewRetentionWorker(svc.Logs, cfg.Logging.Retention(),
			worker.WithLock(deps.RetentionLock()))
		go retention.Start(ctx)
	}

	handlers := api.NewHandlers(svc.Validator, svc.Logs, reconciler, mailer)
	if svc.Provider != nil {
		handlers.SetProvider(svc.Provider)
	}
	health := api.NewHealthChecker(deps.DB, deps.Redis)
	server := api.NewServer(cfg.Server, cfg.Webhook, handlers, health)

	// Setup graceful shutdown
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		addr := fmt.Sprintf("%s:%d", host, cfg.Server.Port)
		logger.Info("Starting server", "addr", addr, "driver", cfg.Database.Driver)
		if err := server.ListenAndServe(addr); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	<-done
	logger.Info("Shutting down")

	// Cancel background tasks
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown error", "error", err)
	}
	logger.Info("Server stopped")
}
