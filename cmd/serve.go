package cmd

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/xiaot623/gogo/supportchat/internal/adapter/llm"
	"github.com/xiaot623/gogo/supportchat/internal/auth"
	"github.com/xiaot623/gogo/supportchat/internal/config"
	"github.com/xiaot623/gogo/supportchat/internal/hub"
	"github.com/xiaot623/gogo/supportchat/internal/repository"
	"github.com/xiaot623/gogo/supportchat/internal/service"
	handler "github.com/xiaot623/gogo/supportchat/internal/transport/http"
	"github.com/xiaot623/gogo/supportchat/internal/transport/ws"
	"github.com/xiaot623/gogo/supportchat/policy"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the chat API server",
	Long:  `Start the HTTP API and the WebSocket endpoint and run until interrupted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return runServer(ctx, cfg)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func configureLogging(level string) {
	if strings.EqualFold(level, "debug") {
		log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
		return
	}
	log.SetFlags(log.LstdFlags)
}

func runServer(ctx context.Context, cfg *config.Config) error {
	if cfg.JWTSecret == "" {
		return errors.New("JWT_SECRET must be set to serve the API")
	}
	configureLogging(cfg.LogLevel)

	log.Printf("Starting supportchat...")
	log.Printf("HTTP Port: %d", cfg.HTTPPort)
	log.Printf("Database: %s (%s)", cfg.DatabaseURL, cfg.DatabaseDriver)
	log.Printf("Completion provider: %s", cfg.LLMProvider)

	// Initialize store
	db, err := store.Open(cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}
	defer db.Close()

	// Initialize completion client
	llmClient := llm.NewLLMClient(llm.Options{
		Provider: cfg.LLMProvider,
		BaseURL:  cfg.LLMBaseURL,
		APIKey:   cfg.LLMAPIKey,
		Model:    cfg.LLMModel,
		Referer:  cfg.ClientURL,
	})

	// Initialize policy engine
	policyEngine, err := policy.NewEngineFromFile(ctx, cfg.PolicyFile)
	if err != nil {
		return fmt.Errorf("failed to initialize policy engine: %w", err)
	}

	metrics := service.NewMetrics()
	responder := service.NewResponder(llmClient, cfg, service.WithResponderMetrics(metrics))
	h := hub.NewHub()
	svc := service.New(db, responder, policyEngine, cfg,
		service.WithNotifier(h),
		service.WithMetrics(metrics),
	)

	validator := auth.NewJWTValidator(cfg.JWTSecret)
	wsServer := ws.NewServer(cfg, h, svc, validator)
	server := handler.NewServer(cfg, svc, validator, wsServer, metrics)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		h.Run(gctx)
		return nil
	})
	g.Go(func() error {
		addr := fmt.Sprintf(":%d", cfg.HTTPPort)
		log.Printf("API started on port %d", cfg.HTTPPort)
		if err := server.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Println("Shutting down supportchat...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("Failed to shutdown server gracefully: %v", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	log.Println("supportchat stopped")
	return nil
}

// exitOnSignal is used by interactive commands that do not own a server.
func exitOnSignal() <-chan os.Signal {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
	return ch
}
