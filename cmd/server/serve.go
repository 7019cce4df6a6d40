package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"iclr-explorer/internal/handler"
	"iclr-explorer/internal/llm"
	"iclr-explorer/internal/prompt"
	"iclr-explorer/internal/repository"
	"iclr-explorer/internal/server"
	"iclr-explorer/internal/service"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

func runServe(ctx context.Context) error {
	logger.Info("Starting ICLR explorer...")

	st, err := openStore(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer st.Close()

	submissions := repository.NewSubmissionRepository(st.db, st.resolver, logger)
	predictions := repository.NewPredictionRepository(st.db, st.resolver, logger)

	// Without a key the API still serves browsing and metrics; labeling answers 500.
	var predictor *service.Predictor
	if cfg.Labeler.APIKey == "" {
		logger.Warn("Labeler API key not configured, prompt endpoints are disabled",
			zap.String("provider", string(cfg.Labeler.Type)))
	} else {
		provider, err := llm.NewProvider(ctx, cfg.Labeler, logger)
		if err != nil {
			return fmt.Errorf("failed to initialize labeler: %w", err)
		}
		defer provider.Close()

		renderer := prompt.NewRenderer(prompt.ForConference(cfg.Conference))
		predictor = service.NewPredictor(submissions, predictions, renderer, provider, provider.Model(), logger)
		logger.Info("Prediction labeling enabled", zap.Any("model_info", provider.GetModelInfo()))
	}

	apiHandler := handler.NewHandler(handler.Deps{
		Years:       st.years,
		Submissions: submissions,
		Predictions: predictions,
		Predictor:   predictor,
		Evaluator:   service.NewEvaluator(predictions, logger),
		Stats:       repository.NewStatsRepository(st.db, logger),
		DB:          st.db,
		Conference:  cfg.Conference,
	}, logger)

	srv := server.NewServer(server.Options{
		Addr:           fmt.Sprintf(":%s", cfg.Server.Port),
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Release:        cfg.Log.Format == "json",
	}, apiHandler, st.years, logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Run()
	}()

	logger.Info("ICLR explorer is running",
		zap.String("port", cfg.Server.Port),
		zap.String("year", st.years.Current()),
		zap.Bool("labeler", predictor != nil))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info("Server exited")
	return nil
}
