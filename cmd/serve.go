package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	v2 "pdfchat/handler/http/v2"
	"pdfchat/src/log"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the chat HTTP server",
	Long: `The serve command starts an HTTP server that streams answers over server-sent
events, accepts PDF uploads and queues ingestion runs.`,
	RunE: RunServer,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func RunServer(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	chatService, err := a.newChatService()
	if err != nil {
		return err
	}
	source, err := a.source(ctx)
	if err != nil {
		return err
	}
	pipeline, err := a.newPipeline(source)
	if err != nil {
		return err
	}

	var jobs v2.JobQueue
	var jobRT *jobRuntime
	switch backend := strings.ToLower(viper.GetString("jobs.backend")); backend {
	case "memory":
		jobRT, err = newInProcessJobs(pipeline)
	case "amqp":
		jobRT, err = newQueuedJobs(ctx, pipeline)
	case "none", "":
	default:
		err = fmt.Errorf("unknown jobs backend %q", backend)
	}
	if err != nil {
		return err
	}
	if jobRT != nil {
		defer jobRT.Close()
		jobs = jobRT.service
		if jobRT.router != nil {
			go func() {
				if err := jobRT.router.Run(ctx); err != nil {
					log.Error(err, "Job router stopped")
				}
			}()
		}
	}

	// Initialize HTTP handler
	handler := v2.NewHandler(
		chatService,
		a.inspector(),
		source,
		jobs,
		a.healthChecks(),
	)

	// Setup gin router
	r := gin.Default()

	// Register routes
	handler.RegisterRoutes(r)

	// Create HTTP server
	srv := &http.Server{
		Addr:    ":" + viper.GetString("server.port"),
		Handler: r,
	}

	// Start server in a goroutine
	serveErr := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- err
		}
	}()
	log.Info("Server started", "addr", srv.Addr, "jobs", viper.GetString("jobs.backend"))

	// Wait for interrupt signal to gracefully shutdown the server
	select {
	case err := <-serveErr:
		return fmt.Errorf("failed to start server: %w", err)
	case <-ctx.Done():
	}
	log.Info("Shutting down server...")

	// Parse shutdown timeout
	timeout, err := time.ParseDuration(viper.GetString("server.shutdown_timeout"))
	if err != nil {
		log.Error(err, "Invalid shutdown timeout, using default 5s")
		timeout = 5 * time.Second
	}

	// Create context with timeout for shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	// Attempt graceful shutdown
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(err, "Server forced to shutdown")
	}
	if jobRT != nil && jobRT.router != nil {
		jobRT.router.Close()
	}

	log.Info("Server exited")
	return nil
}
