package cmd

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"pdfchat/src/infrastructure/job"
	"pdfchat/src/jobctrl"
	"pdfchat/src/log"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Start the background ingestion worker",
	RunE:  runWorker,
}

func init() {
	rootCmd.AddCommand(workerCmd)
}

func runWorker(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize logger
	logger := newWatermillLogger()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	source, err := a.source(ctx)
	if err != nil {
		return err
	}
	pipeline, err := a.newPipeline(source)
	if err != nil {
		return err
	}

	// Initialize job repository
	jobRepo, db, err := newPostgresRepository(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	// Initialize AMQP publisher
	amqpPublisher, err := newAMQPPublisher(logger)
	if err != nil {
		return err
	}
	defer amqpPublisher.Close()

	// Initialize AMQP subscriber
	amqpSubscriber, err := newAMQPSubscriber(logger)
	if err != nil {
		return err
	}
	defer amqpSubscriber.Close()

	router, err := newJobRouter(logger)
	if err != nil {
		return err
	}

	jobService := job.NewJobService(amqpPublisher, jobRepo, logger)
	jobService.Register(jobctrl.TaskTypeIngest, jobctrl.NewIngestTask(pipeline))
	jobService.AddHandler(router, amqpSubscriber)

	workerLog := log.WithValues("topic", job.Topic, "corpus", source.Location())
	workerLog.Info("Worker started")
	if err := router.Run(ctx); err != nil {
		return fmt.Errorf("job router failed: %w", err)
	}
	workerLog.Info("Router stopped")
	return nil
}
