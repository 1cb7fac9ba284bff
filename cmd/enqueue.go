package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"pdfchat/src/infrastructure/job"
	"pdfchat/src/jobctrl"
)

var enqueueCmd = &cobra.Command{
	Use:   "enqueue [file...]",
	Short: "Queue an ingestion job for the worker",
	Long: `The enqueue command records an ingestion job in postgres and publishes it to
the job queue. Without file arguments the worker ingests the whole corpus.`,
	RunE: runEnqueue,
}

func init() {
	rootCmd.AddCommand(enqueueCmd)
	enqueueCmd.Flags().Bool("reset", false, "empty the index before ingesting")
}

func runEnqueue(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	logger := newWatermillLogger()

	jobRepo, db, err := newPostgresRepository(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	publisher, err := newAMQPPublisher(logger)
	if err != nil {
		return fmt.Errorf("failed to create publisher: %w", err)
	}
	defer publisher.Close()

	jobService := job.NewJobService(publisher, jobRepo, logger)

	reset, _ := cmd.Flags().GetBool("reset")
	payload, err := json.Marshal(jobctrl.IngestPayload{Files: args, Reset: reset})
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	created, err := jobService.EnqueueJob(ctx, jobctrl.TaskTypeIngest, payload)
	if err != nil {
		return fmt.Errorf("failed to enqueue job: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Successfully enqueued job with ID: %d\n", created.ID)
	return nil
}
