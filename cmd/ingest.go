package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"pdfchat/src/core/ingestion"
	"pdfchat/src/log"
	"pdfchat/src/watch"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Load the PDF corpus into the vector index",
	Long: `The ingest command reads every PDF in the corpus, splits the pages into chunks,
embeds them and stores them in the index. With --watch it keeps running and ingests
PDFs as they are added to the corpus directory.`,
	RunE: runIngest,
}

func init() {
	rootCmd.AddCommand(ingestCmd)
	ingestCmd.Flags().String("path", "", "corpus directory (overrides corpus.path)")
	ingestCmd.Flags().String("bucket", "", "read the corpus from a MinIO bucket[/prefix] instead of a directory")
	ingestCmd.Flags().Bool("reset", false, "empty the index before ingesting")
	ingestCmd.Flags().Bool("watch", false, "keep watching the corpus directory for new PDFs")
	ingestCmd.Flags().Duration("quiet", watch.DefaultQuietPeriod, "how long a new file must stay unchanged before it is ingested")
	viper.BindPFlag("corpus.path", ingestCmd.Flags().Lookup("path"))
	viper.BindPFlag("corpus.bucket", ingestCmd.Flags().Lookup("bucket"))
}

// progressObserver drives a terminal progress bar from pipeline events.
type progressObserver struct {
	bar *progressbar.ProgressBar
}

func newProgressObserver() *progressObserver {
	return &progressObserver{bar: progressbar.NewOptions(-1,
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetDescription("embedding chunks"),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
		progressbar.OptionThrottle(100*time.Millisecond),
	)}
}

func (o *progressObserver) ChunksPlanned(total int) { o.bar.ChangeMax(total) }
func (o *progressObserver) ChunksIndexed(n int)     { o.bar.Add(n) }

func (o *progressObserver) finish() {
	o.bar.Finish()
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

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

	reset, _ := cmd.Flags().GetBool("reset")
	if err := ingestOnce(ctx, pipeline, ingestion.Options{Reset: reset}); err != nil {
		return err
	}

	if watching, _ := cmd.Flags().GetBool("watch"); !watching {
		return nil
	}
	if viper.GetString("corpus.bucket") != "" {
		return fmt.Errorf("--watch only works with a corpus directory")
	}

	quiet, _ := cmd.Flags().GetDuration("quiet")
	return watchCorpus(ctx, pipeline, source.Location(), quiet)
}

func ingestOnce(ctx context.Context, pipeline *ingestion.Pipeline, opts ingestion.Options) error {
	progress := newProgressObserver()
	opts.Observer = progress

	report, err := pipeline.Run(ctx, opts)
	progress.finish()
	if report != nil {
		for _, f := range report.Failed {
			fmt.Fprintf(os.Stderr, "skipped %s\n", f.Error())
		}
	}
	if err != nil {
		return err
	}

	fmt.Printf("Ingested %d chunks using embedding model: %s\n", report.Chunks, report.EmbeddingModel)
	return nil
}

func watchCorpus(ctx context.Context, pipeline *ingestion.Pipeline, dir string, quiet time.Duration) error {
	w, err := watch.New(quiet)
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer w.Close()

	batches, err := w.Watch(ctx, dir)
	if err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}
	log.Info("watching corpus for new PDFs", "dir", dir, "quiet", quiet.String())

	for files := range batches {
		log.V(1).Info("corpus changed", "files", files)
		if err := ingestOnce(ctx, pipeline, ingestion.Options{Files: files}); err != nil {
			// One bad batch should not stop the watcher.
			log.Error(err, "failed to ingest new files", "files", files)
		}
	}
	return nil
}
