package jobctrl

import (
	"context"
	"encoding/json"
	"fmt"

	"pdfchat/src/core/ingestion"
)

const TaskTypeIngest = "ingest"

type IngestPayload struct {
	// Files limits the run to these corpus names; empty ingests everything.
	Files []string `json:"files,omitempty"`
	Reset bool     `json:"reset"`
}

// IngestResult is what an ingest job stores when it completes.
type IngestResult struct {
	RunID          string   `json:"run_id"`
	Files          int      `json:"files"`
	Documents      int      `json:"documents"`
	Chunks         int      `json:"chunks"`
	IndexTotal     int      `json:"index_total"`
	EmbeddingModel string   `json:"embedding_model"`
	Failed         []string `json:"failed,omitempty"`
	DurationMS     int64    `json:"duration_ms"`
}

type Runner interface {
	Run(ctx context.Context, opts ingestion.Options) (*ingestion.Report, error)
}

type IngestTask struct {
	runner Runner
}

func NewIngestTask(runner Runner) *IngestTask {
	return &IngestTask{runner: runner}
}

func (task *IngestTask) Handle(ctx context.Context, payload json.RawMessage) (json.RawMessage, error) {
	var p IngestPayload
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &p); err != nil {
			return nil, fmt.Errorf("failed to decode ingest payload: %w", err)
		}
	}

	report, err := task.runner.Run(ctx, ingestion.Options{Reset: p.Reset, Files: p.Files})
	if err != nil {
		return nil, err
	}

	return json.Marshal(NewIngestResult(report))
}

func NewIngestResult(report *ingestion.Report) IngestResult {
	res := IngestResult{
		RunID:          report.RunID,
		Files:          report.Files,
		Documents:      report.Documents,
		Chunks:         report.Chunks,
		IndexTotal:     report.IndexTotal,
		EmbeddingModel: report.EmbeddingModel,
		DurationMS:     report.Duration.Milliseconds(),
	}
	for _, f := range report.Failed {
		res.Failed = append(res.Failed, f.Error())
	}
	return res
}
