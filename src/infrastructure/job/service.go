package job

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
)

// Topic is the queue jobs are published to.
const Topic = "jobs"

// TaskHandler runs one job payload and returns a JSON result to store with the job.
type TaskHandler interface {
	Handle(ctx context.Context, payload json.RawMessage) (json.RawMessage, error)
}

type JobService struct {
	publisher message.Publisher
	repo      JobRepository
	logger    watermill.LoggerAdapter
	handlers  map[string]TaskHandler
}

type JobMessage struct {
	JobID    int             `json:"job_id"`
	TaskType string          `json:"task_type"`
	Payload  json.RawMessage `json:"payload"`
}

func NewJobService(
	publisher message.Publisher,
	repo JobRepository,
	logger watermill.LoggerAdapter,
) *JobService {
	return &JobService{
		publisher: publisher,
		repo:      repo,
		logger:    logger,
		handlers:  make(map[string]TaskHandler),
	}
}

// Register routes jobs of taskType to h.
func (s *JobService) Register(taskType string, h TaskHandler) {
	s.handlers[taskType] = h
}

// EnqueueJob creates a new job and publishes it to the message queue
func (s *JobService) EnqueueJob(ctx context.Context, taskType string, payload json.RawMessage) (*Job, error) {
	if _, ok := s.handlers[taskType]; !ok && len(s.handlers) > 0 {
		return nil, fmt.Errorf("unknown task type: %s", taskType)
	}

	job, err := s.repo.Create(ctx, taskType, payload)
	if err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}

	jobMsg := JobMessage{
		JobID:    job.ID,
		TaskType: job.TaskType,
		Payload:  job.Payload,
	}

	msgPayload, err := json.Marshal(jobMsg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal job message: %w", err)
	}

	msg := message.NewMessage(watermill.NewUUID(), msgPayload)
	if err := s.publisher.Publish(Topic, msg); err != nil {
		return nil, fmt.Errorf("failed to publish job message: %w", err)
	}

	return job, nil
}

// GetJob returns the job with id, or nil if there is none.
func (s *JobService) GetJob(ctx context.Context, id int) (*Job, error) {
	return s.repo.Get(ctx, id)
}

// ProcessJobMessage processes a job message from the queue
func (s *JobService) ProcessJobMessage(msg *message.Message) error {
	var jobMsg JobMessage
	if err := json.Unmarshal(msg.Payload, &jobMsg); err != nil {
		return fmt.Errorf("failed to unmarshal job message: %w", err)
	}

	ctx := msg.Context()

	job, err := s.repo.Get(ctx, jobMsg.JobID)
	if err != nil {
		return fmt.Errorf("failed to get job: %w", err)
	}
	if job == nil {
		return fmt.Errorf("job not found: %d", jobMsg.JobID)
	}

	if err := s.repo.UpdateStatus(ctx, job.ID, JobStatusRunning, nil, nil); err != nil {
		return fmt.Errorf("failed to update job status to running: %w", err)
	}

	result, err := s.processJob(ctx, job)
	if err != nil {
		errStr := err.Error()
		if updateErr := s.repo.UpdateStatus(ctx, job.ID, JobStatusFailed, &errStr, nil); updateErr != nil {
			s.logger.Error("Failed to update job status to failed", updateErr, watermill.LogFields{
				"job_id": job.ID,
			})
		}
		return fmt.Errorf("failed to process job: %w", err)
	}

	if err := s.repo.UpdateStatus(ctx, job.ID, JobStatusCompleted, nil, result); err != nil {
		return fmt.Errorf("failed to update job status to completed: %w", err)
	}

	s.logger.Info("Job completed", watermill.LogFields{
		"job_id":    job.ID,
		"task_type": job.TaskType,
	})
	return nil
}

func (s *JobService) processJob(ctx context.Context, job *Job) (json.RawMessage, error) {
	h, ok := s.handlers[job.TaskType]
	if !ok {
		return nil, fmt.Errorf("unknown task type: %s", job.TaskType)
	}
	return h.Handle(ctx, job.Payload)
}

// AddHandler subscribes the service to Topic on router.
func (s *JobService) AddHandler(router *message.Router, subscriber message.Subscriber) {
	router.AddNoPublisherHandler(
		"job_processor",
		Topic,
		subscriber,
		s.ProcessJobMessage,
	)
}
