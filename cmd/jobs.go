package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-amqp/pkg/amqp"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/spf13/viper"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"pdfchat/src/core/ingestion"
	"pdfchat/src/infrastructure/job"
	"pdfchat/src/jobctrl"
)

func newWatermillLogger() watermill.LoggerAdapter {
	return watermill.NewStdLogger(viper.GetString("log.level") == "debug", false)
}

func openPostgres() (*gorm.DB, error) {
	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable",
		viper.GetString("postgres.host"),
		viper.GetString("postgres.user"),
		viper.GetString("postgres.password"),
		viper.GetString("postgres.db"),
		viper.GetString("postgres.port"),
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// newPostgresRepository connects to postgres and makes sure the jobs table exists.
// The returned closer releases the connection pool.
func newPostgresRepository(ctx context.Context) (*job.PostgresJobRepository, io.Closer, error) {
	db, err := openPostgres()
	if err != nil {
		return nil, nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get underlying *sql.DB: %w", err)
	}

	repo := job.NewPostgresJobRepository(db)
	if err := repo.Migrate(ctx); err != nil {
		sqlDB.Close()
		return nil, nil, fmt.Errorf("failed to migrate jobs table: %w", err)
	}
	return repo, sqlDB, nil
}

func newAMQPPublisher(logger watermill.LoggerAdapter) (*amqp.Publisher, error) {
	return amqp.NewPublisher(amqp.NewDurableQueueConfig(viper.GetString("amqp.url")), logger)
}

func newAMQPSubscriber(logger watermill.LoggerAdapter) (*amqp.Subscriber, error) {
	subscriberConfig := amqp.NewDurableQueueConfig(viper.GetString("amqp.url"))
	subscriberConfig.Consume.NoRequeueOnNack = true
	return amqp.NewSubscriber(subscriberConfig, logger)
}

func newJobRouter(logger watermill.LoggerAdapter) (*message.Router, error) {
	router, err := message.NewRouter(message.RouterConfig{}, logger)
	if err != nil {
		return nil, err
	}

	router.AddMiddleware(
		middleware.Recoverer,
		middleware.CorrelationID,
		middleware.Retry{
			MaxRetries:      3,
			InitialInterval: time.Second,
			Logger:          logger,
		}.Middleware,
	)
	return router, nil
}

// jobRuntime is the job service used by serve together with whatever it needs to
// shut down.
type jobRuntime struct {
	service *job.JobService
	router  *message.Router
	closers []io.Closer
}

func (r *jobRuntime) Close() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		r.closers[i].Close()
	}
}

// newInProcessJobs runs ingestion jobs inside the current process over a Go channel,
// keeping job records in memory.
func newInProcessJobs(pipeline *ingestion.Pipeline) (*jobRuntime, error) {
	logger := newWatermillLogger()
	pubSub := gochannel.NewGoChannel(gochannel.Config{}, logger)

	svc := job.NewJobService(pubSub, job.NewMemoryJobRepository(), logger)
	svc.Register(jobctrl.TaskTypeIngest, jobctrl.NewIngestTask(pipeline))

	router, err := newJobRouter(logger)
	if err != nil {
		pubSub.Close()
		return nil, err
	}
	svc.AddHandler(router, pubSub)

	return &jobRuntime{service: svc, router: router, closers: []io.Closer{pubSub}}, nil
}

// newQueuedJobs publishes ingestion jobs to AMQP for a separate worker, recording them
// in postgres.
func newQueuedJobs(ctx context.Context, pipeline *ingestion.Pipeline) (*jobRuntime, error) {
	logger := newWatermillLogger()

	repo, db, err := newPostgresRepository(ctx)
	if err != nil {
		return nil, err
	}
	publisher, err := newAMQPPublisher(logger)
	if err != nil {
		db.Close()
		return nil, err
	}

	svc := job.NewJobService(publisher, repo, logger)
	svc.Register(jobctrl.TaskTypeIngest, jobctrl.NewIngestTask(pipeline))

	return &jobRuntime{service: svc, closers: []io.Closer{db, publisher}}, nil
}
