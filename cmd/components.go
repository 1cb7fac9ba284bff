package cmd

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/viper"

	v2 "pdfchat/handler/http/v2"
	"pdfchat/src/core/answer"
	"pdfchat/src/core/chat"
	"pdfchat/src/core/chunker"
	"pdfchat/src/core/corpus"
	"pdfchat/src/core/embedding"
	"pdfchat/src/core/ingestion"
	"pdfchat/src/core/manifest"
	"pdfchat/src/core/prompt"
	"pdfchat/src/core/rag"
	"pdfchat/src/core/retriever"
	"pdfchat/src/fsutil"
	"pdfchat/src/infrastructure/integrations/ollama"
	"pdfchat/src/infrastructure/integrations/openai"
	"pdfchat/src/infrastructure/integrations/pdf"
	"pdfchat/src/infrastructure/integrations/unstructured"
	"pdfchat/src/log"
	"pdfchat/src/storage/elastic"
	"pdfchat/src/storage/memory"
	"pdfchat/src/storage/minioctrl"
	"pdfchat/src/storage/sqlite"
	"pdfchat/src/storage/weaviate"
)

const (
	providerOpenAI = "openai"
	providerOllama = "ollama"
)

// app holds the long-lived services shared by every command. Build it once per
// process with newApp and Close it on exit.
type app struct {
	provider  string
	files     fsutil.FileStore
	embedder  *embedding.Gateway
	index     rag.VectorIndex
	manifests manifest.Store
	ollama    *ollama.Embedder
	closers   []io.Closer
}

func newApp(ctx context.Context) (*app, error) {
	a := &app{
		provider: strings.ToLower(viper.GetString("llm.provider")),
		files:    fsutil.NewLocalFileStore(),
	}

	provider, err := a.newEmbeddingProvider()
	if err != nil {
		return nil, err
	}
	retrying := embedding.NewRetrying(provider, uint64(viper.GetInt("embedding.max_retries")), 0)
	a.embedder = embedding.NewGateway(retrying, embedding.WithBatchSize(viper.GetInt("embedding.batch_size")))

	if a.index, err = a.newIndex(ctx); err != nil {
		return nil, err
	}
	a.manifests = manifest.NewFileStore(a.files, viper.GetString("index.path"))

	log.Info("components ready",
		"provider", a.provider,
		"embedding_model", a.embedder.Model(),
		"index", a.index.Backend(),
	)
	return a, nil
}

func (a *app) Close() {
	for _, c := range a.closers {
		if err := c.Close(); err != nil {
			log.Error(err, "failed to close component")
		}
	}
}

func (a *app) newEmbeddingProvider() (embedding.Provider, error) {
	model := viper.GetString("embedding.model")
	switch a.provider {
	case providerOpenAI:
		return openai.NewEmbedder(openai.Config{
			APIKey:     viper.GetString("openai.api_key"),
			BaseURL:    viper.GetString("openai.base_url"),
			Model:      model,
			HTTPClient: &http.Client{Timeout: 60 * time.Second},
		})
	case providerOllama:
		e, err := ollama.NewEmbedder(ollama.Config{
			URL:        viper.GetString("ollama.url"),
			Model:      model,
			HTTPClient: &http.Client{Timeout: 60 * time.Second},
		})
		if err != nil {
			return nil, err
		}
		a.ollama = e
		return e, nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", a.provider)
	}
}

func (a *app) newChatModel() (rag.ChatModel, error) {
	model := viper.GetString("chat.model")
	temperature := viper.GetFloat64("chat.temperature")
	switch a.provider {
	case providerOpenAI:
		return openai.NewChatModel(openai.Config{
			APIKey:      viper.GetString("openai.api_key"),
			BaseURL:     viper.GetString("openai.base_url"),
			Model:       model,
			Temperature: temperature,
		})
	case providerOllama:
		return ollama.NewChatModel(ollama.Config{
			URL:         viper.GetString("ollama.url"),
			Model:       model,
			Temperature: temperature,
		})
	default:
		return nil, fmt.Errorf("unknown llm provider %q", a.provider)
	}
}

func (a *app) newIndex(ctx context.Context) (rag.VectorIndex, error) {
	backend := strings.ToLower(viper.GetString("index.backend"))
	log.Debug("opening vector index", "backend", backend)
	switch backend {
	case "sqlite":
		idx, err := sqlite.Open(viper.GetString("index.path"))
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, idx)
		return idx, nil
	case "weaviate":
		client, err := weaviate.NewClient(viper.GetString("weaviate.url"))
		if err != nil {
			return nil, err
		}
		return weaviate.New(ctx, client, viper.GetString("weaviate.class"))
	case "elasticsearch", "elastic":
		return elastic.New(strings.Split(viper.GetString("elasticsearch.url"), ","), viper.GetString("elasticsearch.index"))
	case "memory":
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unknown index backend %q", backend)
	}
}

// source returns the corpus the commands read from and upload into: a MinIO bucket
// when corpus.bucket is set, the corpus.path directory otherwise.
func (a *app) source(ctx context.Context) (corpus.Uploader, error) {
	bucket := viper.GetString("corpus.bucket")
	if bucket == "" {
		return corpus.NewDirSource(a.files, viper.GetString("corpus.path")), nil
	}

	minioService, err := minioctrl.NewMinioService(
		viper.GetString("minio.endpoint"),
		viper.GetString("minio.access_key"),
		viper.GetString("minio.secret_key"),
		viper.GetBool("minio.use_ssl"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize minio service: %w", err)
	}
	src, err := minioService.NewBucketSource(bucket)
	if err != nil {
		return nil, err
	}
	bucketName, _ := minioctrl.SplitLocation(bucket)
	if err := minioService.EnsureBucketExists(ctx, bucketName); err != nil {
		return nil, err
	}
	return src, nil
}

// inspector summarizes the index. A directory corpus is counted too; a bucket is not
// listed on every summary.
func (a *app) inspector() *manifest.Inspector {
	var opts []manifest.InspectorOption
	if viper.GetString("corpus.bucket") == "" {
		opts = append(opts, manifest.WithCorpusDir(a.files, viper.GetString("corpus.path")))
	}
	return manifest.NewInspector(a.index, a.manifests, opts...)
}

func newExtractor() (corpus.Extractor, error) {
	backend := strings.ToLower(viper.GetString("loader.backend"))
	switch backend {
	case "local", "":
		return pdf.NewExtractor(), nil
	case "unstructured":
		return unstructured.NewService(viper.GetString("unstructured.url"), &http.Client{Timeout: 5 * time.Minute}), nil
	default:
		return nil, fmt.Errorf("unknown loader backend %q", backend)
	}
}

func (a *app) newPipeline(source corpus.Source) (*ingestion.Pipeline, error) {
	extractor, err := newExtractor()
	if err != nil {
		return nil, err
	}
	splitter, err := chunker.New(viper.GetInt("chunk.size"), viper.GetInt("chunk.overlap"))
	if err != nil {
		return nil, err
	}
	return ingestion.New(
		corpus.NewLoader(source, extractor),
		splitter,
		a.embedder,
		a.index,
		viper.GetInt64("ingest.node_id"),
		ingestion.WithBatchSize(viper.GetInt("embedding.batch_size")),
		ingestion.WithManifest(a.manifests, a.provider),
	)
}

func (a *app) newRetriever() *retriever.Retriever {
	return retriever.New(a.embedder, a.index,
		retriever.WithK(viper.GetInt("retrieval.k")),
		retriever.WithManifest(a.manifests, a.provider),
	)
}

func (a *app) newChatService() (*chat.Service, error) {
	model, err := a.newChatModel()
	if err != nil {
		return nil, err
	}

	unit, err := prompt.ParseUnit(viper.GetString("prompt.budget_unit"))
	if err != nil {
		return nil, err
	}
	composer := prompt.NewComposer(prompt.WithBudget(prompt.Budget{
		Limit: viper.GetInt("prompt.budget"),
		Unit:  unit,
	}))

	return chat.NewService(a.newRetriever(), composer, answer.NewStreamer(model)), nil
}

func (a *app) healthChecks() map[string]v2.HealthCheck {
	checks := map[string]v2.HealthCheck{
		"index": func(ctx context.Context) error {
			_, err := a.index.Count(ctx)
			return err
		},
	}
	if a.ollama != nil {
		checks["ollama"] = a.ollama.Ping
	}
	return checks
}
