// Package app wires configuration to the pipeline components.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nguyentantai21042004/protocol-flow/internal/config"
	"github.com/nguyentantai21042004/protocol-flow/internal/document"
	"github.com/nguyentantai21042004/protocol-flow/internal/domain"
	"github.com/nguyentantai21042004/protocol-flow/internal/ingest"
	"github.com/nguyentantai21042004/protocol-flow/internal/logger"
	"github.com/nguyentantai21042004/protocol-flow/internal/postgres"
	"github.com/nguyentantai21042004/protocol-flow/internal/processor"
	"github.com/nguyentantai21042004/protocol-flow/internal/queue"
	"github.com/nguyentantai21042004/protocol-flow/internal/storage"
	"github.com/nguyentantai21042004/protocol-flow/internal/summarizer"
	"github.com/nguyentantai21042004/protocol-flow/internal/taskstore"
	"github.com/nguyentantai21042004/protocol-flow/internal/transcriber"
	"github.com/nguyentantai21042004/protocol-flow/internal/worker"
	"github.com/nguyentantai21042004/protocol-flow/pkg/executor"
)

// reaperGrace is added to the task deadline before a RUNNING task counts as abandoned.
const reaperGrace = 5 * time.Minute

// App holds the wired components of one process.
type App struct {
	Config    *config.Config
	Tasks     taskstore.TaskStore
	Objects   storage.ObjectStore
	Queue     queue.Queue
	Processor processor.Processor
	Ingest    ingest.Service
	Worker    worker.Worker
	Reaper    *worker.Reaper

	pool   *pgxpool.Pool
	logger logger.Logger
}

// Build constructs every component selected by cfg.
func Build(ctx context.Context, cfg *config.Config, log logger.Logger) (*App, error) {
	a := &App{Config: cfg, logger: log}

	if err := a.buildPersistence(ctx); err != nil {
		a.Close()
		return nil, err
	}

	objects, err := newObjectStore(ctx, cfg.Storage)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Objects = objects

	trans, err := transcriber.New(transcriberConfig(cfg.Transcriber), log)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("create transcriber: %w", err)
	}

	gen, err := newGenerator(cfg.LLM, log)
	if err != nil {
		a.Close()
		return nil, err
	}

	prompt, err := summarizer.LoadPrompt(cfg.LLM.PromptFile)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.Processor = processor.New(processor.Deps{
		Tasks:        a.Tasks,
		Objects:      a.Objects,
		Publisher:    a.Queue,
		Transcriber:  trans,
		Summarizer:   summarizer.New(gen, log),
		Builder:      document.New(),
		Prompt:       prompt,
		TaskDeadline: cfg.Pipeline.TaskDeadline,
		Logger:       log,
	})

	prober := newProber(ctx, executor.New(), cfg.Probe.FFprobePath, log)
	a.Ingest = ingest.New(a.Objects, a.Processor, storage.UUIDKeys{}, prober, log)

	a.Worker = worker.New(a.Queue, a.Processor, worker.Options{
		MaxConcurrent: cfg.Performance.MaxConcurrent,
		ShutdownGrace: cfg.Pipeline.TaskDeadline,
	}, log)
	a.Reaper = worker.NewReaper(a.Tasks, cfg.Pipeline.TaskDeadline+reaperGrace, time.Minute, log)

	return a, nil
}

// buildPersistence picks the task store and queue. Both share one pool
// when the postgres driver is selected.
func (a *App) buildPersistence(ctx context.Context) error {
	cfg := a.Config
	if cfg.Queue.Driver == "memory" {
		a.Tasks = taskstore.NewMemoryStore()
		a.Queue = queue.NewMemoryQueue(0, cfg.Queue.RetryDelay, cfg.Queue.MaxAttempts)
		return nil
	}

	pool, err := postgres.Connect(ctx, cfg.Database.URL)
	if err != nil {
		return err
	}
	a.pool = pool

	if cfg.Database.Migrate {
		if err := postgres.Migrate(ctx, pool); err != nil {
			return err
		}
	}

	a.Tasks = taskstore.NewPostgresStore(pool)
	a.Queue = queue.NewPostgresQueue(pool, queue.PostgresConfig{
		PollInterval: cfg.Queue.PollInterval,
		Lease:        cfg.Queue.Lease,
		RetryDelay:   cfg.Queue.RetryDelay,
		MaxAttempts:  cfg.Queue.MaxAttempts,
	})
	return nil
}

// Close releases the database pool and stops in-memory redeliveries.
func (a *App) Close() {
	if mq, ok := a.Queue.(*queue.MemoryQueue); ok {
		mq.Close()
	}
	if a.pool != nil {
		a.pool.Close()
	}
}

func newObjectStore(ctx context.Context, cfg config.StorageConfig) (storage.ObjectStore, error) {
	switch cfg.Driver {
	case "memory":
		return storage.NewMemoryStore(), nil
	case "s3":
		store, err := storage.NewS3Store(ctx, storage.S3Config{
			Endpoint:     cfg.S3.Endpoint,
			Region:       cfg.S3.Region,
			AccessKey:    cfg.S3.AccessKey,
			SecretKey:    cfg.S3.SecretKey,
			UsePathStyle: cfg.S3.UsePathStyle,
		})
		if err != nil {
			return nil, err
		}
		for _, bucket := range []string{domain.AudioBucket, domain.DocumentsBucket} {
			if err := store.EnsureBucket(ctx, bucket); err != nil {
				return nil, err
			}
		}
		return store, nil
	default:
		return storage.NewFSStore(cfg.FSRoot)
	}
}

func newGenerator(cfg config.LLMConfig, log logger.Logger) (summarizer.Generator, error) {
	if cfg.Provider == "gemini" {
		return summarizer.NewGeminiGenerator(cfg.APIKeys, cfg.Model, log)
	}

	var apiKey string
	if len(cfg.APIKeys) > 0 {
		apiKey = cfg.APIKeys[0]
	}
	model, err := summarizer.NewLangchainModel(cfg.Provider, cfg.Model, apiKey, cfg.BaseURL)
	if err != nil {
		return nil, err
	}
	return summarizer.NewLangchainGenerator(model), nil
}

func transcriberConfig(cfg config.TranscriberConfig) transcriber.Config {
	return transcriber.Config{
		BaseURL:         cfg.BaseURL,
		AuthURL:         cfg.AuthURL,
		APIKey:          cfg.APIKey,
		ClientID:        cfg.ClientID,
		ClientSecret:    cfg.ClientSecret,
		Scope:           cfg.Scope,
		Model:           cfg.Model,
		Language:        cfg.Language,
		Diarization:     !cfg.NoDiarization,
		ProfanityFilter: cfg.ProfanityFilter,
		HintWords:       cfg.HintWords,
		PollInterval:    cfg.PollInterval,
		PollTimeout:     cfg.PollTimeout,
		RequestTimeout:  cfg.RequestTimeout,
		MaxRetries:      cfg.MaxRetries,
		InsecureTLS:     cfg.InsecureTLS,
	}
}

// newProber returns nil when probing is off or the binary does not run.
func newProber(ctx context.Context, exec executor.Executor, path string, log logger.Logger) ingest.Prober {
	if path == "" {
		return nil
	}
	probe := ingest.NewFFprobe(exec, path)
	version, err := probe.Check(ctx)
	if err != nil {
		log.Warn(ctx, "Duration probing disabled: %v", err)
		return nil
	}
	log.Debug(ctx, "Using %s", version)
	return probe
}
