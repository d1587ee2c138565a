// civicsync runs the extraction/sync runtime plus the operator HTTP
// admin surface: config load, store/database wiring, the queue
// worker pool, and the dispatcher with its machines and effects
// registered.
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/civicsync/civicsync/pkg/api"
	"github.com/civicsync/civicsync/pkg/cleanup"
	"github.com/civicsync/civicsync/pkg/config"
	"github.com/civicsync/civicsync/pkg/database"
	"github.com/civicsync/civicsync/pkg/masking"
	"github.com/civicsync/civicsync/pkg/pipeline"
	"github.com/civicsync/civicsync/pkg/pipeline/index"
	"github.com/civicsync/civicsync/pkg/pipeline/llm"
	"github.com/civicsync/civicsync/pkg/pipeline/sync"
	"github.com/civicsync/civicsync/pkg/queue"
	"github.com/civicsync/civicsync/pkg/runtime"
	"github.com/civicsync/civicsync/pkg/store"
	pgstore "github.com/civicsync/civicsync/pkg/store/postgres"
	sqlitestore "github.com/civicsync/civicsync/pkg/store/sqlite"
	"github.com/civicsync/civicsync/pkg/version"
)

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

// backend bundles the store + read-model repositories one backend
// (postgres or sqlite) provides, since both implementation packages
// expose the same constructor shapes over their own *Store handle.
type backend struct {
	store     store.Store
	posts     store.PostRepository
	notes     store.NoteRepository
	batches   store.BatchRepository
	proposals store.ProposalRepository
	jobQueue  queue.Store
	dbClient  *database.Client // nil for sqlite; readyz reports pool stats only when set
	closeFn   func() error
}

func newPostgresBackend(ctx context.Context, cfg *config.Config) (*backend, error) {
	dbClient, err := database.NewClient(ctx, cfg.Database, cfg.Store)
	if err != nil {
		return nil, err
	}
	s := pgstore.New(dbClient)
	return &backend{
		store:     s,
		posts:     pgstore.NewPostRepository(s),
		notes:     pgstore.NewNoteRepository(s),
		batches:   pgstore.NewBatchRepository(s),
		proposals: pgstore.NewProposalRepository(s),
		jobQueue:  queue.NewPostgresStore(dbClient.Pool()),
		dbClient:  dbClient,
		closeFn:   func() error { dbClient.Close(); return nil },
	}, nil
}

func newSQLiteBackend(cfg *config.Config) (*backend, error) {
	path := getEnv("SQLITE_PATH", "civicsync.db")
	s, err := sqlitestore.Open(path)
	if err != nil {
		return nil, err
	}
	return &backend{
		store:     s,
		posts:     sqlitestore.NewPostRepository(s),
		notes:     sqlitestore.NewNoteRepository(s),
		batches:   sqlitestore.NewBatchRepository(s),
		proposals: sqlitestore.NewProposalRepository(s),
		jobQueue:  queue.NewSQLiteStore(s.DB()),
		closeFn:   s.Close,
	}, nil
}

func main() {
	configPath := flag.String("config", getEnv("CONFIG_PATH", "./civicsync.yaml"), "path to civicsync.yaml")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var be *backend
	switch cfg.Store.Backend {
	case "sqlite":
		be, err = newSQLiteBackend(cfg)
	default:
		be, err = newPostgresBackend(ctx, cfg)
	}
	if err != nil {
		log.Fatalf("failed to initialize store backend: %v", err)
	}
	defer be.closeFn()

	llmClient := llm.NewHTTPClient(cfg.LLM)
	extractor := index.NewExtractor(llmClient)
	postHandler := sync.NewPostProposalHandler(be.posts, be.proposals, "")
	noteHandler := sync.NewNoteProposalHandler(be.notes, be.proposals, "")
	syncPipeline := sync.NewPipeline(be.batches, be.proposals, llmClient, postHandler, noteHandler)

	maskingSvc := masking.NewService()

	bus := runtime.NewEventBus(cfg.Bus.Capacity)
	var jobQueue runtime.JobQueue = runtime.NoOpJobQueue{}
	if cfg.JobQueue.Variant == config.JobQueuePostgres {
		jobQueue = queue.NewJobQueue(be.jobQueue)
	}

	builder := runtime.NewRuntimeBuilder(nil).
		WithBus(bus).
		WithJobQueue(jobQueue).
		WithSanitizer(maskingSvc.SanitizeFunc()).
		WithMachine(pipeline.ExtractRequestMachine).
		WithMachine(pipeline.SyncRequestMachine).
		WithMachine(pipeline.ExtractedToSyncMachine{
			ResourceKind: "post",
			EntityType:   "post",
			LoadExisting: func(websiteID string) ([]sync.ExistingEntity, error) {
				posts, err := be.posts.ListPostsByWebsite(ctx, websiteID)
				if err != nil {
					return nil, err
				}
				existing := make([]sync.ExistingEntity, 0, len(posts))
				for _, p := range posts {
					existing = append(existing, sync.ExistingEntity{
						ID: p.ID, Title: p.Title, Description: p.Description, Status: p.Status,
					})
				}
				return existing, nil
			},
		}).
		WithEffect(index.Command{}, index.NewEffect(be.store, extractor, cfg.Index.MaxSummariesForPartition)).
		WithEffect(sync.Command{}, sync.NewEffect(syncPipeline))

	rt, bus := builder.Build()
	go rt.Run(ctx)

	pool := queue.NewPool(
		cfg.JobQueue.WorkerCount, be.jobQueue, rt.Dispatcher(), queue.DefaultDecoders(),
		3, cfg.JobQueue.PollInterval, cfg.JobQueue.PollIntervalJitter, cfg.JobQueue.StaleClaimThreshold,
	)
	pool.Start(ctx)
	defer pool.Stop()

	cleanupSvc := cleanup.NewService(be.store, index.CurrentPromptHash, time.Hour)
	cleanupSvc.Start(ctx)
	defer cleanupSvc.Stop()

	server := api.NewServer(cfg.HTTP.ListenAddr, be.dbClient, pool, bus)
	if err := server.Start(); err != nil {
		log.Fatalf("failed to start HTTP server: %v", err)
	}

	slog.Info("civicsync started", "version", version.Full(), "listen_addr", cfg.HTTP.ListenAddr, "backend", cfg.Store.Backend)

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("http shutdown error", "error", err)
	}
}
