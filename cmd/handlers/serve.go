package handlers

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"newscast/internal/audio"
	"newscast/internal/config"
	"newscast/internal/episode"
	"newscast/internal/extract"
	"newscast/internal/httpapi"
	"newscast/internal/llm"
	"newscast/internal/logger"
	"newscast/internal/objectstore"
	"newscast/internal/persistence"
	"newscast/internal/queue"
	"newscast/internal/script"
	"newscast/internal/selection"
	"newscast/internal/tts"
)

// NewServeCmd creates the serve command: the episode-builder service
// from spec §1/§2. It exposes the episode-status HTTP surface (spec
// §6) plus a local POST /episodes front door, and runs a bounded pool
// of workers draining the in-process queue and running
// episode.Pipeline.Run per request. Grounded on the donor's serve.go
// (config -> connect -> build server -> signal-driven graceful
// shutdown).
func NewServeCmd() *cobra.Command {
	var (
		port    int
		host    string
		workers int
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the episode builder: HTTP status surface plus a worker pool",
		Long: `serve runs the episode-builder pipeline (spec §4.3-§4.7): article
selection, content extraction, parallel script drafting, TTS fan-out and
audio assembly, forced-timing transcript generation, and artifact upload.

It exposes GET /episodes/{id}/status and /stream per spec §6, and a local
POST /episodes endpoint that creates a pending episode row and enqueues a
build request — a stand-in for the front-end service and queue transport
that spec §1 treats as external collaborators.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), port, host, workers)
		},
	}
	cmd.Flags().IntVar(&port, "port", 0, "HTTP port (default from config: 8080)")
	cmd.Flags().StringVar(&host, "host", "", "HTTP host (default from config: 0.0.0.0)")
	cmd.Flags().IntVar(&workers, "workers", 4, "concurrent episode builds")
	return cmd
}

func runServe(ctx context.Context, port int, host string, workers int) error {
	log := logger.Get()
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if port != 0 {
		cfg.Server.Port = port
	}
	if host != "" {
		cfg.Server.Host = host
	}
	if workers <= 0 {
		workers = 4
	}

	db, err := persistence.NewPostgresDB(cfg.Database.DSN, persistence.PoolConfig{
		MaxOpenConns: cfg.Database.MaxOpenConns,
		MaxIdleConns: cfg.Database.MaxIdleConns,
	})
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer db.Close()

	pipeline, err := buildEpisodePipeline(ctx, cfg, db)
	if err != nil {
		return fmt.Errorf("build episode pipeline: %w", err)
	}

	q := queue.NewChannel(64)
	srv := httpapi.NewWithQueue(db, q)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	for i := 0; i < workers; i++ {
		go runWorker(runCtx, q, pipeline, log)
	}

	httpServer := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: srv,
	}
	serverErrors := make(chan error, 1)
	go func() {
		log.Info().Str("addr", httpServer.Addr).Msg("episode builder listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrors <- err
		}
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)
	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)
	case sig := <-shutdown:
		log.Info().Str("signal", sig.String()).Msg("shutdown requested")
		cancel()
		shutdownCtx, done := context.WithTimeout(context.Background(), 10*time.Second)
		defer done()
		return httpServer.Shutdown(shutdownCtx)
	}
}

// runWorker drains q and runs the episode pipeline for each request
// until ctx is cancelled, matching spec §5's "one request activates one
// pipeline instance".
func runWorker(ctx context.Context, q queue.Consumer, pipeline *episode.Pipeline, log *zerolog.Logger) {
	for {
		req, err := q.Dequeue(ctx)
		if err != nil {
			return // ctx cancelled
		}
		if err := pipeline.Run(ctx, req); err != nil {
			log.Error().Err(err).Str("episode_id", req.EpisodeID).Msg("episode pipeline failed")
		}
	}
}

// buildEpisodePipeline wires every episode-builder collaborator named
// in spec §4.3-§4.6 from cfg: the selector, content extractor, script
// orchestrator (Gemini), TTS service (provider per cfg.TTS.Provider),
// ffmpeg-backed audio encoder, and object store (S3 or local disk per
// cfg.ObjectStore.Provider).
func buildEpisodePipeline(ctx context.Context, cfg *config.Config, db persistence.Database) (*episode.Pipeline, error) {
	selector := selection.New(db, selection.Config{
		FreshnessDays: cfg.Selection.FreshnessDays,
		CoverageBoost: cfg.Selection.CoverageBoost,
		DecayRate:     cfg.Selection.DecayRate,
		MinImportance: cfg.Selection.MinImportance,
		BackupLimit:   cfg.Selection.BackupLimit,
	})
	extractor := extract.New()

	gClient, err := llm.NewClient(cfg.AI.Model, cfg.AI.MaxConcurrent)
	if err != nil {
		return nil, fmt.Errorf("build llm client: %w", err)
	}
	scriptGen := llm.NewNarrow(gClient, llm.TextGenerationOptions{Temperature: float32(cfg.AI.Temperature)})
	orchestrator := script.New(scriptGen, cfg.Script.WordsPerMinute)

	provider, sampleRate, err := buildTTSProvider(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("build tts provider: %w", err)
	}
	ttsService := tts.New(provider, cfg.TTS.BatchSize, sampleRate)

	encoder := audio.NewFFmpegEncoder("")

	store, err := buildObjectStore(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("build object store: %w", err)
	}

	episodeCfg := episode.Config{
		ArticlesPerEpisode: 8,
		CrossfadeMS:        cfg.TTS.CrossfadeMS,
		SampleRateHz:       sampleRate,
		MP3BitrateKbps:     cfg.Audio.BitrateKbps,
	}
	return episode.NewPipeline(db, selector, extractor, orchestrator, ttsService, encoder, store, episodeCfg), nil
}

func buildTTSProvider(ctx context.Context, cfg *config.Config) (tts.Provider, int, error) {
	const defaultSampleRate = 24000
	switch cfg.TTS.Provider {
	case "elevenlabs":
		return tts.NewElevenLabsProvider(cfg.TTS.APIKey, cfg.TTS.Voice), 44100, nil
	case "mock":
		return tts.MockProvider{SampleRateHz: defaultSampleRate}, defaultSampleRate, nil
	default: // "google"
		p, err := tts.NewGoogleProvider(ctx, cfg.TTS.Voice, "en-US", defaultSampleRate)
		if err != nil {
			return nil, 0, err
		}
		return p, defaultSampleRate, nil
	}
}

func buildObjectStore(ctx context.Context, cfg *config.Config) (objectstore.ObjectStore, error) {
	if cfg.ObjectStore.Provider != "s3" {
		dir := cfg.ObjectStore.LocalDir
		if dir == "" {
			dir = "episode-artifacts"
		}
		return objectstore.NewLocalStore(dir, "/artifacts"), nil
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.ObjectStore.Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg)
	return objectstore.NewS3Store(client, cfg.ObjectStore.Bucket, ""), nil
}
