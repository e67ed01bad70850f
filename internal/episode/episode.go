// Package episode implements the episode-builder state machine (spec
// §4.7): one Pipeline.Run call per episode request, driving selection,
// extraction, script drafting, TTS/audio assembly, transcript
// generation, and artifact upload through the declared stage graph,
// writing status/stage/progress at each transition. Grounded on
// podcast_generator.py's generate_episode stage sequence (including
// its cluster-backup fallback in _convert_articles_to_sources) and the
// donor's internal/pipeline dependency-injected orchestrator shape
// (Config, NewPipeline, typed stage structs).
package episode

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"newscast/internal/apperr"
	"newscast/internal/audio"
	"newscast/internal/core"
	"newscast/internal/logger"
	"newscast/internal/objectstore"
	"newscast/internal/persistence"
	"newscast/internal/queue"
	"newscast/internal/script"
	"newscast/internal/selection"
	"newscast/internal/transcript"
	"newscast/internal/tts"
)

// Extractor fetches an article's main body text, never raising (spec §4.4).
type Extractor interface {
	Fetch(ctx context.Context, rawURL string) (string, bool)
}

// Config carries the tunables that size audio assembly and article
// selection for one pipeline instance (spec §6).
type Config struct {
	ArticlesPerEpisode int // spec's "8 articles for better variety" default
	CrossfadeMS        int
	SampleRateHz       int
	MP3BitrateKbps     int
}

// DefaultConfig matches the constants named across spec §4 and §6.
func DefaultConfig() Config {
	return Config{
		ArticlesPerEpisode: 8,
		CrossfadeMS:        50,
		SampleRateHz:       24000,
		MP3BitrateKbps:     128,
	}
}

// Pipeline wires one run of the episode-builder stage graph.
type Pipeline struct {
	db         persistence.Database
	selector   *selection.Selector
	extractor  Extractor
	scriptOrch *script.Orchestrator
	ttsService *tts.Service
	encoder    audio.Encoder
	store      objectstore.ObjectStore
	cfg        Config
}

// NewPipeline builds a Pipeline from its collaborators.
func NewPipeline(db persistence.Database, selector *selection.Selector, extractor Extractor, scriptOrch *script.Orchestrator, ttsService *tts.Service, encoder audio.Encoder, store objectstore.ObjectStore, cfg Config) *Pipeline {
	return &Pipeline{
		db:         db,
		selector:   selector,
		extractor:  extractor,
		scriptOrch: scriptOrch,
		ttsService: ttsService,
		encoder:    encoder,
		store:      store,
		cfg:        cfg,
	}
}

// Run executes the full stage graph for one episode request. Re-delivery
// of an episode_id already in a terminal state is a no-op (spec §6's
// idempotency requirement).
func (p *Pipeline) Run(ctx context.Context, req queue.EpisodeRequest) error {
	if err := req.Validate(); err != nil {
		return err
	}
	log := logger.Stage("episode", map[string]string{"episode_id": req.EpisodeID})

	ep, err := p.db.Episodes().Get(ctx, req.EpisodeID)
	if err != nil {
		return fmt.Errorf("episode: load %q: %w", req.EpisodeID, err)
	}
	if ep.Status == core.StatusCompleted || ep.Status == core.StatusFailed {
		log.Info().Str("status", string(ep.Status)).Msg("episode already terminal, skipping re-delivery")
		return nil
	}

	articles, err := p.discoverArticles(ctx, req, ep)
	if err != nil {
		return p.fail(req.EpisodeID, err)
	}

	bodies, sourceRefs, err := p.extractContent(ctx, req.EpisodeID, articles)
	if err != nil {
		return p.fail(req.EpisodeID, err)
	}
	for i := range articles {
		articles[i].ExtractedBody = bodies[articles[i].ID]
	}

	s, err := p.draftScript(ctx, req, articles)
	if err != nil {
		return p.fail(req.EpisodeID, err)
	}

	combinedPCM, offsets, rendered, err := p.renderAudio(ctx, req.EpisodeID, s)
	if err != nil {
		return p.fail(req.EpisodeID, err)
	}

	segments, vttContent, jsonBytes, durationSeconds, err := p.buildTimestamps(ctx, req.EpisodeID, s, offsets, rendered)
	if err != nil {
		return p.fail(req.EpisodeID, err)
	}

	audioURL, transcriptURL, chapterURL, err := p.uploadArtifacts(ctx, req.EpisodeID, ep.UserID, combinedPCM, jsonBytes, vttContent)
	if err != nil {
		return p.fail(req.EpisodeID, err)
	}

	return p.finalize(ctx, req.EpisodeID, s, segments, sourceRefs, audioURL, transcriptURL, chapterURL, durationSeconds)
}

func (p *Pipeline) fail(episodeID string, cause error) error {
	msg := cause.Error()
	// Cancellation leaves no partial artifacts; the caller's context is
	// already done, so use a short-lived detached context for the write.
	writeCtx := context.Background()
	if apperr.Is(cause, apperr.Cancelled) {
		var cancel context.CancelFunc
		writeCtx, cancel = context.WithTimeout(writeCtx, 5*time.Second)
		defer cancel()
	}
	if err := p.db.Episodes().Fail(writeCtx, episodeID, msg); err != nil {
		logger.Stage("episode", map[string]string{"episode_id": episodeID}).Error().Err(err).Msg("failed to record episode failure")
	}
	return cause
}

func checkCancelled(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return apperr.New(apperr.Cancelled, "episode: context cancelled", err)
	}
	return nil
}

func (p *Pipeline) discoverArticles(ctx context.Context, req queue.EpisodeRequest, ep *core.Episode) ([]core.Article, error) {
	if err := checkCancelled(ctx); err != nil {
		return nil, err
	}
	if err := p.db.Episodes().UpdateStatus(ctx, req.EpisodeID, core.StatusDiscoveringArticles, "discovering_articles", 10); err != nil {
		return nil, fmt.Errorf("episode: update status to discovering_articles: %w", err)
	}

	heardIDs, err := p.db.Episodes().HeardClusterIDs(ctx, ep.UserID)
	if err != nil {
		return nil, fmt.Errorf("episode: heard cluster ids: %w", err)
	}
	heard := make(map[string]struct{}, len(heardIDs))
	for _, id := range heardIDs {
		heard[id] = struct{}{}
	}

	articles, err := p.selector.Select(ctx, selection.Request{
		Subcategories:   req.Subcategories,
		CustomTags:      req.CustomTags,
		HeardClusterIDs: heard,
		N:               p.cfg.ArticlesPerEpisode,
	})
	if err != nil {
		return nil, err
	}
	return articles, nil
}

// extractContent fetches each article's body, falling back to other
// articles from the same cluster on failure, and finally to the RSS
// summary if every backup also fails (grounded on
// podcast_generator.py's _convert_articles_to_sources).
func (p *Pipeline) extractContent(ctx context.Context, episodeID string, articles []core.Article) (map[string]string, []core.SourceReference, error) {
	if err := checkCancelled(ctx); err != nil {
		return nil, nil, err
	}
	if err := p.db.Episodes().UpdateStatus(ctx, episodeID, core.StatusExtractingContent, "extracting_content", 20); err != nil {
		return nil, nil, fmt.Errorf("episode: update status to extracting_content: %w", err)
	}
	log := logger.Stage("episode", map[string]string{"episode_id": episodeID})

	bodies := make(map[string]string, len(articles))
	refs := make([]core.SourceReference, 0, len(articles))

	for _, a := range articles {
		body, ok := p.extractor.Fetch(ctx, a.URL)
		usedArticle := a

		if !ok {
			log.Warn().Str("article_id", a.ID).Msg("extraction failed, trying cluster backups")
			backups, err := p.selector.Backups(ctx, a)
			if err == nil {
				for _, backup := range backups {
					if b, ok2 := p.extractor.Fetch(ctx, backup.URL); ok2 {
						body, ok, usedArticle = b, true, backup
						break
					}
				}
			}
		}

		if !ok {
			body = a.Summary
			log.Warn().Str("article_id", a.ID).Msg("all backups failed, using summary")
		}

		bodies[a.ID] = body
		refs = append(refs, core.SourceReference{
			EpisodeID:   episodeID,
			ArticleID:   usedArticle.ID,
			ClusterID:   usedArticle.ClusterID,
			Title:       usedArticle.Title,
			URL:         usedArticle.URL,
			PublishedAt: usedArticle.PublishedAt,
			Excerpt:     excerpt(usedArticle.Summary, 200),
			Summary:     usedArticle.Summary,
		})
	}
	return bodies, refs, nil
}

func excerpt(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

func (p *Pipeline) draftScript(ctx context.Context, req queue.EpisodeRequest, articles []core.Article) (*script.Script, error) {
	if err := checkCancelled(ctx); err != nil {
		return nil, err
	}
	if err := p.db.Episodes().UpdateStatus(ctx, req.EpisodeID, core.StatusGeneratingScript, "generating_script", 40); err != nil {
		return nil, fmt.Errorf("episode: update status to generating_script: %w", err)
	}

	// core.User carries no display-name field, so framing always falls
	// back to the generic "Welcome back" greeting.
	return p.scriptOrch.Build(ctx, articles, "", req.DurationMinutes)
}

func (p *Pipeline) renderAudio(ctx context.Context, episodeID string, s *script.Script) ([]int16, []audio.Offset, []tts.Rendered, error) {
	if err := checkCancelled(ctx); err != nil {
		return nil, nil, nil, err
	}
	if err := p.db.Episodes().UpdateStatus(ctx, episodeID, core.StatusGeneratingAudio, "generating_audio", 60); err != nil {
		return nil, nil, nil, fmt.Errorf("episode: update status to generating_audio: %w", err)
	}

	texts := make([]string, len(s.Paragraphs))
	for i, para := range s.Paragraphs {
		texts[i] = para.Text
	}
	rendered := p.ttsService.RenderAll(ctx, texts)

	chunks := make([]audio.Chunk, len(rendered))
	for i, r := range rendered {
		chunks[i] = r.Chunk
	}
	combined, offsets := audio.Combine(chunks, p.cfg.CrossfadeMS, p.cfg.SampleRateHz)
	return combined, offsets, rendered, nil
}

func (p *Pipeline) buildTimestamps(ctx context.Context, episodeID string, s *script.Script, offsets []audio.Offset, rendered []tts.Rendered) ([]transcript.Segment, []byte, []byte, float64, error) {
	if err := checkCancelled(ctx); err != nil {
		return nil, nil, nil, 0, err
	}
	if err := p.db.Episodes().UpdateStatus(ctx, episodeID, core.StatusGeneratingTimestamps, "generating_timestamps", 80); err != nil {
		return nil, nil, nil, 0, fmt.Errorf("episode: update status to generating_timestamps: %w", err)
	}

	inputs := make([]transcript.ParagraphInput, len(s.Paragraphs))
	for i, para := range s.Paragraphs {
		inputs[i] = transcript.ParagraphInput{
			Text:                para.Text,
			Topic:               para.Topic,
			SourceArticleIDs:    para.SourceArticleIDs,
			Offset:              offsets[i],
			Words:               rendered[i].Words,
			ExcludeFromChapters: para.IsFraming,
		}
	}

	segments := transcript.BuildSegments(inputs)
	jsonBytes, err := transcript.RenderJSON(segments)
	if err != nil {
		return nil, nil, nil, 0, fmt.Errorf("episode: render transcript json: %w", err)
	}
	vtt := transcript.RenderWebVTT(segments)

	duration := 0.0
	if len(offsets) > 0 {
		duration = offsets[len(offsets)-1].End
	}
	return segments, []byte(vtt), jsonBytes, duration, nil
}

func (p *Pipeline) uploadArtifacts(ctx context.Context, episodeID, userID string, pcm []int16, transcriptJSON, vtt []byte) (audioURL, transcriptURL, chapterURL string, err error) {
	if err := checkCancelled(ctx); err != nil {
		return "", "", "", err
	}
	if err := p.db.Episodes().UpdateStatus(ctx, episodeID, core.StatusUploadingFiles, "uploading_files", 90); err != nil {
		return "", "", "", fmt.Errorf("episode: update status to uploading_files: %w", err)
	}

	wav := audio.WriteWAV(pcm, p.cfg.SampleRateHz)
	mp3, err := p.encoder.EncodeMP3(wav, p.cfg.MP3BitrateKbps)
	if err != nil {
		return "", "", "", fmt.Errorf("episode: encode mp3: %w", err)
	}

	audioURL, err = p.store.Put(ctx, objectstore.AudioKey(episodeID, userID), bytes.NewReader(mp3), "audio/mpeg")
	if err != nil {
		return "", "", "", fmt.Errorf("episode: upload audio: %w", err)
	}
	transcriptURL, err = p.store.Put(ctx, objectstore.TranscriptKey(episodeID, userID), bytes.NewReader(transcriptJSON), "application/json")
	if err != nil {
		return "", "", "", fmt.Errorf("episode: upload transcript: %w", err)
	}
	chapterURL, err = p.store.Put(ctx, objectstore.ChapterKey(episodeID, userID), bytes.NewReader(vtt), "text/vtt")
	if err != nil {
		return "", "", "", fmt.Errorf("episode: upload chapters: %w", err)
	}
	return audioURL, transcriptURL, chapterURL, nil
}

func (p *Pipeline) finalize(ctx context.Context, episodeID string, s *script.Script, segments []transcript.Segment, sourceRefs []core.SourceReference, audioURL, transcriptURL, chapterURL string, durationSeconds float64) error {
	if err := checkCancelled(ctx); err != nil {
		return err
	}
	if err := p.db.Episodes().UpdateStatus(ctx, episodeID, core.StatusFinalizing, "finalizing", 95); err != nil {
		return fmt.Errorf("episode: update status to finalizing: %w", err)
	}

	rows := transcript.ToEpisodeSegments(episodeID, segments)
	if len(rows) > 0 {
		if err := p.db.Segments().CreateBatch(ctx, rows); err != nil {
			return fmt.Errorf("episode: store segments: %w", err)
		}
	}
	if len(sourceRefs) > 0 {
		if err := p.db.SourceReferences().CreateBatch(ctx, sourceRefs); err != nil {
			return fmt.Errorf("episode: store source references: %w", err)
		}
	}

	// Finalize is the last write: it both records the artifacts and
	// transitions the episode to completed.
	if err := p.db.Episodes().Finalize(ctx, episodeID, s.Title, s.Description, audioURL, transcriptURL, chapterURL, durationSeconds); err != nil {
		return fmt.Errorf("episode: finalize: %w", err)
	}
	return nil
}
