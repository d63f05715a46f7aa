package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/journal-ingest/internal/metrics"
	"github.com/JakeFAU/journal-ingest/internal/storage"
)

// State names a step of the page loop.
type State string

// Loop states, in the order a page moves through them.
const (
	StateIdle        State = "idle"
	StateCheckExists State = "check_exists"
	StateFetch       State = "fetch"
	StateUpload      State = "upload"
	StateDone        State = "done"
	StateFailed      State = "failed"
)

// Progress is a point-in-time view of a running Ingester.
type Progress struct {
	State   State   `json:"state"`
	Page    int     `json:"page"`
	Summary Summary `json:"summary"`
}

// Ingester drives the sequential page loop.
type Ingester struct {
	cfg       Config
	fetcher   Fetcher
	store     storage.Provider
	publisher Publisher
	recorder  RunRecorder
	logger    *zap.Logger
	now       func() time.Time

	mu      sync.RWMutex
	state   State
	page    int
	summary Summary
}

// New constructs an Ingester. publisher and recorder may be nil.
func New(
	cfg Config,
	fetcher Fetcher,
	store storage.Provider,
	publisher Publisher,
	recorder RunRecorder,
	logger *zap.Logger,
) (*Ingester, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if fetcher == nil {
		return nil, fmt.Errorf("%w: fetcher is required", ErrInvalidConfig)
	}
	if store == nil {
		return nil, fmt.Errorf("%w: store is required", ErrInvalidConfig)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ingester{
		cfg:       cfg,
		fetcher:   fetcher,
		store:     store,
		publisher: publisher,
		recorder:  recorder,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
		state:     StateIdle,
	}, nil
}

// Progress returns a copy of the current loop position and counters.
func (in *Ingester) Progress() Progress {
	in.mu.RLock()
	defer in.mu.RUnlock()
	s := in.summary
	s.FailedPages = append([]int{}, in.summary.FailedPages...)
	return Progress{State: in.state, Page: in.page, Summary: s}
}

func (in *Ingester) setState(state State, page int) {
	in.mu.Lock()
	in.state = state
	in.page = page
	in.mu.Unlock()
}

func (in *Ingester) update(fn func(*Summary)) {
	in.mu.Lock()
	fn(&in.summary)
	in.mu.Unlock()
}

// Key returns the blob name for page under the configured prefix.
func (in *Ingester) Key(page int) string {
	return KeyFor(in.cfg.KeyPrefix, page)
}

// Exists is the idempotency probe. Under ProbeFailOpen a lookup error is
// logged and reported as false; under ProbeFailClosed it is returned wrapped
// in ErrProbeFailed.
func (in *Ingester) Exists(ctx context.Context, key string) (bool, error) {
	exists, err := in.store.Exists(ctx, key)
	if err == nil {
		return exists, nil
	}
	metrics.ObserveProbeError()
	if in.cfg.ProbePolicy == ProbeFailClosed {
		return false, fmt.Errorf("%w: %s: %w", ErrProbeFailed, key, err)
	}
	in.logger.Warn("Error checking blob existence; treating as missing",
		zap.String("key", key), zap.Error(err))
	return false, nil
}

// Upload writes batch to key as JSON and returns the store URI.
func (in *Ingester) Upload(ctx context.Context, key string, batch Batch) (string, error) {
	data, err := EncodeBatch(batch)
	if err != nil {
		return "", err
	}
	uri, err := in.store.PutObject(ctx, key, ContentType, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", key, err)
	}
	metrics.ObserveUploadBytes(len(data))
	return uri, nil
}

// Run walks pages from the configured start page until the API returns an
// empty page. Upload failures skip the page for good; they are listed in
// Summary.FailedPages. Fetch failures and cancellation end the run with an error.
func (in *Ingester) Run(ctx context.Context) (Summary, error) {
	runID, err := uuid.NewV7()
	if err != nil {
		return Summary{}, fmt.Errorf("generate run id: %w", err)
	}
	in.update(func(s *Summary) {
		*s = Summary{
			RunID:       runID.String(),
			StartPage:   in.cfg.StartPage,
			FailedPages: []int{},
			StartedAt:   in.now(),
		}
	})
	logger := in.logger.With(zap.String("run_id", runID.String()))
	logger.Info("Starting to fetch articles",
		zap.Int("per_page", in.cfg.PerPage),
		zap.Int("start_page", in.cfg.StartPage),
		zap.String("project", in.cfg.Project),
		zap.String("bucket", in.cfg.Bucket))

	runErr := in.loop(ctx, logger, runID.String())

	in.update(func(s *Summary) { s.FinishedAt = in.now() })
	summary := in.Progress().Summary
	if runErr != nil {
		in.setState(StateFailed, summary.StopPage)
		logger.Error("Run aborted", zap.Int("page", summary.StopPage), zap.Error(runErr))
	} else {
		in.setState(StateDone, summary.StopPage)
		logger.Info("Finished! All articles uploaded",
			zap.String("project", in.cfg.Project),
			zap.String("bucket", in.cfg.Bucket),
			zap.Int("pages_uploaded", summary.PagesUploaded),
			zap.Int("pages_existing", summary.PagesExisting),
			zap.Int("articles_uploaded", summary.ArticlesUploaded),
			zap.Ints("failed_pages", summary.FailedPages))
	}

	if in.recorder != nil {
		if err := in.recorder.RecordRun(context.WithoutCancel(ctx), summary, runErr); err != nil {
			logger.Warn("Failed to record run", zap.Error(err))
		}
	}
	return summary, runErr
}

func (in *Ingester) loop(ctx context.Context, logger *zap.Logger, runID string) error {
	for page := in.cfg.StartPage; ; page++ {
		in.update(func(s *Summary) { s.StopPage = page })
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("page %d: %w", page, err)
		}
		key := in.Key(page)
		pageLog := logger.With(zap.Int("page", page), zap.String("key", key))

		in.setState(StateCheckExists, page)
		exists, err := in.Exists(ctx, key)
		if err != nil {
			return err
		}
		if exists {
			pageLog.Info("Page already exists in store; skipping")
			metrics.ObservePage(metrics.OutcomeExists)
			in.update(func(s *Summary) { s.PagesExisting++ })
			continue
		}

		in.setState(StateFetch, page)
		pageLog.Info("Fetching page")
		batch, err := in.fetcher.FetchPage(ctx, in.cfg.PerPage, page)
		if err != nil {
			return fmt.Errorf("fetch page %d: %w", page, err)
		}
		if batch.Empty() {
			pageLog.Info("No more articles found; stopping")
			metrics.ObservePage(metrics.OutcomeEmpty)
			return nil
		}

		in.setState(StateUpload, page)
		articles := batch.Articles()
		uri, err := in.Upload(ctx, key, batch)
		if err != nil {
			if errors.Is(err, context.Canceled) && ctx.Err() != nil {
				return fmt.Errorf("page %d: %w", page, err)
			}
			pageLog.Error("Error uploading page; continuing to next page", zap.Error(err))
			metrics.ObservePage(metrics.OutcomeUploadFailed)
			in.update(func(s *Summary) { s.FailedPages = append(s.FailedPages, page) })
			continue
		}
		pageLog.Info("Uploaded articles",
			zap.Int("articles", articles),
			zap.String("project", in.cfg.Project),
			zap.String("uri", uri))
		metrics.ObservePage(metrics.OutcomeUploaded)
		metrics.ObserveArticles(articles)
		in.update(func(s *Summary) {
			s.PagesUploaded++
			s.ArticlesUploaded += articles
		})
		in.notify(ctx, pageLog, PageUploaded{
			RunID:    runID,
			Page:     page,
			Key:      key,
			URI:      uri,
			Articles: articles,
		})
	}
}

func (in *Ingester) notify(ctx context.Context, logger *zap.Logger, event PageUploaded) {
	if in.publisher == nil {
		return
	}
	id, err := in.publisher.Publish(ctx, in.cfg.Topic, event)
	if err != nil {
		logger.Warn("Failed to publish upload notification", zap.Error(err))
		return
	}
	logger.Debug("Published upload notification", zap.String("message_id", id))
}
