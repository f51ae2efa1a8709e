package importer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/aadhaar-drishti/backend/internal/metrics"
	"github.com/aadhaar-drishti/backend/internal/storage"
	"github.com/aadhaar-drishti/backend/internal/storage/models"
	"github.com/aadhaar-drishti/backend/pkg/logger"
	"github.com/aadhaar-drishti/backend/pkg/retry"
)

const DefaultBatchSize = 1000

type Request struct {
	Path    string
	Kind    models.ImportKind
	Replace bool
}

type BatchFailure struct {
	Batch int    `json:"batch"`
	Rows  int    `json:"rows"`
	Error string `json:"error"`
}

type Result struct {
	Kind          models.ImportKind `json:"kind"`
	Observed      int               `json:"observed"`
	Inserted      int               `json:"inserted"`
	Skipped       int               `json:"skipped"`
	Replaced      int64             `json:"replaced,omitempty"`
	FailedBatches []BatchFailure    `json:"failedBatches,omitempty"`
	Duration      time.Duration     `json:"duration"`
}

func (r *Result) Message() string {
	return fmt.Sprintf("Imported %d %s records", r.Inserted, r.Kind)
}

type Importer struct {
	store       storage.FactStore
	opener      Opener
	batchSize   int
	concurrency int
	retryCfg    retry.Config
}

type Option func(*Importer)

func WithBatchSize(n int) Option {
	return func(im *Importer) {
		if n > 0 {
			im.batchSize = n
		}
	}
}

// WithConcurrency bounds how many batches are being inserted at once.
func WithConcurrency(n int) Option {
	return func(im *Importer) {
		if n > 0 {
			im.concurrency = n
		}
	}
}

func WithRetry(cfg retry.Config) Option {
	return func(im *Importer) { im.retryCfg = cfg }
}

func New(store storage.FactStore, opener Opener, opts ...Option) *Importer {
	retryCfg := retry.DefaultConfig()
	retryCfg.Logger = logger.Named("importer")

	im := &Importer{
		store:       store,
		opener:      opener,
		batchSize:   DefaultBatchSize,
		concurrency: 4,
		retryCfg:    retryCfg,
	}
	for _, opt := range opts {
		opt(im)
	}
	return im
}

// Open returns a lazy stream over the rows at path.
func (im *Importer) Open(ctx context.Context, path string, kind models.ImportKind) (*RecordStream, error) {
	if _, err := models.ParseImportKind(string(kind)); err != nil {
		return nil, err
	}

	rc, err := im.opener.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	return openStream(rc, path, kind)
}

// Import streams path into the fact table for req.Kind. Batches are
// inserted concurrently up to the configured limit, each with bounded
// retries. A batch that still fails is recorded in FailedBatches and the
// import continues. A stream error stops the import; batches flushed before
// it stay persisted and Observed reports how far the stream got.
func (im *Importer) Import(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()
	result := &Result{Kind: req.Kind}

	stream, err := im.Open(ctx, req.Path, req.Kind)
	if err != nil {
		return result, fmt.Errorf("failed to open %s: %w", req.Path, err)
	}
	defer stream.Close()

	if req.Replace {
		n, err := im.store.DeleteFacts(ctx, req.Kind)
		if err != nil {
			return result, fmt.Errorf("failed to clear %s records: %w", req.Kind, err)
		}
		result.Replaced = n
		logger.Info("Cleared existing records", zap.String("kind", string(req.Kind)), zap.Int64("deleted", n))
	}

	logger.Info("Importing records",
		zap.String("path", req.Path),
		zap.String("kind", string(req.Kind)),
		zap.Int("batch_size", im.batchSize),
	)

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(im.concurrency)

	batches := 0
	flush := func(records []models.FactRecord) {
		index := batches
		batches++
		g.Go(func() error {
			err := retry.Do(gctx, im.retryCfg, func() error {
				return im.store.InsertFacts(gctx, req.Kind, records)
			})

			mu.Lock()
			defer mu.Unlock()

			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				logger.Error("Batch insert failed",
					zap.String("kind", string(req.Kind)),
					zap.Int("batch", index),
					zap.Int("rows", len(records)),
					zap.Error(err),
				)
				metrics.ImportBatchFailures.WithLabelValues(string(req.Kind)).Inc()
				metrics.ImportRowsTotal.WithLabelValues(string(req.Kind), "failed").Add(float64(len(records)))
				result.FailedBatches = append(result.FailedBatches, BatchFailure{
					Batch: index,
					Rows:  len(records),
					Error: err.Error(),
				})
				return nil
			}

			result.Inserted += len(records)
			metrics.ImportRowsTotal.WithLabelValues(string(req.Kind), "inserted").Add(float64(len(records)))
			return nil
		})
	}

	var streamErr error
	batch := make([]models.FactRecord, 0, im.batchSize)
	for {
		if gctx.Err() != nil {
			break
		}

		rec, err := stream.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			streamErr = err
			break
		}

		batch = append(batch, rec)
		if len(batch) == im.batchSize {
			flush(batch)
			batch = make([]models.FactRecord, 0, im.batchSize)
		}
	}
	if streamErr == nil && len(batch) > 0 {
		flush(batch)
	}

	waitErr := g.Wait()

	result.Observed = stream.Observed()
	result.Skipped = stream.Skipped()
	result.Duration = time.Since(start)
	metrics.ImportRowsTotal.WithLabelValues(string(req.Kind), "skipped").Add(float64(result.Skipped))
	metrics.ImportDuration.WithLabelValues(string(req.Kind)).Observe(result.Duration.Seconds())

	if streamErr != nil {
		logger.Error("Import stream failed",
			zap.String("path", req.Path),
			zap.Int("observed", result.Observed),
			zap.Error(streamErr),
		)
		return result, fmt.Errorf("import stopped after %d rows: %w", result.Observed, streamErr)
	}
	if waitErr == nil {
		waitErr = ctx.Err()
	}
	if waitErr != nil {
		return result, fmt.Errorf("import interrupted after %d rows: %w", result.Observed, waitErr)
	}

	logger.Info("Import complete",
		zap.String("kind", string(req.Kind)),
		zap.Int("observed", result.Observed),
		zap.Int("inserted", result.Inserted),
		zap.Int("skipped", result.Skipped),
		zap.Int("failed_batches", len(result.FailedBatches)),
		zap.Duration("duration", result.Duration),
	)

	return result, nil
}
