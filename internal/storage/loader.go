package storage

import (
	"context"
	"fmt"
	"sync"

	"github.com/matthisholleville/authgate/internal/metadata"
	"github.com/matthisholleville/authgate/internal/metrics"
	"github.com/matthisholleville/authgate/internal/permissions"
	"github.com/matthisholleville/authgate/pkg/logger"
	"go.uber.org/zap"
)

// Metadata load outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Loader loads the metadata document, resolves it and stores the result.
// Reloads are serialized.
type Loader struct {
	mu          sync.Mutex
	storage     Interface
	path        string
	concurrency int
	logger      logger.Logger
}

func NewLoader(storage Interface, path string, concurrency int, log logger.Logger) *Loader {
	return &Loader{storage: storage, path: path, concurrency: concurrency, logger: log}
}

// Load builds a new generation from the metadata file and stores it. On
// failure the generation being served is left untouched.
func (l *Loader) Load(ctx context.Context) (*Generation, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	generation, err := BuildGeneration(ctx, l.path, l.concurrency, l.logger)
	if err != nil {
		metrics.MetadataResolutionsCounter.WithLabelValues(OutcomeFailure).Inc()
		l.logger.ErrorWithContext(ctx, "Unable to load metadata", zap.String("path", l.path), zap.Error(err))
		return nil, err
	}
	if err := l.storage.Swap(ctx, generation); err != nil {
		metrics.MetadataResolutionsCounter.WithLabelValues(OutcomeFailure).Inc()
		return nil, err
	}
	metrics.MetadataResolutionsCounter.WithLabelValues(OutcomeSuccess).Inc()
	metrics.ResolvedCommandsGauge.Set(float64(len(generation.Table)))
	return generation, nil
}

// BuildGeneration loads and resolves the metadata file at path.
func BuildGeneration(ctx context.Context, path string, concurrency int, log logger.Logger) (*Generation, error) {
	doc, err := metadata.LoadDocument(path)
	if err != nil {
		return nil, err
	}
	registry, err := doc.TypeRegistry()
	if err != nil {
		return nil, fmt.Errorf("invalid metadata types: %w", err)
	}
	commands, err := doc.Commands()
	if err != nil {
		return nil, fmt.Errorf("invalid metadata commands: %w", err)
	}
	table, err := permissions.Resolve(ctx, commands, doc.CommandPermissions(), registry,
		permissions.WithConcurrency(concurrency),
		permissions.WithLogger(log),
	)
	if err != nil {
		return nil, fmt.Errorf("invalid command permissions: %w", err)
	}
	return NewGeneration(path, table, registry), nil
}
