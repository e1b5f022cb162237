package storage

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/matthisholleville/authgate/pkg/logger"
	"go.uber.org/zap"
)

type MemoryStorage struct {
	current atomic.Pointer[Generation]
	logger  logger.Logger
}

func NewMemoryStorage(log logger.Logger) *MemoryStorage {
	return &MemoryStorage{logger: log}
}

// Current returns the generation being served.
func (s *MemoryStorage) Current(_ context.Context) (*Generation, error) {
	generation := s.current.Load()
	if generation == nil {
		return nil, ErrNoGeneration
	}
	return generation, nil
}

// Swap replaces the generation being served. Readers holding the previous
// generation keep a consistent view of it.
func (s *MemoryStorage) Swap(ctx context.Context, generation *Generation) error {
	if generation == nil {
		return errors.New("cannot store a nil generation")
	}
	previous := s.current.Swap(generation)
	fields := []zap.Field{zap.Stringer("generation", generation.ID), zap.Int("commands", len(generation.Table))}
	if previous != nil {
		fields = append(fields, zap.Stringer("previous", previous.ID))
	}
	s.logger.InfoWithContext(ctx, "Metadata generation stored", fields...)
	return nil
}
