// Package storage keeps the metadata generation currently served.
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/matthisholleville/authgate/internal/metadata"
	"github.com/matthisholleville/authgate/internal/permissions"
	"github.com/matthisholleville/authgate/pkg/logger"
)

// ErrNoGeneration is returned before the first metadata load succeeded.
var ErrNoGeneration = errors.New("no metadata generation loaded")

// Generation is one successfully resolved metadata load. It is never mutated
// once stored: a reload stores a new Generation.
type Generation struct {
	ID       uuid.UUID
	LoadedAt time.Time
	Source   string
	Table    permissions.Table
	Registry *metadata.TypeRegistry
}

// NewGeneration wraps a resolved table into a new Generation.
func NewGeneration(source string, table permissions.Table, registry *metadata.TypeRegistry) *Generation {
	return &Generation{
		ID:       uuid.New(),
		LoadedAt: time.Now().UTC(),
		Source:   source,
		Table:    table,
		Registry: registry,
	}
}

// Interface stores the current generation.
type Interface interface {
	Current(ctx context.Context) (*Generation, error)
	Swap(ctx context.Context, generation *Generation) error
}

// NewStorage creates a new storage instance.
func NewStorage(_ context.Context, storageType string, log logger.Logger) (Interface, error) {
	switch storageType {
	case "memory":
		return NewMemoryStorage(log), nil
	}
	return nil, fmt.Errorf("invalid storage type: %s", storageType)
}
