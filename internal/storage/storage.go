package storage

import (
	"context"
	"errors"
	"time"

	"github.com/dshills/funcsim-mcp/pkg/types"
)

var (
	// ErrNotFound is returned when a requested entity doesn't exist
	ErrNotFound = errors.New("not found")
	// ErrClosed is returned when an operation runs against a store that is not open
	ErrClosed = errors.New("store is not open")
	// ErrStoreMissing is returned when an embedded store file does not exist
	ErrStoreMissing = errors.New("store file does not exist")
)

// SimilarityStore is the capability set every backing store provides.
// Implementations must be safe for concurrent NearestNeighbors calls once open.
type SimilarityStore interface {
	// Open establishes the connection and verifies the schema
	Open(ctx context.Context) error

	// Close releases the connection. Calling Close twice is harmless.
	Close() error

	// NearestNeighbors returns at most k candidates ordered by
	// types.CompareCandidates. It never mutates the store.
	NearestNeighbors(ctx context.Context, sig types.Signature, k int) ([]types.MatchCandidate, error)

	// Status reports store statistics
	Status(ctx context.Context) (*Status, error)
}

// Ingester is implemented by stores that accept new signatures
type Ingester interface {
	UpsertExecutable(ctx context.Context, exe *Executable) error
	UpsertFunction(ctx context.Context, fn *Function) error
}

// Executable represents an indexed program
type Executable struct {
	ID           int64
	MD5          string
	Name         string
	Path         string
	Architecture string
	Compiler     string
	CreatedAt    time.Time
}

// Ref converts the record into a types.ProgramRef
func (e *Executable) Ref() types.ProgramRef {
	return types.ProgramRef{ID: e.MD5, Name: e.Name, Path: e.Path}
}

// Function represents a function signature stored for an executable
type Function struct {
	ID           int64
	ExecutableID int64
	Name         string
	Address      string
	Vector       []float32
	FeatureCount int
	CreatedAt    time.Time
}

// Status contains statistics about an open store
type Status struct {
	Kind            types.StoreKind
	Location        string // Redacted descriptor
	SchemaVersion   string
	Similarity      string // Measure recorded in store_metadata, e.g. "cosine"
	Executables     int
	Functions       int
	VectorExtension bool
	Health          HealthStatus
}

// HealthStatus represents the health of the store
type HealthStatus struct {
	DatabaseAccessible bool
	SignaturesPresent  bool
}
