// Package service composes the similarity engine's components into the
// operations a transport exposes: store lifecycle, ranked queries, artifact
// resolution, exact-name selection, store creation and catalog ingestion.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/dshills/funcsim-mcp/internal/filter"
	"github.com/dshills/funcsim-mcp/internal/ingest"
	"github.com/dshills/funcsim-mcp/internal/logging"
	"github.com/dshills/funcsim-mcp/internal/ranker"
	"github.com/dshills/funcsim-mcp/internal/resolver"
	"github.com/dshills/funcsim-mcp/internal/selector"
	"github.com/dshills/funcsim-mcp/internal/session"
	"github.com/dshills/funcsim-mcp/internal/signature"
	"github.com/dshills/funcsim-mcp/internal/storage"
	"github.com/dshills/funcsim-mcp/pkg/types"
)

// ErrStoreExists is returned by CreateStore when the target file already exists
var ErrStoreExists = errors.New("store already exists")

// Deps are the components a Service is built from
type Deps struct {
	Connector  *session.Connector
	Catalog    *signature.CatalogProvider // Receives ingested catalogs
	Signatures *signature.CachedProvider  // Cache in front of Catalog
	Ranker     *ranker.Ranker
	Resolver   *resolver.Resolver
	Ingester   *ingest.Ingester
	Logger     *slog.Logger
}

// Service implements the inbound operations
type Service struct {
	conn       *session.Connector
	catalog    *signature.CatalogProvider
	signatures *signature.CachedProvider
	ranker     *ranker.Ranker
	resolver   *resolver.Resolver
	ingester   *ingest.Ingester
	logger     *slog.Logger
}

// New creates a Service
func New(d Deps) *Service {
	return &Service{
		conn:       d.Connector,
		catalog:    d.Catalog,
		signatures: d.Signatures,
		ranker:     d.Ranker,
		resolver:   d.Resolver,
		ingester:   d.Ingester,
		logger:     logging.OrNoop(d.Logger),
	}
}

// QueryResult is one page of matches for a single function
type QueryResult struct {
	Function types.FunctionRef // Function the signature belongs to
	Ranked   int               // Candidates returned by the store before filtering
	Page     *filter.Page
}

// FunctionResult is the outcome for one function of a batch query
type FunctionResult struct {
	Function types.FunctionRef
	Page     *filter.Page // Nil when Err is set
	Err      error
}

// BatchQueryResult holds per-function results in program order
type BatchQueryResult struct {
	Program   types.ProgramRef
	Functions []FunctionResult
	Failed    int
	Duration  time.Duration
}

// ExactMatch is the outcome of FindExactMatch
type ExactMatch struct {
	Candidate types.MatchCandidate
	Exact     bool // False when the top-ranked fallback was taken
	Scanned   int  // Ranked candidates examined
}

// ConnectStore parses location and connects to it, replacing any open store
func (s *Service) ConnectStore(ctx context.Context, location string) (*session.Status, error) {
	desc, err := types.ParseDescriptor(location)
	if err != nil {
		return nil, err
	}
	if err := s.conn.Connect(ctx, desc); err != nil {
		return nil, err
	}
	return s.conn.Status(ctx)
}

// DisconnectStore closes the open store, if any, and reports whether one was open
func (s *Service) DisconnectStore() (bool, error) {
	wasOpen := s.conn.Connected()
	if err := s.conn.Disconnect(); err != nil {
		return wasOpen, err
	}
	return wasOpen, nil
}

// CatalogStatus describes the signatures available to queries
type CatalogStatus struct {
	Programs         []types.ProgramRef
	CachedSignatures int
}

// CatalogStatus lists the programs the signature provider knows
func (s *Service) CatalogStatus() CatalogStatus {
	return CatalogStatus{
		Programs:         s.catalog.Programs(),
		CachedSignatures: s.signatures.Size(),
	}
}

// StoreStatus reports the connection state and store statistics
func (s *Service) StoreStatus(ctx context.Context) (*session.Status, error) {
	return s.conn.Status(ctx)
}

// QueryFunction looks up the signature of fn and returns one filtered page of
// its nearest neighbours.
func (s *Service) QueryFunction(ctx context.Context, fn types.FunctionRef, maxMatches int, spec types.FilterSpec) (*QueryResult, error) {
	if err := fn.Validate(); err != nil {
		return nil, types.Wrap(types.ErrInvalidArgument, err)
	}
	if err := validateQuery(maxMatches, spec); err != nil {
		return nil, err
	}
	if err := s.conn.RequireOpen(); err != nil {
		return nil, err
	}

	sig, err := s.signatures.Compute(ctx, fn)
	if err != nil {
		return nil, err
	}
	return s.QuerySignature(ctx, sig, maxMatches, spec)
}

// QuerySignature ranks sig against the store and returns one filtered page
func (s *Service) QuerySignature(ctx context.Context, sig types.Signature, maxMatches int, spec types.FilterSpec) (*QueryResult, error) {
	if err := validateQuery(maxMatches, spec); err != nil {
		return nil, err
	}

	ranked, err := s.ranker.Query(ctx, sig, maxMatches)
	if err != nil {
		return nil, err
	}
	page, err := filter.ApplyPage(ranked, spec)
	if err != nil {
		return nil, err
	}
	return &QueryResult{Function: sig.Function(), Ranked: len(ranked), Page: page}, nil
}

// QueryAllFunctions queries every function of program and applies spec to
// each function's matches independently.
func (s *Service) QueryAllFunctions(ctx context.Context, program types.ProgramRef, maxMatchesPerFunction int, spec types.FilterSpec) (*BatchQueryResult, error) {
	if err := validateQuery(maxMatchesPerFunction, spec); err != nil {
		return nil, err
	}

	batch, err := s.ranker.QueryAll(ctx, program, maxMatchesPerFunction)
	if err != nil {
		return nil, err
	}

	out := &BatchQueryResult{
		Program:   batch.Program,
		Functions: make([]FunctionResult, 0, len(batch.Functions)),
		Failed:    batch.Failed(),
		Duration:  batch.Duration,
	}
	for _, fn := range batch.Functions {
		key := fn.Key()
		if ferr, failed := batch.Errors[key]; failed {
			out.Functions = append(out.Functions, FunctionResult{Function: fn, Err: ferr})
			continue
		}
		page, err := filter.ApplyPage(batch.Results[key], spec)
		if err != nil {
			return nil, err
		}
		out.Functions = append(out.Functions, FunctionResult{Function: fn, Page: page})
	}
	return out, nil
}

// ResolveDisassembly fetches disassembly for ref. A zero timeout selects the
// default budget.
func (s *Service) ResolveDisassembly(ctx context.Context, ref types.MatchRef, timeout time.Duration) (*types.ResolvedArtifact, error) {
	if timeout < 0 {
		return nil, types.Wrapf(types.ErrInvalidArgument, "timeout cannot be negative: %s", timeout)
	}
	return s.resolver.ResolveDisassembly(ctx, ref, timeout)
}

// ResolveDecompilation fetches decompiled source for ref. A zero timeout
// selects the default budget.
func (s *Service) ResolveDecompilation(ctx context.Context, ref types.MatchRef, timeout time.Duration) (*types.ResolvedArtifact, error) {
	if timeout < 0 {
		return nil, types.Wrapf(types.ErrInvalidArgument, "timeout cannot be negative: %s", timeout)
	}
	return s.resolver.ResolveDecompilation(ctx, ref, timeout)
}

// FindExactMatch ranks the matches of fn and returns the first one named
// target. With fallbackTop set, a miss returns the top-ranked candidate
// instead and reports Exact=false.
func (s *Service) FindExactMatch(ctx context.Context, fn types.FunctionRef, target string, maxMatches int, fallbackTop bool) (*ExactMatch, error) {
	if target == "" {
		return nil, types.Wrapf(types.ErrInvalidArgument, "target name is required")
	}
	if err := fn.Validate(); err != nil {
		return nil, types.Wrap(types.ErrInvalidArgument, err)
	}
	if maxMatches <= 0 {
		return nil, types.Wrap(types.ErrInvalidArgument, types.ErrNonPositiveMatches)
	}
	if err := s.conn.RequireOpen(); err != nil {
		return nil, err
	}

	sig, err := s.signatures.Compute(ctx, fn)
	if err != nil {
		return nil, err
	}
	// The whole ranked sequence is scanned, never a single page
	ranked, err := s.ranker.Query(ctx, sig, maxMatches)
	if err != nil {
		return nil, err
	}

	match, err := selector.SelectExact(ranked, target)
	if err == nil {
		return &ExactMatch{Candidate: match, Exact: true, Scanned: len(ranked)}, nil
	}
	if !fallbackTop || !errors.Is(err, types.ErrNotFound) {
		return nil, err
	}

	top, topErr := selector.SelectTop(ranked)
	if topErr != nil {
		return nil, err
	}
	s.logger.Debug("exact match missing, using top candidate", "target", target, "top", top.Function.String())
	return &ExactMatch{Candidate: top, Exact: false, Scanned: len(ranked)}, nil
}

// CreateStore creates a new embedded store file with the current schema.
// When connect is set the new store becomes the open store.
func (s *Service) CreateStore(ctx context.Context, path string, connect bool) (*session.Status, error) {
	desc, err := types.ParseDescriptor(path)
	if err != nil {
		return nil, types.Wrap(types.ErrInvalidArgument, err)
	}
	if desc.Kind != types.StoreEmbedded || desc.Path == types.MemoryPath {
		return nil, types.Wrapf(types.ErrInvalidArgument, "only embedded store files can be created")
	}
	if _, err := os.Stat(desc.Path); err == nil {
		return nil, types.Wrap(types.ErrInvalidArgument, fmt.Errorf("%w: %s", ErrStoreExists, desc.Path))
	}
	if err := os.MkdirAll(filepath.Dir(desc.Path), 0755); err != nil {
		return nil, types.Wrap(types.ErrConnection, fmt.Errorf("failed to create store directory: %w", err))
	}

	store := storage.NewEmbeddedStore(desc.Path, storage.EmbeddedOptions{Create: true})
	if err := store.Open(ctx); err != nil {
		return nil, types.Wrap(types.ErrConnection, err)
	}
	if err := store.Close(); err != nil {
		return nil, types.Wrap(types.ErrConnection, err)
	}
	s.logger.Info("store created", "path", desc.Path)

	if !connect {
		return &session.Status{Connected: false, Kind: desc.Kind, Location: desc.Redacted()}, nil
	}
	if err := s.conn.Connect(ctx, desc); err != nil {
		return nil, err
	}
	return s.conn.Status(ctx)
}

// IngestCatalog loads the catalog at path, writes it into the open store and
// makes its signatures available to queries.
func (s *Service) IngestCatalog(ctx context.Context, path string) (*ingest.Statistics, error) {
	if path == "" {
		return nil, types.Wrapf(types.ErrInvalidArgument, "catalog path is required")
	}
	cat, err := signature.LoadCatalog(path)
	if err != nil {
		return nil, types.Wrap(types.ErrInvalidArgument, err)
	}

	stats, err := s.ingester.IngestCatalog(ctx, cat)
	if err != nil {
		return nil, err
	}

	s.catalog.Merge(cat)
	s.signatures.Purge()
	return stats, nil
}

// LoadCatalog makes the signatures in the catalog at path available to
// queries without writing them to the store.
func (s *Service) LoadCatalog(path string) (int, error) {
	cat, err := signature.LoadCatalog(path)
	if err != nil {
		return 0, types.Wrap(types.ErrInvalidArgument, err)
	}
	s.catalog.Merge(cat)
	s.signatures.Purge()
	return cat.FunctionCount(), nil
}

func validateQuery(maxMatches int, spec types.FilterSpec) error {
	if maxMatches <= 0 {
		return types.Wrap(types.ErrInvalidArgument, types.ErrNonPositiveMatches)
	}
	return spec.Validate()
}
