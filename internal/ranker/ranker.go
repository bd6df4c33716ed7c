package ranker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"slices"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dshills/funcsim-mcp/internal/logging"
	"github.com/dshills/funcsim-mcp/internal/observability"
	"github.com/dshills/funcsim-mcp/internal/session"
	"github.com/dshills/funcsim-mcp/internal/signature"
	"github.com/dshills/funcsim-mcp/internal/storage"
	"github.com/dshills/funcsim-mcp/pkg/types"
)

// DefaultQueryTimeout bounds a store query when the caller's context has no deadline
const DefaultQueryTimeout = 30 * time.Second

// Config controls batch concurrency and store query budgets
type Config struct {
	// Workers bounds concurrent per-function queries in QueryAll (default: NumCPU)
	Workers int
	// QueryTimeout applies to each store query whose context carries no deadline
	QueryTimeout time.Duration
}

func (c *Config) defaults() {
	if c.Workers <= 0 {
		c.Workers = runtime.NumCPU()
	}
	if c.QueryTimeout <= 0 {
		c.QueryTimeout = DefaultQueryTimeout
	}
}

// Ranker queries the connected store
type Ranker struct {
	conn     *session.Connector
	provider signature.Provider
	cfg      Config
	logger   *slog.Logger
}

// BatchResult holds the outcome of QueryAll. Results and Errors are keyed by
// FunctionRef.Key(); every function appears in exactly one of them.
type BatchResult struct {
	Program   types.ProgramRef
	Functions []types.FunctionRef
	Results   map[string][]types.MatchCandidate
	Errors    map[string]error
	Duration  time.Duration
}

// Failed returns the number of functions that could not be queried
func (b *BatchResult) Failed() int {
	return len(b.Errors)
}

// New creates a Ranker
func New(conn *session.Connector, provider signature.Provider, cfg Config, logger *slog.Logger) *Ranker {
	cfg.defaults()
	return &Ranker{
		conn:     conn,
		provider: provider,
		cfg:      cfg,
		logger:   logging.OrNoop(logger),
	}
}

// Query returns at most maxMatches candidates most similar to sig
func (r *Ranker) Query(ctx context.Context, sig types.Signature, maxMatches int) ([]types.MatchCandidate, error) {
	if maxMatches <= 0 {
		return nil, types.Wrap(types.ErrInvalidArgument, types.ErrNonPositiveMatches)
	}
	if sig.IsZero() {
		return nil, types.Wrap(types.ErrInvalidArgument, types.ErrEmptySignature)
	}

	// The read lock is held for the whole query, so an unbounded query would
	// also stall Connect and Disconnect.
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.QueryTimeout)
		defer cancel()
	}

	store, kind, release, err := r.conn.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	start := time.Now()
	matches, err := store.NearestNeighbors(ctx, sig, maxMatches)
	observability.QueryDuration.WithLabelValues(string(kind)).Observe(time.Since(start).Seconds())
	if err != nil {
		err = classify(ctx, err)
		observability.QueriesTotal.WithLabelValues(string(kind), types.KindOf(err)).Inc()
		return nil, err
	}
	for _, c := range matches {
		if err := c.Validate(); err != nil {
			err = types.Wrap(types.ErrQueryFailed, fmt.Errorf("store returned %s: %w", c.Function.Key(), err))
			observability.QueriesTotal.WithLabelValues(string(kind), types.KindOf(err)).Inc()
			return nil, err
		}
	}
	observability.QueriesTotal.WithLabelValues(string(kind), "ok").Inc()

	// Stores order their own output; re-sort so every store meets the same order.
	slices.SortStableFunc(matches, types.CompareCandidates)
	if len(matches) > maxMatches {
		matches = matches[:maxMatches]
	}

	r.logger.Debug("query finished",
		"function", sig.Function().String(),
		"matches", len(matches),
		"elapsed", time.Since(start))
	return matches, nil
}

// QueryAll queries every function of program independently. A failure for one
// function is recorded in the result and never aborts the batch; only
// cancellation of ctx or an unusable program fails the whole call.
func (r *Ranker) QueryAll(ctx context.Context, program types.ProgramRef, maxMatchesPerFunction int) (*BatchResult, error) {
	if maxMatchesPerFunction <= 0 {
		return nil, types.Wrap(types.ErrInvalidArgument, types.ErrNonPositiveMatches)
	}
	if err := r.conn.RequireOpen(); err != nil {
		return nil, err
	}

	start := time.Now()
	functions, err := r.provider.Functions(ctx, program)
	if err != nil {
		return nil, err
	}

	results := make([][]types.MatchCandidate, len(functions))
	errs := make([]error, len(functions))

	g := new(errgroup.Group)
	g.SetLimit(r.cfg.Workers)

	for i, fn := range functions {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			results[i], errs[i] = r.queryFunction(ctx, fn, maxMatchesPerFunction)
			return nil
		})
	}
	_ = g.Wait() // Workers never return errors

	if err := types.FromContext(ctx); err != nil {
		return nil, err
	}

	batch := &BatchResult{
		Program:   program,
		Functions: functions,
		Results:   make(map[string][]types.MatchCandidate, len(functions)),
		Errors:    make(map[string]error),
	}
	for i, fn := range functions {
		key := fn.Key()
		if errs[i] != nil {
			batch.Errors[key] = errs[i]
			observability.BatchFunctionFailures.Inc()
			r.logger.Warn("function query failed", "function", fn.String(), "error", errs[i])
			continue
		}
		batch.Results[key] = results[i]
	}
	batch.Duration = time.Since(start)

	r.logger.Info("batch query finished",
		"program", program.Key(),
		"functions", len(functions),
		"failed", batch.Failed(),
		"elapsed", batch.Duration)
	return batch, nil
}

func (r *Ranker) queryFunction(ctx context.Context, fn types.FunctionRef, maxMatches int) ([]types.MatchCandidate, error) {
	sig, err := r.provider.Compute(ctx, fn)
	if err != nil {
		return nil, err
	}
	return r.Query(ctx, sig, maxMatches)
}

// classify maps a store error onto an error kind
func classify(ctx context.Context, err error) error {
	if ctxErr := types.FromContext(ctx); ctxErr != nil {
		return ctxErr
	}
	if errors.Is(err, storage.ErrClosed) {
		return types.Wrap(types.ErrNotConnected, err)
	}
	return types.Wrap(types.ErrQueryFailed, err)
}
