package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dshills/funcsim-mcp/internal/logging"
	"github.com/dshills/funcsim-mcp/internal/observability"
	"github.com/dshills/funcsim-mcp/internal/session"
	"github.com/dshills/funcsim-mcp/internal/signature"
	"github.com/dshills/funcsim-mcp/internal/storage"
	"github.com/dshills/funcsim-mcp/pkg/types"
)

var (
	// ErrIngestInProgress is returned when another ingest holds the lock
	ErrIngestInProgress = errors.New("ingest already in progress")
	// ErrReadOnlyStore is returned when the connected store cannot accept signatures
	ErrReadOnlyStore = errors.New("store does not accept new signatures")
)

// Config contains configuration for the ingester
type Config struct {
	Workers int // Number of programs written concurrently (default: runtime.NumCPU())
}

// Statistics contains statistics about an ingest run
type Statistics struct {
	Programs          int
	FunctionsIngested int
	FunctionsFailed   int
	Duration          time.Duration
	ErrorMessages     []string
}

// transactor is implemented by stores that can group writes in a transaction
type transactor interface {
	WithTx(ctx context.Context, fn func(storage.Ingester) error) error
}

// Ingester coordinates catalog ingestion: catalog -> executables -> functions
type Ingester struct {
	conn   *session.Connector
	cfg    Config
	logger *slog.Logger
	lock   Lock
}

// New creates an Ingester writing through conn
func New(conn *session.Connector, cfg Config, logger *slog.Logger) *Ingester {
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}
	return &Ingester{conn: conn, cfg: cfg, logger: logging.OrNoop(logger)}
}

// IngestCatalog writes every program and function of cat into the connected
// store. Per-function failures are collected in the statistics; the returned
// error is reserved for failures that stop the whole run.
func (i *Ingester) IngestCatalog(ctx context.Context, cat *signature.Catalog) (*Statistics, error) {
	if cat == nil {
		return nil, types.Wrapf(types.ErrInvalidArgument, "catalog is required")
	}
	if !i.lock.TryAcquire() {
		return nil, ErrIngestInProgress
	}
	defer i.lock.Release()

	store, _, release, err := i.conn.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	writer, ok := store.(storage.Ingester)
	if !ok {
		return nil, types.Wrap(types.ErrInvalidArgument, ErrReadOnlyStore)
	}

	start := time.Now()
	stats := &Statistics{
		Programs:      len(cat.Programs),
		ErrorMessages: make([]string, 0),
	}

	var (
		ingested atomic.Int32
		failed   atomic.Int32
		mu       sync.Mutex // Protect stats.ErrorMessages
	)
	recordFailure := func(msg string) {
		failed.Add(1)
		observability.IngestedFunctionsTotal.WithLabelValues("failed").Inc()
		mu.Lock()
		stats.ErrorMessages = append(stats.ErrorMessages, msg)
		mu.Unlock()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(i.cfg.Workers)

	for _, prog := range cat.Programs {
		g.Go(func() error {
			write := func(w storage.Ingester) error {
				return i.ingestProgram(gctx, w, prog, &ingested, recordFailure)
			}
			if tx, ok := store.(transactor); ok {
				return tx.WithTx(gctx, write)
			}
			return write(writer)
		})
	}

	if err := g.Wait(); err != nil {
		if ctxErr := types.FromContext(ctx); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, types.Wrap(types.ErrQueryFailed, err)
	}

	stats.FunctionsIngested = int(ingested.Load())
	stats.FunctionsFailed = int(failed.Load())
	stats.Duration = time.Since(start)

	i.logger.Info("catalog ingested",
		"programs", stats.Programs,
		"functions", stats.FunctionsIngested,
		"failed", stats.FunctionsFailed,
		"elapsed", stats.Duration)
	return stats, nil
}

// ingestProgram writes one executable and its functions. A failure to write
// the executable aborts the program; function failures are recorded and skipped.
func (i *Ingester) ingestProgram(ctx context.Context, w storage.Ingester, prog signature.CatalogProgram,
	ingested *atomic.Int32, recordFailure func(string)) error {

	exe := &storage.Executable{
		MD5:          prog.ID,
		Name:         prog.Name,
		Path:         prog.Path,
		Architecture: prog.Architecture,
		Compiler:     prog.Compiler,
	}
	if err := w.UpsertExecutable(ctx, exe); err != nil {
		return fmt.Errorf("executable %s: %w", prog.Path, err)
	}

	for _, f := range prog.Functions {
		if err := ctx.Err(); err != nil {
			return err
		}

		fn := &storage.Function{
			ExecutableID: exe.ID,
			Name:         f.Name,
			Address:      f.Address,
			Vector:       f.Features,
		}
		if err := w.UpsertFunction(ctx, fn); err != nil {
			i.logger.Debug("function ingest failed", "program", prog.Path, "function", f.Name, "error", err)
			recordFailure(fmt.Sprintf("%s %s@%s: %v", prog.Path, f.Name, f.Address, err))
			continue
		}
		ingested.Add(1)
		observability.IngestedFunctionsTotal.WithLabelValues("ok").Inc()
	}
	return nil
}
