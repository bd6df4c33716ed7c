// Package resolver turns matched functions into disassembly or decompiled
// text through an external reverse-engineering toolkit, under a time budget.
//
// A facade that ignores its context cannot stall a caller: the resolver
// stops waiting once the budget elapses and reports TimeoutExceeded. The
// abandoned facade call finishes in the background and its result is
// dropped.
package resolver

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/dshills/funcsim-mcp/internal/logging"
	"github.com/dshills/funcsim-mcp/internal/observability"
	"github.com/dshills/funcsim-mcp/pkg/types"
)

// Default budgets
const (
	DefaultDecompileBudget   = 30 * time.Second
	DefaultDisassemblyBudget = 10 * time.Second
)

// Disassembler produces disassembly text for a function
type Disassembler interface {
	Disassemble(ctx context.Context, ref types.MatchRef) (string, error)
}

// Decompiler produces decompiled source for a function
type Decompiler interface {
	Decompile(ctx context.Context, ref types.MatchRef) (string, error)
}

// Gate reports whether a similarity store is connected
type Gate interface {
	RequireOpen() error
}

// Config holds the default budgets used when a caller passes none
type Config struct {
	DecompileBudget   time.Duration
	DisassemblyBudget time.Duration
}

func (c *Config) defaults() {
	if c.DecompileBudget <= 0 {
		c.DecompileBudget = DefaultDecompileBudget
	}
	if c.DisassemblyBudget <= 0 {
		c.DisassemblyBudget = DefaultDisassemblyBudget
	}
}

// Resolver fetches artifacts for matches
type Resolver struct {
	gate         Gate
	disassembler Disassembler
	decompiler   Decompiler
	cfg          Config
	logger       *slog.Logger
}

// New creates a Resolver
func New(gate Gate, disassembler Disassembler, decompiler Decompiler, cfg Config, logger *slog.Logger) *Resolver {
	cfg.defaults()
	return &Resolver{
		gate:         gate,
		disassembler: disassembler,
		decompiler:   decompiler,
		cfg:          cfg,
		logger:       logging.OrNoop(logger),
	}
}

// ResolveDisassembly fetches disassembly for ref within budget. A
// non-positive budget selects the configured default.
func (r *Resolver) ResolveDisassembly(ctx context.Context, ref types.MatchRef, budget time.Duration) (*types.ResolvedArtifact, error) {
	if budget <= 0 {
		budget = r.cfg.DisassemblyBudget
	}
	return r.resolve(ctx, types.ArtifactDisassembly, ref, budget, r.disassembler.Disassemble)
}

// ResolveDecompilation fetches decompiled source for ref within budget. A
// non-positive budget selects the configured default.
func (r *Resolver) ResolveDecompilation(ctx context.Context, ref types.MatchRef, budget time.Duration) (*types.ResolvedArtifact, error) {
	if budget <= 0 {
		budget = r.cfg.DecompileBudget
	}
	return r.resolve(ctx, types.ArtifactDecompilation, ref, budget, r.decompiler.Decompile)
}

type outcome struct {
	text string
	err  error
}

func (r *Resolver) resolve(
	ctx context.Context,
	kind types.ArtifactKind,
	ref types.MatchRef,
	budget time.Duration,
	call func(context.Context, types.MatchRef) (string, error),
) (artifact *types.ResolvedArtifact, err error) {
	if err := ref.Validate(); err != nil {
		return nil, types.Wrap(types.ErrInvalidArgument, err)
	}
	if err := r.gate.RequireOpen(); err != nil {
		return nil, err
	}
	if err := types.FromContext(ctx); err != nil {
		return nil, err
	}

	start := time.Now()
	defer func() {
		observability.ResolutionDuration.WithLabelValues(string(kind)).Observe(time.Since(start).Seconds())
		observability.ResolutionsTotal.WithLabelValues(string(kind), observability.Outcome(err, types.KindOf)).Inc()
	}()

	tctx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	// Buffered so an abandoned call never blocks on send
	done := make(chan outcome, 1)
	go func() {
		text, err := call(tctx, ref)
		done <- outcome{text: text, err: err}
	}()

	select {
	case out := <-done:
		if out.err != nil {
			return nil, r.classify(ctx, tctx, kind, ref, out.err)
		}
		elapsed := time.Since(start)
		r.logger.Debug("artifact resolved", "kind", kind, "function", ref.Function().String(), "elapsed", elapsed)
		return &types.ResolvedArtifact{
			Kind:     kind,
			Function: ref.Function(),
			Text:     out.text,
			Elapsed:  elapsed,
			Budget:   budget,
		}, nil
	case <-tctx.Done():
		if err := types.FromContext(ctx); err != nil {
			return nil, err
		}
		r.logger.Warn("resolution timed out", "kind", kind, "function", ref.Function().String(), "budget", budget)
		return nil, types.Wrapf(types.ErrTimeoutExceeded, "%s of %s exceeded %s", kind, ref.Function(), budget)
	}
}

// classify maps a facade error onto an error kind
func (r *Resolver) classify(parent, tctx context.Context, kind types.ArtifactKind, ref types.MatchRef, err error) error {
	if ctxErr := types.FromContext(parent); ctxErr != nil {
		return ctxErr
	}
	if errors.Is(tctx.Err(), context.DeadlineExceeded) {
		return types.Wrap(types.ErrTimeoutExceeded, err)
	}
	if errors.Is(err, types.ErrResolutionFailed) {
		return err
	}
	r.logger.Warn("resolution failed", "kind", kind, "function", ref.Function().String(), "error", err)
	return types.Wrap(types.ErrResolutionFailed, err)
}
