// Package signature supplies feature vectors for functions.
//
// Feature extraction happens outside this process. Signatures arrive as a
// catalog file produced by the extractor and are served through the
// Provider interface, optionally fronted by an LRU cache.
package signature

import (
	"context"

	"github.com/dshills/funcsim-mcp/pkg/types"
)

// Provider computes signatures and enumerates program functions
type Provider interface {
	// Compute returns the signature for fn. Unknown functions yield
	// types.ErrNotFound.
	Compute(ctx context.Context, fn types.FunctionRef) (types.Signature, error)

	// Functions lists the functions of a program in a stable order
	Functions(ctx context.Context, program types.ProgramRef) ([]types.FunctionRef, error)
}
