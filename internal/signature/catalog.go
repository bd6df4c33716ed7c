package signature

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/dshills/funcsim-mcp/pkg/types"
)

// ErrInvalidCatalog is returned when a catalog document fails validation
var ErrInvalidCatalog = errors.New("invalid signature catalog")

// Catalog is the on-disk signature format written by the extractor. JSON
// documents parse as well since YAML is a superset.
type Catalog struct {
	Version  string           `yaml:"version" json:"version"`
	Programs []CatalogProgram `yaml:"programs" json:"programs"`
}

// CatalogProgram is one executable in a catalog
type CatalogProgram struct {
	ID           string            `yaml:"id" json:"id"`
	Name         string            `yaml:"name" json:"name"`
	Path         string            `yaml:"path" json:"path"`
	Architecture string            `yaml:"architecture,omitempty" json:"architecture,omitempty"`
	Compiler     string            `yaml:"compiler,omitempty" json:"compiler,omitempty"`
	Functions    []CatalogFunction `yaml:"functions" json:"functions"`
}

// CatalogFunction is one function signature in a catalog
type CatalogFunction struct {
	Name     string    `yaml:"name" json:"name"`
	Address  string    `yaml:"address" json:"address"`
	Features []float32 `yaml:"features" json:"features"`
}

// Ref returns the program identity
func (p CatalogProgram) Ref() types.ProgramRef {
	return types.ProgramRef{ID: p.ID, Name: p.Name, Path: p.Path}
}

// LoadCatalog reads and validates a catalog file
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}
	return ParseCatalog(data)
}

// ParseCatalog decodes and validates a catalog document
func ParseCatalog(data []byte) (*Catalog, error) {
	var cat Catalog
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cat); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidCatalog, err)
	}
	if err := cat.normalize(); err != nil {
		return nil, err
	}
	return &cat, nil
}

// normalize validates the catalog and rewrites addresses to canonical form
func (c *Catalog) normalize() error {
	seen := make(map[string]bool, len(c.Programs))
	for i := range c.Programs {
		p := &c.Programs[i]
		if p.Path == "" {
			return fmt.Errorf("%w: program %d: %w", ErrInvalidCatalog, i, types.ErrMissingExecutable)
		}
		if seen[p.Path] {
			return fmt.Errorf("%w: duplicate program %s", ErrInvalidCatalog, p.Path)
		}
		seen[p.Path] = true
		if p.Name == "" {
			p.Name = p.Path
		}

		for j := range p.Functions {
			fn := &p.Functions[j]
			ref := types.FunctionRef{Program: p.Ref(), Name: fn.Name, Address: fn.Address}
			if err := ref.Validate(); err != nil {
				return fmt.Errorf("%w: %s function %d: %w", ErrInvalidCatalog, p.Path, j, err)
			}
			if fn.Address == "" {
				return fmt.Errorf("%w: %s function %s: address is required", ErrInvalidCatalog, p.Path, fn.Name)
			}
			if len(fn.Features) == 0 {
				return fmt.Errorf("%w: %s function %s: %w", ErrInvalidCatalog, p.Path, ref, types.ErrEmptySignature)
			}
			addr, err := types.NormalizeAddress(fn.Address)
			if err != nil {
				return fmt.Errorf("%w: %w", ErrInvalidCatalog, err)
			}
			fn.Address = addr
		}
	}
	return nil
}

// FunctionCount returns the number of functions across all programs
func (c *Catalog) FunctionCount() int {
	n := 0
	for _, p := range c.Programs {
		n += len(p.Functions)
	}
	return n
}

// CatalogProvider serves signatures from one or more catalogs
type CatalogProvider struct {
	mu       sync.RWMutex
	programs []CatalogProgram
}

// NewCatalogProvider creates a provider over cat. A nil catalog starts empty.
func NewCatalogProvider(cat *Catalog) *CatalogProvider {
	p := &CatalogProvider{}
	if cat != nil {
		p.Merge(cat)
	}
	return p
}

// Merge adds the programs of cat, replacing programs with the same path
func (p *CatalogProvider) Merge(cat *Catalog) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, incoming := range cat.Programs {
		replaced := false
		for i := range p.programs {
			if p.programs[i].Path == incoming.Path {
				p.programs[i] = incoming
				replaced = true
				break
			}
		}
		if !replaced {
			p.programs = append(p.programs, incoming)
		}
	}
}

// Compute returns the catalog signature for fn. When fn names no program the
// first program containing a match wins, in catalog order.
func (p *CatalogProvider) Compute(ctx context.Context, fn types.FunctionRef) (types.Signature, error) {
	if err := types.FromContext(ctx); err != nil {
		return types.Signature{}, err
	}
	if err := fn.Validate(); err != nil {
		return types.Signature{}, types.Wrap(types.ErrInvalidArgument, err)
	}

	address := ""
	if fn.Address != "" {
		address, _ = types.NormalizeAddress(fn.Address) // validated above
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	for _, prog := range p.programs {
		if !programMatches(prog, fn.Program) {
			continue
		}
		for _, f := range prog.Functions {
			if address != "" && f.Address != address {
				continue
			}
			if address == "" && f.Name != fn.Name {
				continue
			}
			return types.NewSignature(types.FunctionRef{
				Program: prog.Ref(),
				Name:    f.Name,
				Address: f.Address,
			}, f.Features)
		}
	}
	return types.Signature{}, types.Wrapf(types.ErrNotFound, "no signature for %s", fn)
}

// Functions lists the functions of program in catalog order
func (p *CatalogProvider) Functions(ctx context.Context, program types.ProgramRef) ([]types.FunctionRef, error) {
	if err := types.FromContext(ctx); err != nil {
		return nil, err
	}
	if program.Key() == "" {
		return nil, types.Wrap(types.ErrInvalidArgument, types.ErrMissingExecutable)
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	for _, prog := range p.programs {
		if !programMatches(prog, program) {
			continue
		}
		refs := make([]types.FunctionRef, 0, len(prog.Functions))
		for _, f := range prog.Functions {
			refs = append(refs, types.FunctionRef{Program: prog.Ref(), Name: f.Name, Address: f.Address})
		}
		return refs, nil
	}
	return nil, types.Wrapf(types.ErrNotFound, "no program %s", program.Key())
}

// Programs returns the known programs
func (p *CatalogProvider) Programs() []types.ProgramRef {
	p.mu.RLock()
	defer p.mu.RUnlock()

	refs := make([]types.ProgramRef, len(p.programs))
	for i, prog := range p.programs {
		refs[i] = prog.Ref()
	}
	return refs
}

// programMatches reports whether want selects prog. An empty want matches
// every program; otherwise any supplied field must agree.
func programMatches(prog CatalogProgram, want types.ProgramRef) bool {
	if want.Path != "" && want.Path != prog.Path {
		return false
	}
	if want.ID != "" && want.ID != prog.ID {
		return false
	}
	if want.Name != "" && want.Name != prog.Name {
		return false
	}
	return true
}
