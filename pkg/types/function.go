package types

import (
	"fmt"
	"strconv"
	"strings"
)

// ProgramRef identifies an executable that functions belong to
type ProgramRef struct {
	ID   string // Caller-supplied id or executable md5
	Name string // Executable name
	Path string // Executable path (what the decompiler opens)
}

// Key returns the identity used for ordering and lookups
func (p ProgramRef) Key() string {
	if p.Path != "" {
		return p.Path
	}
	if p.ID != "" {
		return p.ID
	}
	return p.Name
}

// FunctionRef identifies a single function inside a program
type FunctionRef struct {
	Program ProgramRef
	Name    string
	Address string // Hex entry point, e.g. 0x401000
}

// Key returns a deterministic identity string: program, name, then address.
// Lexicographic order on Key is the final tie-breaker when ranking matches.
func (f FunctionRef) Key() string {
	return f.Program.Key() + "\x00" + f.Name + "\x00" + f.Address
}

// String renders the function for logs and error messages
func (f FunctionRef) String() string {
	name := f.Name
	if name == "" {
		name = "<unnamed>"
	}
	if f.Address == "" {
		return fmt.Sprintf("%s!%s", f.Program.Key(), name)
	}
	return fmt.Sprintf("%s!%s@%s", f.Program.Key(), name, f.Address)
}

// Validate checks that the function can be addressed
func (f FunctionRef) Validate() error {
	if f.Name == "" && f.Address == "" {
		return ErrMissingFunction
	}
	if f.Address != "" {
		if _, err := ParseAddress(f.Address); err != nil {
			return err
		}
	}
	return nil
}

// ParseAddress parses a hex address with or without a 0x prefix
func ParseAddress(addr string) (uint64, error) {
	s := strings.TrimSpace(addr)
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if s == "" {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAddress, addr)
	}
	v, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAddress, addr)
	}
	return v, nil
}

// NormalizeAddress renders addr as lowercase 0x-prefixed hex
func NormalizeAddress(addr string) (string, error) {
	v, err := ParseAddress(addr)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("0x%x", v), nil
}

// Signature is an immutable feature vector describing one function.
// Construct it with NewSignature; the vector is never exposed for mutation.
type Signature struct {
	function FunctionRef
	vector   []float32
}

// NewSignature copies vector into a new Signature for fn
func NewSignature(fn FunctionRef, vector []float32) (Signature, error) {
	if len(vector) == 0 {
		return Signature{}, ErrEmptySignature
	}
	v := make([]float32, len(vector))
	copy(v, vector)
	return Signature{function: fn, vector: v}, nil
}

// Function returns the function the signature was computed for
func (s Signature) Function() FunctionRef { return s.function }

// Dimension returns the vector length
func (s Signature) Dimension() int { return len(s.vector) }

// Vector returns a copy of the feature vector
func (s Signature) Vector() []float32 {
	v := make([]float32, len(s.vector))
	copy(v, s.vector)
	return v
}

// FeatureCount returns the number of non-zero features
func (s Signature) FeatureCount() int {
	return CountFeatures(s.vector)
}

// IsZero reports whether the signature was never initialised
func (s Signature) IsZero() bool { return len(s.vector) == 0 }

// CountFeatures counts the non-zero entries of a feature vector
func CountFeatures(vector []float32) int {
	n := 0
	for _, v := range vector {
		if v != 0 {
			n++
		}
	}
	return n
}
