// Package types provides shared type definitions for the funcsim MCP server.
//
// This package defines the value types passed between the similarity store,
// the ranker, the filter, the resolver and the MCP transport.
//
// # Core Types
//
// FunctionRef identifies a function inside an executable:
//
//	fn := types.FunctionRef{
//	    Program: types.ProgramRef{Name: "libcrypto.so", Path: "/bins/libcrypto.so"},
//	    Name:    "EVP_EncryptInit",
//	    Address: "0x401000",
//	}
//
// Signature is the immutable feature vector computed for a function by an
// external extractor:
//
//	sig, err := types.NewSignature(fn, vector)
//
// MatchCandidate is one ranked result of a similarity query, carrying a
// similarity score and a confidence score, both in [0, 1]:
//
//	candidate := types.MatchCandidate{
//	    Function:   fn,
//	    Similarity: 0.93,
//	    Confidence: 0.81,
//	}
//
// # Filtering
//
// FilterSpec bounds similarity and confidence (minimums inclusive, maximums
// exclusive) and pages the surviving candidates:
//
//	spec := types.DefaultFilterSpec()
//	spec.MinSimilarity = 0.7
//	spec.Limit = 20
//	if err := spec.Validate(); err != nil {
//	    return err
//	}
//
// # Store Descriptors
//
// StoreDescriptor names an embedded SQLite file or a networked PostgreSQL
// server. Redacted is safe to log; DSN is not.
//
// # Errors
//
// Every failure returned by the engine wraps one of the kind sentinels
// (ErrNotConnected, ErrInvalidArgument, ErrTimeoutExceeded, ...). Test with
// errors.Is; KindOf maps an error to its wire name.
package types
