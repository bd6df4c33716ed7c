// Package mcp implements the Model Context Protocol (MCP) server for funcsim.
//
// The server exposes the similarity engine to MCP clients as tools:
//   - bsim_select_database, bsim_disconnect, bsim_status: store lifecycle
//   - bsim_query_function: ranked, filtered and paginated matches for one function
//   - bsim_query_all_functions: the same for every function of an executable
//   - bsim_get_match_disassembly, bsim_get_match_decompile: time-boxed artifacts
//   - bsim_find_exact_match: first ranked match with an exact function name
//   - bsim_create_database: create an empty embedded store
//   - bsim_ingest_catalog, bsim_load_catalog: bring signatures in from a catalog
//
// # Protocol Overview
//
// MCP is a JSON-RPC 2.0 protocol over stdio transport:
//
//	Client → Server: {"method": "tools/call", "params": {...}}
//	Server → Client: {"result": {...}}
//
// # Tool: bsim_query_function
//
//	Request:
//	{
//	  "name": "bsim_query_function",
//	  "arguments": {
//	    "function_address": "0x401000",
//	    "max_matches": 10,
//	    "similarity_threshold": 0.7,
//	    "confidence_threshold": 0.0,
//	    "max_similarity": 0.99,
//	    "offset": 0,
//	    "limit": 100
//	  }
//	}
//
//	Response:
//	{
//	  "function": {"executable_path": "/usr/lib/libcrypto.so", "function_name": "sha256_block", "function_address": "0x401000"},
//	  "ranked": 10,
//	  "total": 1,
//	  "offset": 0,
//	  "limit": 100,
//	  "has_more": false,
//	  "matches": [
//	    {
//	      "executable_path": "/bin/busybox",
//	      "executable_name": "busybox",
//	      "function_name": "sha256_block",
//	      "function_address": "0x402000",
//	      "similarity": 0.913,
//	      "confidence": 0.609
//	    }
//	  ]
//	}
//
// Minimum thresholds are inclusive and maximums exclusive. Filtering happens
// after ranking, so max_matches bounds the candidates the filter sees.
//
// # Tool: bsim_get_match_decompile
//
//	Request:
//	{
//	  "name": "bsim_get_match_decompile",
//	  "arguments": {
//	    "executable_path": "/bin/busybox",
//	    "function_name": "sha256_block",
//	    "function_address": "0x402000",
//	    "timeout_seconds": 30
//	  }
//	}
//
// The response is the decompiled text. A call that exceeds its budget fails
// with code -32004 instead of blocking.
//
// # Error Handling
//
// Errors are returned as MCPError values carrying a JSON-RPC code, and the
// error kind and cause in Data:
//   - -32602: Invalid params (missing or malformed arguments, bad filter bounds)
//   - -32603: Internal error
//   - -32001: No database connected
//   - -32002: Database could not be opened
//   - -32003: Query failed
//   - -32004: Resolution timed out
//   - -32005: Resolution failed
//   - -32006: Cancelled
//   - -32007: Not found
//   - -32008: Ingest already in progress
//
// # Logging
//
// The server logs to stderr through log/slog; stdout is reserved for MCP
// protocol messages.
package mcp
