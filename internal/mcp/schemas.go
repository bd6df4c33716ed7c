package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// Tool names
const (
	ToolSelectDatabase    = "bsim_select_database"
	ToolDisconnect        = "bsim_disconnect"
	ToolStatus            = "bsim_status"
	ToolQueryFunction     = "bsim_query_function"
	ToolQueryAllFunctions = "bsim_query_all_functions"
	ToolMatchDisassembly  = "bsim_get_match_disassembly"
	ToolMatchDecompile    = "bsim_get_match_decompile"
	ToolFindExactMatch    = "bsim_find_exact_match"
	ToolCreateDatabase    = "bsim_create_database"
	ToolIngestCatalog     = "bsim_ingest_catalog"
	ToolLoadCatalog       = "bsim_load_catalog"
)

// Query parameter defaults
const (
	DefaultMaxMatches            = 10
	DefaultMaxMatchesPerFunction = 5
	DefaultSimilarityThreshold   = 0.7
	DefaultConfidenceThreshold   = 0.0
)

// filterProperties are the bound and paging parameters shared by the query tools
func filterProperties() map[string]interface{} {
	return map[string]interface{}{
		"similarity_threshold": map[string]interface{}{
			"type":        "number",
			"description": "Minimum similarity (inclusive, 0.0-1.0)",
			"default":     DefaultSimilarityThreshold,
			"minimum":     0.0,
			"maximum":     1.0,
		},
		"confidence_threshold": map[string]interface{}{
			"type":        "number",
			"description": "Minimum confidence (inclusive, 0.0-1.0)",
			"default":     DefaultConfidenceThreshold,
			"minimum":     0.0,
		},
		"max_similarity": map[string]interface{}{
			"type":        "number",
			"description": "Exclude matches with similarity at or above this value (unbounded if omitted)",
		},
		"max_confidence": map[string]interface{}{
			"type":        "number",
			"description": "Exclude matches with confidence at or above this value (unbounded if omitted)",
		},
		"offset": map[string]interface{}{
			"type":        "integer",
			"description": "Number of filtered matches to skip",
			"default":     0,
			"minimum":     0,
		},
		"limit": map[string]interface{}{
			"type":        "integer",
			"description": "Maximum number of matches to return",
			"default":     100,
			"minimum":     1,
			"maximum":     1000,
		},
	}
}

// functionProperties identify the function whose signature is queried
func functionProperties() map[string]interface{} {
	return map[string]interface{}{
		"function_address": map[string]interface{}{
			"type":        "string",
			"description": "Entry point of the function in hex, e.g. 0x401000",
		},
		"function_name": map[string]interface{}{
			"type":        "string",
			"description": "Function name, used when no address is given",
		},
		"executable_path": map[string]interface{}{
			"type":        "string",
			"description": "Executable containing the function (any program if omitted)",
		},
	}
}

// matchRefProperties identify a matched function for artifact resolution
func matchRefProperties(defaultTimeout int) map[string]interface{} {
	return map[string]interface{}{
		"executable_path": map[string]interface{}{
			"type":        "string",
			"description": "Path of the executable containing the match",
		},
		"function_name": map[string]interface{}{
			"type":        "string",
			"description": "Name of the matched function",
		},
		"function_address": map[string]interface{}{
			"type":        "string",
			"description": "Address of the matched function in hex",
		},
		"timeout_seconds": map[string]interface{}{
			"type":        "number",
			"description": "Time budget in seconds",
			"default":     defaultTimeout,
			"minimum":     0,
		},
	}
}

func merge(maps ...map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{})
	for _, m := range maps {
		for k, v := range m {
			out[k] = v
		}
	}
	return out
}

// selectDatabaseTool returns the tool definition for bsim_select_database
func selectDatabaseTool() mcp.Tool {
	return mcp.Tool{
		Name:        ToolSelectDatabase,
		Description: "Connect to a similarity database, replacing any open connection",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"database_path": map[string]interface{}{
					"type":        "string",
					"description": "Embedded database file path, file:// URL, or postgres:// URL",
				},
			},
			Required: []string{"database_path"},
		},
	}
}

// disconnectTool returns the tool definition for bsim_disconnect
func disconnectTool() mcp.Tool {
	return mcp.Tool{
		Name:        ToolDisconnect,
		Description: "Disconnect from the current similarity database",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}
}

// statusTool returns the tool definition for bsim_status
func statusTool() mcp.Tool {
	return mcp.Tool{
		Name:        ToolStatus,
		Description: "Report the connection state and database statistics",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}
}

// queryFunctionTool returns the tool definition for bsim_query_function
func queryFunctionTool() mcp.Tool {
	return mcp.Tool{
		Name:        ToolQueryFunction,
		Description: "Find functions similar to one function, filtered by similarity and confidence and paginated",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: merge(functionProperties(), filterProperties(), map[string]interface{}{
				"max_matches": map[string]interface{}{
					"type":        "integer",
					"description": "Number of nearest neighbours to rank before filtering",
					"default":     DefaultMaxMatches,
					"minimum":     1,
				},
			}),
		},
	}
}

// queryAllFunctionsTool returns the tool definition for bsim_query_all_functions
func queryAllFunctionsTool() mcp.Tool {
	return mcp.Tool{
		Name:        ToolQueryAllFunctions,
		Description: "Find similar functions for every function of an executable",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: merge(filterProperties(), map[string]interface{}{
				"executable_path": map[string]interface{}{
					"type":        "string",
					"description": "Executable whose functions are queried",
				},
				"max_matches_per_function": map[string]interface{}{
					"type":        "integer",
					"description": "Number of nearest neighbours to rank per function",
					"default":     DefaultMaxMatchesPerFunction,
					"minimum":     1,
				},
			}),
			Required: []string{"executable_path"},
		},
	}
}

// matchDisassemblyTool returns the tool definition for bsim_get_match_disassembly
func matchDisassemblyTool() mcp.Tool {
	return mcp.Tool{
		Name:        ToolMatchDisassembly,
		Description: "Get the disassembly of a matched function",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: matchRefProperties(10),
			Required:   []string{"executable_path"},
		},
	}
}

// matchDecompileTool returns the tool definition for bsim_get_match_decompile
func matchDecompileTool() mcp.Tool {
	return mcp.Tool{
		Name:        ToolMatchDecompile,
		Description: "Get the decompiled source of a matched function",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: matchRefProperties(30),
			Required:   []string{"executable_path"},
		},
	}
}

// findExactMatchTool returns the tool definition for bsim_find_exact_match
func findExactMatchTool() mcp.Tool {
	return mcp.Tool{
		Name:        ToolFindExactMatch,
		Description: "Return the highest ranked match whose function name equals target_name exactly",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: merge(functionProperties(), map[string]interface{}{
				"target_name": map[string]interface{}{
					"type":        "string",
					"description": "Function name the match must carry",
				},
				"max_matches": map[string]interface{}{
					"type":        "integer",
					"description": "Number of nearest neighbours to scan",
					"default":     DefaultMaxMatches,
					"minimum":     1,
				},
				"fallback_to_top": map[string]interface{}{
					"type":        "boolean",
					"description": "If true, return the top ranked match when no name matches",
					"default":     false,
				},
			}),
			Required: []string{"target_name"},
		},
	}
}

// createDatabaseTool returns the tool definition for bsim_create_database
func createDatabaseTool() mcp.Tool {
	return mcp.Tool{
		Name:        ToolCreateDatabase,
		Description: "Create an empty embedded similarity database",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"database_path": map[string]interface{}{
					"type":        "string",
					"description": "Path of the database file to create",
				},
				"connect": map[string]interface{}{
					"type":        "boolean",
					"description": "If true, connect to the new database",
					"default":     true,
				},
			},
			Required: []string{"database_path"},
		},
	}
}

// ingestCatalogTool returns the tool definition for bsim_ingest_catalog
func ingestCatalogTool() mcp.Tool {
	return mcp.Tool{
		Name:        ToolIngestCatalog,
		Description: "Write the signatures of a catalog file into the connected database",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"catalog_path": map[string]interface{}{
					"type":        "string",
					"description": "Path of a YAML or JSON signature catalog",
				},
			},
			Required: []string{"catalog_path"},
		},
	}
}

// loadCatalogTool returns the tool definition for bsim_load_catalog
func loadCatalogTool() mcp.Tool {
	return mcp.Tool{
		Name:        ToolLoadCatalog,
		Description: "Make the signatures of a catalog file available for queries without storing them",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"catalog_path": map[string]interface{}{
					"type":        "string",
					"description": "Path of a YAML or JSON signature catalog",
				},
			},
			Required: []string{"catalog_path"},
		},
	}
}
