package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/dshills/funcsim-mcp/internal/filter"
	"github.com/dshills/funcsim-mcp/internal/ingest"
	"github.com/dshills/funcsim-mcp/internal/service"
	"github.com/dshills/funcsim-mcp/internal/session"
	"github.com/dshills/funcsim-mcp/pkg/types"
)

// MCP error codes
const (
	ErrorCodeInvalidParams    = -32602 // Invalid method parameters
	ErrorCodeInternalError    = -32603 // Internal JSON-RPC error
	ErrorCodeNotConnected     = -32001 // No similarity database is open
	ErrorCodeConnection       = -32002 // Database could not be opened or closed
	ErrorCodeQueryFailed      = -32003 // Database query failed
	ErrorCodeTimeout          = -32004 // Resolution exceeded its time budget
	ErrorCodeResolutionFailed = -32005 // Match could not be turned into text
	ErrorCodeCancelled        = -32006 // Request was cancelled
	ErrorCodeNotFound         = -32007 // Function, program or exact match not found
	ErrorCodeIngestInProgress = -32008 // Another ingest is already running
)

// maxReportedErrors caps the per-function errors echoed in an ingest response
const maxReportedErrors = 5

// kindCodes maps error kinds to MCP error codes
var kindCodes = map[string]int{
	"not_connected":     ErrorCodeNotConnected,
	"connection_error":  ErrorCodeConnection,
	"invalid_argument":  ErrorCodeInvalidParams,
	"query_failed":      ErrorCodeQueryFailed,
	"timeout_exceeded":  ErrorCodeTimeout,
	"resolution_failed": ErrorCodeResolutionFailed,
	"cancelled":         ErrorCodeCancelled,
	"not_found":         ErrorCodeNotFound,
}

// handleSelectDatabase handles the bsim_select_database tool invocation
func (s *Server) handleSelectDatabase(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := arguments(request)
	if err != nil {
		return nil, err
	}
	location, err := requireString(args, "database_path")
	if err != nil {
		return nil, err
	}

	status, err := s.svc.ConnectStore(ctx, location)
	if err != nil {
		return nil, fromCoreError("failed to connect", err)
	}
	response := statusJSON(status)
	response["catalog"] = catalogJSON(s.svc.CatalogStatus())
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleDisconnect handles the bsim_disconnect tool invocation
func (s *Server) handleDisconnect(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	wasOpen, err := s.svc.DisconnectStore()
	if err != nil {
		return nil, fromCoreError("failed to disconnect", err)
	}
	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"connected":     false,
		"was_connected": wasOpen,
	})), nil
}

// handleStatus handles the bsim_status tool invocation
func (s *Server) handleStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	status, err := s.svc.StoreStatus(ctx)
	if err != nil {
		return nil, fromCoreError("failed to get status", err)
	}
	return mcp.NewToolResultText(formatJSON(statusJSON(status))), nil
}

// handleQueryFunction handles the bsim_query_function tool invocation
func (s *Server) handleQueryFunction(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := arguments(request)
	if err != nil {
		return nil, err
	}
	fn, err := functionRef(args)
	if err != nil {
		return nil, err
	}
	spec, err := filterSpec(args)
	if err != nil {
		return nil, err
	}
	maxMatches, err := getInt(args, "max_matches", DefaultMaxMatches)
	if err != nil {
		return nil, err
	}

	res, err := s.svc.QueryFunction(ctx, fn, maxMatches, spec)
	if err != nil {
		return nil, fromCoreError("query failed", err)
	}

	response := pageJSON(res.Page)
	response["function"] = functionJSON(res.Function)
	response["ranked"] = res.Ranked
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleQueryAllFunctions handles the bsim_query_all_functions tool invocation
func (s *Server) handleQueryAllFunctions(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := arguments(request)
	if err != nil {
		return nil, err
	}
	path, err := requireString(args, "executable_path")
	if err != nil {
		return nil, err
	}
	spec, err := filterSpec(args)
	if err != nil {
		return nil, err
	}
	maxMatches, err := getInt(args, "max_matches_per_function", DefaultMaxMatchesPerFunction)
	if err != nil {
		return nil, err
	}

	res, err := s.svc.QueryAllFunctions(ctx, types.ProgramRef{Path: path}, maxMatches, spec)
	if err != nil {
		return nil, fromCoreError("batch query failed", err)
	}

	functions := make([]interface{}, 0, len(res.Functions))
	for _, fr := range res.Functions {
		if fr.Err != nil {
			functions = append(functions, map[string]interface{}{
				"function": functionJSON(fr.Function),
				"error":    fr.Err.Error(),
				"kind":     types.KindOf(fr.Err),
			})
			continue
		}
		entry := pageJSON(fr.Page)
		entry["function"] = functionJSON(fr.Function)
		functions = append(functions, entry)
	}

	response := map[string]interface{}{
		"executable_path": res.Program.Path,
		"functions":       functions,
		"failed":          res.Failed,
		"duration_ms":     res.Duration.Milliseconds(),
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleMatchDisassembly handles the bsim_get_match_disassembly tool invocation
func (s *Server) handleMatchDisassembly(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ref, timeout, err := matchRequest(request)
	if err != nil {
		return nil, err
	}
	art, err := s.svc.ResolveDisassembly(ctx, ref, timeout)
	if err != nil {
		return nil, fromCoreError("disassembly failed", err)
	}
	return mcp.NewToolResultText(art.Text), nil
}

// handleMatchDecompile handles the bsim_get_match_decompile tool invocation
func (s *Server) handleMatchDecompile(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ref, timeout, err := matchRequest(request)
	if err != nil {
		return nil, err
	}
	art, err := s.svc.ResolveDecompilation(ctx, ref, timeout)
	if err != nil {
		return nil, fromCoreError("decompilation failed", err)
	}
	return mcp.NewToolResultText(art.Text), nil
}

// handleFindExactMatch handles the bsim_find_exact_match tool invocation
func (s *Server) handleFindExactMatch(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := arguments(request)
	if err != nil {
		return nil, err
	}
	fn, err := functionRef(args)
	if err != nil {
		return nil, err
	}
	target, err := requireString(args, "target_name")
	if err != nil {
		return nil, err
	}
	maxMatches, err := getInt(args, "max_matches", DefaultMaxMatches)
	if err != nil {
		return nil, err
	}
	fallback := getBoolDefault(args, "fallback_to_top", false)

	m, err := s.svc.FindExactMatch(ctx, fn, target, maxMatches, fallback)
	if err != nil {
		return nil, fromCoreError("exact match lookup failed", err)
	}

	response := map[string]interface{}{
		"exact":   m.Exact,
		"scanned": m.Scanned,
		"match":   candidateJSON(m.Candidate),
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleCreateDatabase handles the bsim_create_database tool invocation
func (s *Server) handleCreateDatabase(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := arguments(request)
	if err != nil {
		return nil, err
	}
	path, err := requireString(args, "database_path")
	if err != nil {
		return nil, err
	}
	connect := getBoolDefault(args, "connect", true)

	status, err := s.svc.CreateStore(ctx, path, connect)
	if err != nil {
		return nil, fromCoreError("failed to create database", err)
	}
	response := statusJSON(status)
	response["created"] = path
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleIngestCatalog handles the bsim_ingest_catalog tool invocation
func (s *Server) handleIngestCatalog(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := arguments(request)
	if err != nil {
		return nil, err
	}
	path, err := requireString(args, "catalog_path")
	if err != nil {
		return nil, err
	}

	stats, err := s.svc.IngestCatalog(ctx, path)
	if errors.Is(err, ingest.ErrIngestInProgress) {
		return nil, newMCPError(ErrorCodeIngestInProgress, "ingest already in progress", nil)
	}
	if err != nil {
		return nil, fromCoreError("ingest failed", err)
	}

	response := map[string]interface{}{
		"programs":           stats.Programs,
		"functions_ingested": stats.FunctionsIngested,
		"functions_failed":   stats.FunctionsFailed,
		"duration_ms":        stats.Duration.Milliseconds(),
	}
	if len(stats.ErrorMessages) > 0 {
		// Include first few errors
		errorCount := len(stats.ErrorMessages)
		if errorCount > maxReportedErrors {
			response["errors"] = stats.ErrorMessages[:maxReportedErrors]
			response["error_count"] = errorCount
		} else {
			response["errors"] = stats.ErrorMessages
		}
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleLoadCatalog handles the bsim_load_catalog tool invocation
func (s *Server) handleLoadCatalog(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := arguments(request)
	if err != nil {
		return nil, err
	}
	path, err := requireString(args, "catalog_path")
	if err != nil {
		return nil, err
	}

	n, err := s.svc.LoadCatalog(path)
	if err != nil {
		return nil, fromCoreError("failed to load catalog", err)
	}
	return mcp.NewToolResultText(formatJSON(map[string]interface{}{"functions_loaded": n})), nil
}

// Request decoding

// arguments extracts the argument map of a tool call
func arguments(request mcp.CallToolRequest) (map[string]interface{}, error) {
	if request.Params.Arguments == nil {
		return map[string]interface{}{}, nil
	}
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}
	return args, nil
}

// functionRef reads the function identity shared by the query tools
func functionRef(args map[string]interface{}) (types.FunctionRef, error) {
	fn := types.FunctionRef{}
	var err error
	if fn.Address, err = getString(args, "function_address", ""); err != nil {
		return fn, err
	}
	if fn.Name, err = getString(args, "function_name", ""); err != nil {
		return fn, err
	}
	if fn.Program.Path, err = getString(args, "executable_path", ""); err != nil {
		return fn, err
	}
	if err := fn.Validate(); err != nil {
		return fn, invalidParam("function_address", err.Error())
	}
	return fn, nil
}

// filterSpec reads the bound and paging parameters
func filterSpec(args map[string]interface{}) (types.FilterSpec, error) {
	spec := types.DefaultFilterSpec()
	var err error
	if spec.MinSimilarity, err = getFloat(args, "similarity_threshold", DefaultSimilarityThreshold); err != nil {
		return spec, err
	}
	if spec.MinConfidence, err = getFloat(args, "confidence_threshold", DefaultConfidenceThreshold); err != nil {
		return spec, err
	}
	if spec.MaxSimilarity, err = getFloat(args, "max_similarity", types.Unbounded); err != nil {
		return spec, err
	}
	if spec.MaxConfidence, err = getFloat(args, "max_confidence", types.Unbounded); err != nil {
		return spec, err
	}
	if spec.Offset, err = getInt(args, "offset", 0); err != nil {
		return spec, err
	}
	if spec.Limit, err = getInt(args, "limit", types.DefaultLimit); err != nil {
		return spec, err
	}
	if err := spec.Validate(); err != nil {
		return spec, newMCPError(ErrorCodeInvalidParams, "invalid filter", map[string]interface{}{
			"reason": err.Error(),
		})
	}
	return spec, nil
}

// matchRequest reads the parameters of the resolution tools
// maxTimeoutSeconds is the largest timeout a time.Duration can hold
const maxTimeoutSeconds = float64(math.MaxInt64 / int64(time.Second))

func matchRequest(request mcp.CallToolRequest) (types.MatchRef, time.Duration, error) {
	args, err := arguments(request)
	if err != nil {
		return types.MatchRef{}, 0, err
	}

	ref := types.MatchRef{}
	if ref.ExecutablePath, err = requireString(args, "executable_path"); err != nil {
		return ref, 0, err
	}
	if ref.FunctionName, err = getString(args, "function_name", ""); err != nil {
		return ref, 0, err
	}
	if ref.FunctionAddress, err = getString(args, "function_address", ""); err != nil {
		return ref, 0, err
	}
	if err := ref.Validate(); err != nil {
		return ref, 0, invalidParam("function_address", err.Error())
	}

	seconds, err := getFloat(args, "timeout_seconds", 0)
	if err != nil {
		return ref, 0, err
	}
	if math.IsNaN(seconds) || seconds < 0 {
		return ref, 0, invalidParam("timeout_seconds", "must be a non-negative number")
	}
	if seconds > maxTimeoutSeconds {
		return ref, 0, invalidParam("timeout_seconds", fmt.Sprintf("must not exceed %.0f", maxTimeoutSeconds))
	}
	return ref, time.Duration(seconds * float64(time.Second)), nil
}

// Response encoding

func statusJSON(st *session.Status) map[string]interface{} {
	response := map[string]interface{}{
		"connected": st.Connected,
	}
	if st.Kind != "" {
		response["kind"] = string(st.Kind)
		response["location"] = st.Location
	}
	if !st.ConnectedAt.IsZero() {
		response["connected_at"] = st.ConnectedAt.Format(time.RFC3339)
	}
	if st.Store != nil {
		response["statistics"] = map[string]interface{}{
			"schema_version":   st.Store.SchemaVersion,
			"executables":      st.Store.Executables,
			"functions":        st.Store.Functions,
			"vector_extension": st.Store.VectorExtension,
			"similarity":       st.Store.Similarity,
		}
		response["health"] = map[string]interface{}{
			"database_accessible": st.Store.Health.DatabaseAccessible,
			"signatures_present":  st.Store.Health.SignaturesPresent,
		}
	}
	return response
}

func catalogJSON(cs service.CatalogStatus) map[string]interface{} {
	programs := make([]interface{}, 0, len(cs.Programs))
	for _, p := range cs.Programs {
		entry := map[string]interface{}{"name": p.Name, "path": p.Path}
		if p.ID != "" {
			entry["id"] = p.ID
		}
		programs = append(programs, entry)
	}
	return map[string]interface{}{
		"programs":          programs,
		"cached_signatures": cs.CachedSignatures,
	}
}

func functionJSON(fn types.FunctionRef) map[string]interface{} {
	return map[string]interface{}{
		"executable_path":  fn.Program.Path,
		"function_name":    fn.Name,
		"function_address": fn.Address,
	}
}

func candidateJSON(c types.MatchCandidate) map[string]interface{} {
	// The reference fields are exactly what the resolution tools accept
	ref := c.Ref()
	m := map[string]interface{}{
		"executable_path":  ref.ExecutablePath,
		"function_name":    ref.FunctionName,
		"function_address": ref.FunctionAddress,
	}
	m["executable_name"] = c.Function.Program.Name
	if c.Function.Program.ID != "" {
		m["executable_md5"] = c.Function.Program.ID
	}
	m["similarity"] = c.Similarity
	m["confidence"] = c.Confidence
	return m
}

func pageJSON(page *filter.Page) map[string]interface{} {
	matches := make([]interface{}, 0, len(page.Items))
	for _, c := range page.Items {
		matches = append(matches, candidateJSON(c))
	}
	return map[string]interface{}{
		"matches":  matches,
		"total":    page.Total,
		"offset":   page.Offset,
		"limit":    page.Limit,
		"has_more": page.HasMore,
	}
}

// Helper functions

// newMCPError creates a properly formatted MCP error
func newMCPError(code int, message string, data interface{}) error {
	// MCP errors are returned as regular errors, the framework handles encoding
	return &MCPError{
		Code:    code,
		Message: message,
		Data:    data,
	}
}

// invalidParam reports a malformed parameter
func invalidParam(param, reason string) error {
	return newMCPError(ErrorCodeInvalidParams, fmt.Sprintf("invalid %s", param), map[string]interface{}{
		"param":  param,
		"reason": reason,
	})
}

// fromCoreError converts a service error into an MCPError by kind
func fromCoreError(message string, err error) error {
	kind := types.KindOf(err)
	code, ok := kindCodes[kind]
	if !ok {
		code = ErrorCodeInternalError
	}
	return newMCPError(code, message, map[string]interface{}{
		"kind":  kind,
		"error": err.Error(),
	})
}

// resultLabel names the outcome of a tool call for metrics
func resultLabel(err error) string {
	if err == nil {
		return "ok"
	}
	var mcpErr *MCPError
	if errors.As(err, &mcpErr) {
		if data, ok := mcpErr.Data.(map[string]interface{}); ok {
			if kind, ok := data["kind"].(string); ok {
				return kind
			}
		}
		if mcpErr.Code == ErrorCodeInvalidParams {
			return "invalid_params"
		}
		if mcpErr.Code == ErrorCodeIngestInProgress {
			return "ingest_in_progress"
		}
	}
	return "internal"
}

// MCPError represents an MCP protocol error
type MCPError struct {
	Code    int
	Message string
	Data    interface{}
}

func (e *MCPError) Error() string {
	if data, ok := e.Data.(map[string]interface{}); ok {
		if cause, ok := data["error"].(string); ok {
			return fmt.Sprintf("MCP error %d: %s: %s", e.Code, e.Message, cause)
		}
		if reason, ok := data["reason"].(string); ok {
			return fmt.Sprintf("MCP error %d: %s: %s", e.Code, e.Message, reason)
		}
	}
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// formatJSON formats a map as indented JSON
func formatJSON(data map[string]interface{}) string {
	bytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", data)
	}
	return string(bytes)
}

// getBoolDefault extracts a boolean parameter with a default value
func getBoolDefault(args map[string]interface{}, key string, defaultValue bool) bool {
	if val, ok := args[key].(bool); ok {
		return val
	}
	return defaultValue
}

// getInt extracts an integer parameter with a default value. Non-integral
// numbers and other types are rejected.
func getInt(args map[string]interface{}, key string, defaultValue int) (int, error) {
	raw, present := args[key]
	if !present || raw == nil {
		return defaultValue, nil
	}
	switch val := raw.(type) {
	case float64:
		if val != math.Trunc(val) || math.Abs(val) > math.MaxInt32 {
			return 0, invalidParam(key, "must be an integer")
		}
		return int(val), nil
	case int:
		return val, nil
	case int64:
		return int(val), nil
	case json.Number:
		n, err := val.Int64()
		if err != nil {
			return 0, invalidParam(key, "must be an integer")
		}
		return int(n), nil
	}
	return 0, invalidParam(key, "must be an integer")
}

// getFloat extracts a numeric parameter with a default value
func getFloat(args map[string]interface{}, key string, defaultValue float64) (float64, error) {
	raw, present := args[key]
	if !present || raw == nil {
		return defaultValue, nil
	}
	switch val := raw.(type) {
	case float64:
		return val, nil
	case int:
		return float64(val), nil
	case json.Number:
		f, err := val.Float64()
		if err != nil {
			return 0, invalidParam(key, "must be a number")
		}
		return f, nil
	}
	return 0, invalidParam(key, "must be a number")
}

// getString extracts a string parameter with a default value
func getString(args map[string]interface{}, key string, defaultValue string) (string, error) {
	raw, present := args[key]
	if !present || raw == nil {
		return defaultValue, nil
	}
	val, ok := raw.(string)
	if !ok {
		return "", invalidParam(key, "must be a string")
	}
	return val, nil
}

// requireString extracts a non-empty string parameter
func requireString(args map[string]interface{}, key string) (string, error) {
	val, err := getString(args, key, "")
	if err != nil {
		return "", err
	}
	if val == "" {
		return "", newMCPError(ErrorCodeInvalidParams, fmt.Sprintf("%s parameter is required", key), map[string]interface{}{
			"param":  key,
			"reason": "missing or empty",
		})
	}
	return val, nil
}
