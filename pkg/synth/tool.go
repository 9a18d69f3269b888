package synth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/oklog/ulid/v2"
	"github.com/worldline-go/klient"

	"github.com/hiresynth/synth/internal/render"
)

// Tool describes one external HTTP tool the pipeline may call. The api_spec
// follows the OpenAPI shape far enough to resolve the 200-response content
// types of a route.
type Tool struct {
	Name               string         `json:"name" yaml:"name"`
	APIEndpoint        string         `json:"api_endpoint" yaml:"api_endpoint"`
	APISpec            map[string]any `json:"api_spec" yaml:"api_spec"`
	ID                 string         `json:"id" yaml:"id"`
	TokensPerExecution float64        `json:"tokens_per_execution" yaml:"tokens_per_execution"`
	TokenMultiplier    float64        `json:"token_multiplier" yaml:"token_multiplier"`
}

// ToolTokenUsage is the token accounting computed at setup time.
type ToolTokenUsage struct {
	Execution  float64 `json:"execution"`
	Multiplier float64 `json:"multiplier"`
}

// ToolConfig is the resolved call plan for one tool output.
type ToolConfig struct {
	ToolID          string         `json:"tool_id"`
	Payload         map[string]any `json:"payload"`
	OutputMimeTypes []string       `json:"output_mime_types"`
	ToolPath        string         `json:"tool_path"`
	Tokens          ToolTokenUsage `json:"tokens"`
}

// toolSetup locates the tool, builds the POST URL and the JSON payload, and
// computes the token accounting. Payload entries whose mapped value names an
// input are looked up directly; anything else is rendered as a template
// against the inputs.
func toolSetup(tools []Tool, out *Output, inputs map[string]any) (*ToolConfig, error) {
	var tool *Tool
	for i := range tools {
		if tools[i].Name == out.Tool {
			tool = &tools[i]
			break
		}
	}
	if tool == nil {
		names := make([]string, 0, len(tools))
		for _, t := range tools {
			names = append(names, t.Name)
		}
		return nil, fmt.Errorf("tool not found: %q, available tools: %v", out.Tool, names)
	}

	mimeTypes, err := responseMimeTypes(tool.APISpec, out.Route)
	if err != nil {
		return nil, fmt.Errorf("tool %q: %w", tool.Name, err)
	}

	payload := make(map[string]any, len(out.InputNameMap))
	for key, value := range out.InputNameMap {
		if v, ok := inputs[value]; ok {
			payload[key] = v
			continue
		}

		rendered, err := render.Strict(value, inputs)
		if err != nil {
			return nil, fmt.Errorf("tool %q payload %q: %w", tool.Name, key, err)
		}
		payload[key] = rendered
	}

	var multiplied float64
	if tool.TokenMultiplier != 0 {
		raw := 0
		for _, v := range payload {
			if s, ok := v.(string); ok {
				raw += CountTokens(s)
			}
		}
		multiplied = float64(raw) * tool.TokenMultiplier
	}

	slog.Debug("tool payload resolved", "tool", tool.Name, "route", out.Route)

	return &ToolConfig{
		ToolID:          tool.ID,
		Payload:         payload,
		OutputMimeTypes: mimeTypes,
		ToolPath:        tool.APIEndpoint + out.Route,
		Tokens: ToolTokenUsage{
			Execution:  tool.TokensPerExecution,
			Multiplier: multiplied,
		},
	}, nil
}

// responseMimeTypes walks api_spec.paths[route].post.responses.200.content
// and returns every content type other than application/json. A non-empty
// result marks the tool as blob-producing.
func responseMimeTypes(spec map[string]any, route string) ([]string, error) {
	paths, ok := spec["paths"].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("api_spec has no paths")
	}
	routeSpec, ok := paths[route].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("route %q not in api_spec paths", route)
	}
	post, ok := routeSpec["post"].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("route %q has no post operation", route)
	}
	responses, _ := post["responses"].(map[string]any)
	okResp, _ := responses["200"].(map[string]any)
	content, _ := okResp["content"].(map[string]any)

	var mimes []string
	for mime := range content {
		if mime != "application/json" {
			mimes = append(mimes, mime)
		}
	}

	return mimes, nil
}

// runTool POSTs the payload to the tool path. JSON responses are returned
// merged with the response-header summary; blob responses are stored via
// the object store and returned as a file descriptor.
func (s *Synth) runTool(ctx context.Context, cfg *ToolConfig) (any, error) {
	body, err := json.Marshal(cfg.Payload)
	if err != nil {
		return nil, fmt.Errorf("marshal tool payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.ToolPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build tool request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	var result any
	if err := s.httpClient.Do(req, func(r *http.Response) error {
		headers := map[string]any{
			"status":  r.StatusCode,
			"success": r.StatusCode >= 200 && r.StatusCode < 300,
		}

		data, err := io.ReadAll(r.Body)
		if err != nil {
			return fmt.Errorf("read tool response: %w", err)
		}

		if len(cfg.OutputMimeTypes) > 0 {
			result, err = s.storeToolBlob(ctx, r.Header.Get("Content-Type"), data, headers)
			return err
		}

		var parsed map[string]any
		if err := json.Unmarshal(data, &parsed); err != nil {
			return fmt.Errorf("parse tool response: %w", err)
		}
		parsed["response_headers"] = headers
		result = parsed

		return nil
	}); err != nil {
		return nil, err
	}

	return result, nil
}

// storeToolBlob writes a non-JSON tool response to the object store and
// returns the file descriptor committed to memory.
func (s *Synth) storeToolBlob(ctx context.Context, contentType string, data []byte, headers map[string]any) (any, error) {
	if s.store == nil {
		return nil, fmt.Errorf("tool returned a blob but no object store is configured")
	}

	format := contentType
	if idx := strings.IndexByte(contentType, '/'); idx >= 0 {
		format = contentType[idx+1:]
	}
	if idx := strings.IndexByte(format, ';'); idx >= 0 {
		format = format[:idx]
	}

	fileName := fmt.Sprintf("%s.%s", ulid.Make().String(), format)

	url, err := s.store.Put(ctx, fileName, data)
	if err != nil {
		return nil, fmt.Errorf("store tool output: %w", err)
	}

	return map[string]any{
		"file_name":        fileName,
		"mime_type":        format,
		"url":              url,
		"response_headers": headers,
	}, nil
}

// newToolClient builds the shared outbound HTTP client for tool calls.
// Tool paths are absolute URLs, so the base-URL requirement is disabled.
func newToolClient() (*klient.Client, error) {
	return klient.New(
		klient.WithDisableBaseURLCheck(true),
		klient.WithLogger(slog.Default()),
	)
}
