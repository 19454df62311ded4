package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/oriys/nova/internal/domain"
)

// PoolDispatcher speaks the control plane's small HTTP
// request/response protocol to a function runtime endpoint.
type PoolDispatcher struct {
	client *http.Client
}

func NewPoolDispatcher() *PoolDispatcher {
	return &PoolDispatcher{
		client: &http.Client{
			// Connection: close per invocation; timeout is set
			// per-request below from spec.TimeoutMillis.
			Transport: &http.Transport{DisableKeepAlives: true},
		},
	}
}

type poolRequestBody struct {
	Input json.RawMessage `json:"input"`
}

// Dispatch POSTs payload to spec.EndpointURL as {"input": payload},
// honoring spec.TimeoutMillis as the request deadline, and maps
// transport/timeout/4xx+ outcomes onto the taxonomy in spec.md §4.E.
func (d *PoolDispatcher) Dispatch(ctx context.Context, spec domain.FunctionSpec, payload []byte, executionID string) Result {
	if strings.TrimSpace(spec.EndpointURL) == "" {
		return Result{Status: domain.StatusError, Output: errorOutput(domain.ErrPoolEndpointMissing, "function %q has no endpoint configured", spec.Name)}
	}

	timeoutMs := spec.TimeoutMillis
	if timeoutMs <= 0 {
		timeoutMs = domain.DefaultTimeoutMillis
	}
	timeout := time.Duration(timeoutMs) * time.Millisecond

	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	body, err := json.Marshal(poolRequestBody{Input: rawPayload(payload)})
	if err != nil {
		return Result{Status: domain.StatusError, Output: errorOutput(domain.ErrPoolError, "encode request body: %v", err)}
	}

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, spec.EndpointURL, bytes.NewReader(body))
	if err != nil {
		return Result{Status: domain.StatusError, Output: errorOutput(domain.ErrPoolError, "build request: %v", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Execution-Id", executionID)
	req.Close = true

	resp, err := d.client.Do(req)
	if err != nil {
		if reqCtx.Err() != nil {
			return Result{Status: domain.StatusTimeout, Output: errorOutput(domain.ErrPoolTimeout, "pool dispatch exceeded %dms", timeoutMs)}
		}
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return Result{Status: domain.StatusTimeout, Output: errorOutput(domain.ErrPoolTimeout, "pool dispatch exceeded %dms", timeoutMs)}
		}
		return Result{Status: domain.StatusError, Output: errorOutput(domain.ErrPoolError, "pool dispatch transport error: %v", err)}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{Status: domain.StatusError, Output: errorOutput(domain.ErrPoolError, "read pool response: %v", err)}
	}

	if resp.StatusCode >= 400 {
		return Result{Status: domain.StatusError, Output: errorOutput(domain.ErrPoolError, "pool endpoint returned status %d", resp.StatusCode)}
	}

	out := Result{Status: domain.StatusSuccess, Output: encodeOutput(resp.Header.Get("Content-Type"), respBody)}

	if strings.EqualFold(resp.Header.Get("X-Cold-Start"), "true") {
		out.ColdStart = true
	}
	if v := resp.Header.Get("X-Init-Duration-Ms"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n >= 0 {
			out.InitDurationMs = n
			out.HasInitDuration = true
		}
	}

	return out
}

// rawPayload wraps the invocation payload bytes for embedding as the
// "input" field: if it's already valid JSON, embed as-is; otherwise
// treat it as an opaque string.
func rawPayload(payload []byte) json.RawMessage {
	if len(payload) == 0 {
		return json.RawMessage("null")
	}
	var js json.RawMessage
	if json.Valid(payload) {
		return json.RawMessage(payload)
	}
	b, _ := json.Marshal(string(payload))
	js = json.RawMessage(b)
	return js
}

// encodeOutput turns a pool response body into the JSON value stored
// as the record's output: a text/plain body becomes a JSON string;
// anything else is parsed as JSON, falling back to a JSON string if
// it doesn't parse.
func encodeOutput(contentType string, body []byte) []byte {
	if strings.HasPrefix(strings.ToLower(contentType), "text/plain") {
		b, _ := json.Marshal(string(body))
		return b
	}
	if json.Valid(body) {
		return body
	}
	b, _ := json.Marshal(string(body))
	return b
}
