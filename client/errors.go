package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// BackendError is the error body the backend sends: {"code", "message"}.
type BackendError struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// APIError is returned by the auth API calls on a non-2xx response.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	if e.Code != "" {
		return fmt.Sprintf("api error: HTTP %d %s: %s", e.StatusCode, e.Code, msg)
	}
	return fmt.Sprintf("api error: HTTP %d: %s", e.StatusCode, msg)
}

// peekBackendError decodes the error body of resp and puts the bytes back so
// the caller can still read it. Undecodable bodies yield a zero BackendError.
func peekBackendError(resp *http.Response) BackendError {
	var be BackendError
	if resp == nil || resp.Body == nil {
		return be
	}
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	resp.Body = io.NopCloser(bytes.NewReader(body))
	if err != nil || len(body) == 0 {
		return be
	}
	_ = json.Unmarshal(body, &be)
	return be
}

// postJSON posts body to url through hc and decodes a 2xx response into out
// (when out is non-nil). Non-2xx responses become *APIError.
func postJSON(ctx context.Context, hc *http.Client, url string, body, out any) error {
	return doJSON(ctx, hc, http.MethodPost, url, body, out)
}

// doJSON sends body (omitted when nil) as JSON with the given method.
func doJSON(ctx context.Context, hc *http.Client, method, url string, body, out any) error {
	var reader io.Reader = http.NoBody
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := hc.Do(req)
	if err != nil {
		return fmt.Errorf("failed to connect to server: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var be BackendError
		_ = json.Unmarshal(data, &be)
		return &APIError{StatusCode: resp.StatusCode, Code: be.Code, Message: strings.TrimSpace(be.Message)}
	}

	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("invalid response from server: %w", err)
	}
	return nil
}
