package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

// apiError is the decoded {"error": "..."} body teamhubd writes on
// every non-2xx response.
type apiError struct {
	Error string `json:"error"`
}

// apiClient is a thin wrapper over net/http; teamhubd's surface is
// small enough that a generated or third-party REST client would be
// overhead the teacher's own tooling never reaches for, matching how
// cmd/vega talks to its own store directly rather than through a
// client package.
type apiClient struct {
	baseURL string
	token   string
	http    *http.Client
}

func newAPIClient(baseURL, token string) *apiClient {
	return &apiClient{
		baseURL: baseURL,
		token:   token,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

// do sends method/path with an optional JSON body and decodes a 2xx
// JSON response into out (nil skips decoding). On failure it prints
// the server's error message to stderr and exits with the code the
// response status maps to, so every subcommand gets the same
// exit-code contract for free.
func (c *apiClient) do(method, path string, body any, out any) {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to encode request: %v\n", err)
			os.Exit(exitUsage)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequest(method, c.baseURL+path, reader)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build request: %v\n", err)
		os.Exit(exitUsage)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		fmt.Fprintf(os.Stderr, "request failed: %v\n", err)
		os.Exit(exitDependency)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to read response: %v\n", err)
		os.Exit(exitInternal)
	}

	if resp.StatusCode >= 300 {
		var apiErr apiError
		_ = json.Unmarshal(data, &apiErr)
		msg := apiErr.Error
		if msg == "" {
			msg = string(data)
		}
		fmt.Fprintf(os.Stderr, "error: %s\n", msg)
		os.Exit(exitCodeForStatus(resp.StatusCode))
	}

	if out == nil || len(data) == 0 {
		return
	}
	if err := json.Unmarshal(data, out); err != nil {
		fmt.Fprintf(os.Stderr, "failed to decode response: %v\n", err)
		os.Exit(exitInternal)
	}
}

// exitCodeForStatus mirrors serve/handlers.go's writeErr Kind->status
// table back into the exit codes this binary promises its callers.
func exitCodeForStatus(status int) int {
	switch status {
	case http.StatusBadRequest, http.StatusUnauthorized, http.StatusNotFound, http.StatusConflict:
		return exitUsage
	case http.StatusServiceUnavailable, http.StatusBadGateway:
		return exitDependency
	case http.StatusTooManyRequests, http.StatusGone:
		return exitTransient
	default:
		return exitInternal
	}
}

func clientFromEnv(server, token string) *apiClient {
	if server == "" {
		server = os.Getenv("TEAMHUB_SERVER")
	}
	if server == "" {
		server = "http://127.0.0.1:8080"
	}
	if token == "" {
		token = os.Getenv("TEAMHUB_TOKEN")
	}
	return newAPIClient(server, token)
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}
