package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

const defaultServer = "http://localhost:3000"

type client struct {
	server string
	apiKey string
	http   *http.Client
}

// commonFlags registers the flags every admin command shares.
func commonFlags(fs *flag.FlagSet) (server, apiKey *string) {
	def := os.Getenv("AUTOSCRIP_SERVER")
	if def == "" {
		def = defaultServer
	}
	server = fs.String("server", def, "Server URL (e.g., http://server:3000)")
	apiKey = fs.String("api-key", os.Getenv("AUTOSCRIP_API_KEY"), "Admin API key")
	return server, apiKey
}

func newClient(server, apiKey string) (*client, error) {
	if server == "" {
		return nil, fmt.Errorf("--server is required")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("--api-key is required")
	}
	return &client{
		server: strings.TrimRight(server, "/"),
		apiKey: apiKey,
		http:   &http.Client{Timeout: 5 * time.Minute},
	}, nil
}

// do sends body as JSON and decodes the response into out when the status
// matches want.
func (c *client) do(method, path string, body any, want int, out any) error {
	var reader io.Reader
	if body != nil {
		reqBody, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(reqBody)
	}

	req, err := http.NewRequest(method, c.server+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("X-API-Key", c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to connect to server: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != want {
		return fmt.Errorf("request failed (HTTP %d): %s", resp.StatusCode, errorMessage(respBody))
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

func errorMessage(body []byte) string {
	var e struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &e) == nil && e.Error != "" {
		return e.Error
	}
	return strings.TrimSpace(string(body))
}
