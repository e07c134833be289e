package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/lordpython/videoforge/config"
)

// apiClient is a minimal HTTP client against a running `videoforge serve`
// instance, used by every subcommand that doesn't need the full in-process
// stack.
type apiClient struct {
	base string
	hc   *http.Client
}

func newAPIClient() (*apiClient, error) {
	addr := listenAddr
	if addr == "" {
		cfg, err := config.LoadDefault()
		if err != nil {
			return nil, err
		}
		addr = cfg.ListenAddr
	}
	base := addr
	if len(base) > 0 && base[0] == ':' {
		base = "localhost" + base
	}
	return &apiClient{base: "http://" + base, hc: &http.Client{Timeout: 10 * time.Second}}, nil
}

func (c *apiClient) do(method, path string, body any, out any) error {
	var reqBody io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reqBody = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, c.base+path, reqBody)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var errBody map[string]string
		_ = json.NewDecoder(resp.Body).Decode(&errBody)
		return fmt.Errorf("videoforge: %s %s: %d %s", method, path, resp.StatusCode, errBody["error"])
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
