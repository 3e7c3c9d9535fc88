package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/aryan0dhankhar/stratahub/internal/security/auth"
)

// apiClient talks to the StrataHub API as the holder of token.
type apiClient struct {
	baseURL string
	token   string
	http    *http.Client
}

func newAPIClient() *apiClient {
	return &apiClient{
		baseURL: getAPIURL(),
		token:   loadToken(),
		http:    &http.Client{Timeout: 5 * time.Minute},
	}
}

// apiError is a non-2xx answer. Body is the decoded error message.
type apiError struct {
	Status int
	Body   string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("api returned %d: %s", e.Status, e.Body)
}

// do sends body as JSON and decodes a 2xx response into out. A 207 is
// decoded into out as well and returned with an *apiError.
func (c *apiClient) do(method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, c.baseURL+path, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	ok := resp.StatusCode >= 200 && resp.StatusCode < 300
	if out != nil && ok && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	if ok && resp.StatusCode != http.StatusMultiStatus {
		return nil
	}
	var e struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(raw, &e) != nil || e.Error == "" {
		e.Error = string(raw)
	}
	return &apiError{Status: resp.StatusCode, Body: e.Error}
}

func isPartial(err error) bool {
	var ae *apiError
	return errors.As(err, &ae) && ae.Status == http.StatusMultiStatus
}

// tenantOf reads the tenant from a saved token without verifying it; the
// server does that.
func tenantOf(token string) (string, error) {
	if token == "" {
		return "", errors.New("no token; run `stratactl token mint` first")
	}
	claims := &auth.Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return "", fmt.Errorf("read token: %w", err)
	}
	return claims.TenantID, nil
}

func getAPIURL() string {
	if url := os.Getenv("STRATAHUB_API"); url != "" {
		return url
	}
	return "http://localhost:8080"
}

func tokenFile() string {
	if p := os.Getenv("STRATAHUB_TOKEN_FILE"); p != "" {
		return p
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".stratahub", "token")
}

func saveToken(token string) error {
	path := tokenFile()
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(token), 0o600)
}

func loadToken() string {
	data, _ := os.ReadFile(tokenFile())
	return string(bytes.TrimSpace(data))
}
