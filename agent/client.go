package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Client talks to the keywarden server's public API.
type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// ValidateResult carries the server's answer to a validation attempt.
type ValidateResult struct {
	Success   bool   `json:"success"`
	Duration  string `json:"duration"`
	ExpiresAt string `json:"expires_at"`
	Mode      string `json:"mode"`
	Reason    string `json:"reason"`
	Message   string `json:"message"`
}

// denialError is a definitive no from the server. Not retryable.
type denialError struct {
	reason  string
	message string
}

func (e denialError) Error() string {
	if e.message != "" {
		return e.message
	}
	return e.reason
}

// Validate presents the license key and hardware id. Denials come back as
// denialError; transport failures and 5xx responses are retryable.
func (c *Client) Validate(licenseKey, hwid string) (*ValidateResult, error) {
	resp, err := c.post("/api/validate", map[string]string{
		"license_key": licenseKey,
		"hwid":        hwid,
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if isRetryableStatus(resp) {
		return nil, retryableStatusError{status: resp.StatusCode}
	}

	var result ValidateResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("malformed server response: %w", err)
	}
	if !result.Success {
		return nil, denialError{reason: result.Reason, message: result.Message}
	}
	return &result, nil
}

// Logout releases a shared-terminal session. Best-effort by contract.
func (c *Client) Logout(licenseKey, hwid string) error {
	resp, err := c.post("/api/logout", map[string]string{
		"license_key": licenseKey,
		"hwid":        hwid,
	})
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

// Healthy probes server reachability.
func (c *Client) Healthy() bool {
	resp, err := c.http.Get(c.baseURL + "/api/health")
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

func (c *Client) post(path string, payload any) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequest(http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.http.Do(req)
}
