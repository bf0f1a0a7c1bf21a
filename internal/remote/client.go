// Package remote talks to the PuriCare backend device API.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dtroode/puricare-client/internal/model"
)

const (
	devicesPath  = "/api/devices"
	registerPath = "/api/devices/register"

	maxErrorBody = 4 << 10
)

var _ model.DeviceAPI = (*Client)(nil)

// Client is an HTTP client of the device API. A Client with an empty base
// URL is valid and reports itself as not configured.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a client for baseURL.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// Configured reports whether a base URL is set.
func (c *Client) Configured() bool {
	return c.baseURL != ""
}

// ListDevices fetches the devices of the token's owner. Any transport error
// or non-2xx status is reported as model.ErrRemoteFetch.
func (c *Client) ListDevices(ctx context.Context, token string) ([]model.DeviceRecord, error) {
	req, err := c.newRequest(ctx, http.MethodGet, devicesPath, token, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", model.ErrRemoteFetch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: %s", model.ErrRemoteFetch, statusError(resp))
	}

	var devices []model.DeviceRecord
	if err := json.NewDecoder(resp.Body).Decode(&devices); err != nil {
		return nil, fmt.Errorf("%w: decoding devices: %w", model.ErrRemoteFetch, err)
	}
	return devices, nil
}

type registerRequest struct {
	Serial   string         `json:"serial"`
	RoomType model.RoomType `json:"roomType"`
}

// RegisterDevice registers a device by serial number and returns the record
// created by the backend.
func (c *Client) RegisterDevice(ctx context.Context, token, serial string, room model.RoomType) (model.DeviceRecord, error) {
	body, err := json.Marshal(registerRequest{Serial: serial, RoomType: room})
	if err != nil {
		return model.DeviceRecord{}, fmt.Errorf("encoding register request: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, registerPath, token, bytes.NewReader(body))
	if err != nil {
		return model.DeviceRecord{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return model.DeviceRecord{}, fmt.Errorf("%w: %w", model.ErrRemoteFetch, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusBadRequest:
		return model.DeviceRecord{}, fmt.Errorf("%w: %s", model.ErrInvalidSerial, statusError(resp))
	case resp.StatusCode == http.StatusConflict:
		return model.DeviceRecord{}, fmt.Errorf("%w: %s", model.ErrDeviceAlreadyRegistered, statusError(resp))
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return model.DeviceRecord{}, fmt.Errorf("%w: %s", model.ErrRemoteFetch, statusError(resp))
	}

	var device model.DeviceRecord
	if err := json.NewDecoder(resp.Body).Decode(&device); err != nil {
		return model.DeviceRecord{}, fmt.Errorf("%w: decoding device: %w", model.ErrRemoteFetch, err)
	}
	return device, nil
}

func (c *Client) newRequest(ctx context.Context, method, path, token string, body io.Reader) (*http.Request, error) {
	if !c.Configured() {
		return nil, model.ErrRemoteUnavailable
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	return req, nil
}

// statusError describes a failed response, preferring the backend's
// {"error": "..."} message.
func statusError(resp *http.Response) string {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	var body struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(data, &body) == nil && body.Error != "" {
		return fmt.Sprintf("status %d: %s", resp.StatusCode, body.Error)
	}
	return fmt.Sprintf("status %d", resp.StatusCode)
}
