// Package backend is the synchronous JSON-over-HTTP transport to the
// device backend.
//
// Every call is a POST of a JSON document to
// <scheme>://<host>[:port]<base_path>/<endpoint> and returns the raw
// response body. Non-2xx answers are reported as ErrRejected.
package backend

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Endpoint names under the base path.
const (
	EndpointRegister    = "register"
	EndpointServerCreds = "serverCreds"
	EndpointWiFiList    = "wifiList"
)

const (
	defaultTimeout = 10 * time.Second

	// maxResponseBytes caps how much of a response body is read.
	maxResponseBytes = 64 << 10
)

var (
	// ErrRejected is returned for a non-2xx response.
	ErrRejected = errors.New("backend: request rejected")

	// ErrTransport is returned when the request could not be completed.
	ErrTransport = errors.New("backend: transport failure")
)

// Config describes the backend endpoint.
type Config struct {
	Host               string
	Port               int
	TLS                bool
	BasePath           string
	InsecureSkipVerify bool
	Timeout            time.Duration
}

// Client posts JSON documents to the backend.
type Client struct {
	baseURL string
	http    *http.Client
}

// New creates a client. A zero timeout selects 10s.
func New(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.TLS {
		transport.TLSClientConfig = &tls.Config{
			MinVersion:         tls.VersionTLS12,
			InsecureSkipVerify: cfg.InsecureSkipVerify, //nolint:gosec // opt-in for self-signed lab backends
		}
	}

	return &Client{
		baseURL: BaseURL(cfg),
		http:    &http.Client{Timeout: timeout, Transport: transport},
	}
}

// BaseURL renders <scheme>://<host>[:port]<base_path> without a trailing slash.
func BaseURL(cfg Config) string {
	scheme := "http"
	if cfg.TLS {
		scheme = "https"
	}
	host := cfg.Host
	if cfg.Port > 0 {
		host = host + ":" + strconv.Itoa(cfg.Port)
	}
	u := url.URL{Scheme: scheme, Host: host, Path: "/" + strings.Trim(cfg.BasePath, "/")}
	return strings.TrimSuffix(u.String(), "/")
}

// Post sends body to endpoint and returns the response body.
func (c *Client) Post(ctx context.Context, endpoint string, body any) ([]byte, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encoding %s request: %w", endpoint, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("building %s request: %w", endpoint, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrTransport, endpoint, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s response: %w", ErrTransport, endpoint, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return data, fmt.Errorf("%w: %s returned %d", ErrRejected, endpoint, resp.StatusCode)
	}
	return data, nil
}
