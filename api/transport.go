package api

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	log "github.com/sirupsen/logrus"
)

const (
	DefaultConnectTimeout = 15 * time.Second
	DefaultReadTimeout    = 10 * time.Second
)

// Response is the raw result of one HTTP round trip
type Response struct {
	StatusCode int
	Body       []byte
}

// Transport performs a single HTTP request. It only fails when no response
// was received at all; any status code is a successful fetch.
type Transport interface {
	Fetch(ctx context.Context, method string, url string, body []byte) (*Response, error)
}

// TransportConfig holds the connection settings for HTTPTransport
type TransportConfig struct {
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	UserAgent      string
}

// HTTPTransport is the net/http backed Transport
type HTTPTransport struct {
	client    *http.Client
	userAgent string
}

func NewHTTPTransport(config TransportConfig) *HTTPTransport {
	if config.ConnectTimeout <= 0 {
		config.ConnectTimeout = DefaultConnectTimeout
	}
	if config.ReadTimeout <= 0 {
		config.ReadTimeout = DefaultReadTimeout
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   config.ConnectTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   config.ConnectTimeout,
		ResponseHeaderTimeout: config.ReadTimeout,
		MaxIdleConns:          10,
		IdleConnTimeout:       90 * time.Second,
	}

	return &HTTPTransport{
		client:    &http.Client{Transport: transport},
		userAgent: config.UserAgent,
	}
}

func (t *HTTPTransport) Fetch(ctx context.Context, method string, url string, body []byte) (*Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if method == http.MethodPost {
		// Our API uses JSON and UTF-8. An empty POST still needs a content length.
		req.Header.Set("Content-Type", "application/json; charset=utf-8")
		if body == nil {
			req.ContentLength = 0
		}
	}
	if t.userAgent != "" {
		req.Header.Set("User-Agent", t.userAgent)
	}

	start := time.Now()
	resp, err := t.client.Do(req)
	if err != nil {
		apiRequests.WithLabelValues(method, "error").Inc()
		return nil, err
	}
	defer resp.Body.Close()

	content, err := io.ReadAll(resp.Body)
	if err != nil {
		apiRequests.WithLabelValues(method, "error").Inc()
		return nil, fmt.Errorf("read body: %w", err)
	}

	latency := time.Since(start)
	apiRequests.WithLabelValues(method, strconv.Itoa(resp.StatusCode)).Inc()
	apiRequestDuration.WithLabelValues(method).Observe(latency.Seconds())

	log.WithFields(log.Fields{
		"method":  method,
		"url":     url,
		"status":  resp.StatusCode,
		"latency": latency,
	}).Debug("API request")

	return &Response{StatusCode: resp.StatusCode, Body: content}, nil
}

var _ Transport = (*HTTPTransport)(nil)
