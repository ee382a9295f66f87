package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/samber/lo"
	log "github.com/sirupsen/logrus"

	"moments/apperror"
	"moments/models"
)

// DefaultBaseURL is the public moments API
const DefaultBaseURL = "https://moments-application.appspot.com/api/v1/"

// Client talks to the moments REST API. Calls block until the server answers,
// so callers run them off their own event loop. Nothing is retried.
type Client struct {
	transport Transport
	endpoint  *url.URL
}

// NewClient resolves the moments endpoint against baseURL. A base URL without
// a trailing slash is treated as a directory.
func NewClient(baseURL string, transport Transport) (*Client, error) {
	if transport == nil {
		return nil, errors.New("transport is required")
	}

	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid base url %q: scheme and host are required", baseURL)
	}
	if base.Path == "" || base.Path[len(base.Path)-1] != '/' {
		base.Path += "/"
	}

	return &Client{
		transport: transport,
		endpoint:  base.ResolveReference(&url.URL{Path: "moments"}),
	}, nil
}

// CreateMoment posts a new moment
func (c *Client) CreateMoment(ctx context.Context, text string, authorName string) error {
	data, err := json.Marshal(models.CreateRequest{
		Text:       text,
		AuthorName: authorName,
	})
	if err != nil {
		return fmt.Errorf("encode moment: %w", err)
	}

	_, err = c.fetch(ctx, http.MethodPost, c.endpoint.String(), data)
	return err
}

// ListMomentsByCursor returns the page of older moments starting at cursor.
// A nil cursor requests the newest page.
func (c *Client) ListMomentsByCursor(ctx context.Context, cursor *string, limit int) (*models.PagedResult, error) {
	q := url.Values{}
	if cursor != nil {
		q.Set("cursor", *cursor)
	}
	q.Set("limit", strconv.Itoa(limit))

	log.WithFields(log.Fields{
		"cursor": lo.FromPtr(cursor),
		"limit":  limit,
	}).Debug("Listing moments by cursor")

	return c.list(ctx, q)
}

// ListMomentsSince returns moments added after fromTime
func (c *Client) ListMomentsSince(ctx context.Context, fromTime time.Time, limit int) (*models.PagedResult, error) {
	q := url.Values{}
	q.Set("from_time", models.FormatTime(fromTime))
	q.Set("limit", strconv.Itoa(limit))

	log.WithFields(log.Fields{
		"from_time": q.Get("from_time"),
		"limit":     limit,
	}).Debug("Listing moments since")

	return c.list(ctx, q)
}

func (c *Client) list(ctx context.Context, q url.Values) (*models.PagedResult, error) {
	u := *c.endpoint
	u.RawQuery = q.Encode()

	body, err := c.fetch(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}

	result, err := parseList(body)
	if err != nil {
		apiErrors.WithLabelValues("parse").Inc()
		return nil, apperror.ParseFailure(err)
	}
	return result, nil
}

// fetch performs the request and maps transport and status failures
func (c *Client) fetch(ctx context.Context, method string, url string, body []byte) ([]byte, error) {
	resp, err := c.transport.Fetch(ctx, method, url, body)
	if err != nil {
		apiErrors.WithLabelValues("network").Inc()
		log.WithFields(log.Fields{
			"method": method,
			"url":    url,
			"error":  err,
		}).Warn("API request failed")
		return nil, apperror.NetworkFailure(err)
	}

	if resp.StatusCode != http.StatusOK {
		apiErrors.WithLabelValues("server").Inc()
		message := parseErrorMessage(resp.Body)
		log.WithFields(log.Fields{
			"method":  method,
			"url":     url,
			"status":  resp.StatusCode,
			"message": message,
		}).Warn("API returned an error status")
		return nil, apperror.ServerFailure(resp.StatusCode, message)
	}

	return resp.Body, nil
}

// parseErrorMessage extracts error.message from an error body, if there is one
func parseErrorMessage(body []byte) string {
	var resp models.ErrorResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return ""
	}
	return resp.Error.Message
}

// parseList decodes a list response strictly: every key must be present with
// the right type. Only cursor may be null.
func parseList(body []byte) (*models.PagedResult, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(body, &obj); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if obj == nil {
		return nil, errors.New("response is not an object")
	}

	cursorRaw, ok := obj["cursor"]
	if !ok {
		return nil, errors.New(`missing field "cursor"`)
	}
	var cursor *string
	if err := json.Unmarshal(cursorRaw, &cursor); err != nil {
		return nil, fmt.Errorf(`field "cursor": %w`, err)
	}

	momentsRaw, ok := obj["moments"]
	if !ok {
		return nil, errors.New(`missing field "moments"`)
	}
	var rawMoments []map[string]json.RawMessage
	if err := json.Unmarshal(momentsRaw, &rawMoments); err != nil {
		return nil, fmt.Errorf(`field "moments": %w`, err)
	}
	if rawMoments == nil {
		return nil, errors.New(`field "moments" is null`)
	}

	items := make([]models.Moment, 0, len(rawMoments))
	for i, raw := range rawMoments {
		moment, err := parseMoment(raw)
		if err != nil {
			return nil, fmt.Errorf("moment %d: %w", i, err)
		}
		items = append(items, moment)
	}

	return models.NewPagedResult(items, cursor), nil
}

func parseMoment(obj map[string]json.RawMessage) (models.Moment, error) {
	if obj == nil {
		return models.Moment{}, errors.New("moment is null")
	}

	var moment models.Moment
	var added string

	if err := requiredField(obj, "id", &moment.Id); err != nil {
		return moment, err
	}
	if err := field(obj, "text", &moment.Text); err != nil {
		return moment, err
	}
	if err := field(obj, "author_name", &moment.AuthorName); err != nil {
		return moment, err
	}
	if err := requiredField(obj, "added", &added); err != nil {
		return moment, err
	}

	addedAt, err := models.ParseTime(added)
	if err != nil {
		return moment, fmt.Errorf(`field "added": %w`, err)
	}
	moment.AddedAt = addedAt

	return moment, nil
}

func field(obj map[string]json.RawMessage, name string, dst interface{}) error {
	raw, ok := obj[name]
	if !ok {
		return fmt.Errorf("missing field %q", name)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("field %q: %w", name, err)
	}
	return nil
}

// requiredField is field for values that may not be null
func requiredField(obj map[string]json.RawMessage, name string, dst interface{}) error {
	if raw, ok := obj[name]; ok && string(bytes.TrimSpace(raw)) == "null" {
		return fmt.Errorf("field %q is null", name)
	}
	return field(obj, name, dst)
}
