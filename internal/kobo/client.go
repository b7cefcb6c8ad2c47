// Package kobo is a client for the KoBo/Ona survey data API.
package kobo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/happyhackingspace/formflat/internal/apperr"
	"github.com/happyhackingspace/formflat/internal/textutil"
)

// DefaultURL is the API root used when none is configured.
const DefaultURL = "https://kc.humanitarianresponse.info/api/v1"

const (
	defaultTimeout = 60 * time.Second
	maxBodySize    = 512 << 20
	userAgent      = "formflat"
)

// HTTPClient is the interface used for HTTP requests (allows testing).
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// NewHTTPClient returns an http.Client with a request timeout and a redirect limit.
func NewHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 5 {
				return fmt.Errorf("too many redirects")
			}
			return nil
		},
	}
}

// Client talks to one API root. A Client with a token implements formflat.Source.
type Client struct {
	baseURL string
	token   string
	http    HTTPClient
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(h HTTPClient) Option {
	return func(c *Client) { c.http = h }
}

// WithTimeout sets the per-request timeout of the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http = NewHTTPClient(d) }
}

// New returns a Client for baseURL, or DefaultURL when baseURL is empty.
func New(baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultURL
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    NewHTTPClient(defaultTimeout),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// WithToken returns a copy of c that authenticates with token.
func (c *Client) WithToken(token string) *Client {
	cp := *c
	cp.token = token
	return &cp
}

// BaseURL returns the API root.
func (c *Client) BaseURL() string { return c.baseURL }

// FormSummary is one entry of the form list.
type FormSummary struct {
	FormID         int    `json:"formid"`
	IDString       string `json:"id_string"`
	Title          string `json:"title"`
	Submissions    int    `json:"num_of_submissions"`
	LastSubmission string `json:"last_submission_time,omitempty"`
	DateModified   string `json:"date_modified,omitempty"`
}

// FetchToken exchanges a username and password for the account's API token.
func (c *Client) FetchToken(ctx context.Context, username, password string) (string, error) {
	body, err := c.get(ctx, "/user", func(req *http.Request) {
		req.SetBasicAuth(username, password)
	})
	if err != nil {
		return "", err
	}
	var user struct {
		Token  string `json:"api_token"`
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(body, &user); err != nil {
		return "", apperr.SourceData("GET /user", err)
	}
	if user.Token == "" {
		msg := "response has no api_token"
		if user.Detail != "" {
			msg = user.Detail
		}
		return "", apperr.Auth(0, errors.New(msg))
	}
	return user.Token, nil
}

// Forms lists the forms visible to the token. The raw response is returned
// alongside the decoded summaries.
func (c *Client) Forms(ctx context.Context) ([]FormSummary, []byte, error) {
	body, err := c.get(ctx, "/forms", c.authorize)
	if err != nil {
		return nil, nil, err
	}
	var forms []FormSummary
	if err := json.Unmarshal(body, &forms); err != nil {
		return nil, nil, apperr.SourceData("GET /forms", err)
	}
	return forms, body, nil
}

// FormDefinition returns the JSON form definition of a form.
func (c *Client) FormDefinition(ctx context.Context, formID string) ([]byte, error) {
	return c.get(ctx, "/forms/"+url.PathEscape(formID)+"/form.json", c.authorize)
}

// Submissions returns the JSON submission list of a form.
func (c *Client) Submissions(ctx context.Context, formID string) ([]byte, error) {
	return c.get(ctx, "/data/"+url.PathEscape(formID), c.authorize)
}

func (c *Client) authorize(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Token "+c.token)
	}
}

func (c *Client) get(ctx context.Context, path string, auth func(*http.Request)) ([]byte, error) {
	op := "GET " + path
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, apperr.SourceData(op, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if auth != nil {
		auth(req)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, apperr.SourceData(op, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, apperr.SourceData(op, err)
	}
	slog.Debug("API request", "path", path, "status", resp.StatusCode, "bytes", len(body), "duration", time.Since(start))

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, apperr.Auth(resp.StatusCode, errors.New(errorDetail(body, resp.Status)))
	case resp.StatusCode >= 400:
		return nil, apperr.SourceDataf(op, "HTTP %d: %s", resp.StatusCode, errorDetail(body, resp.Status))
	}
	if !json.Valid(body) {
		return nil, apperr.SourceDataf(op, "response is not JSON")
	}
	return body, nil
}

// errorDetail extracts the "detail" message APIs put in error bodies.
func errorDetail(body []byte, fallback string) string {
	var e struct {
		Detail string `json:"detail"`
	}
	if json.Unmarshal(body, &e) == nil && e.Detail != "" {
		return e.Detail
	}
	if s := strings.TrimSpace(string(body)); s != "" {
		return textutil.Truncate(textutil.NormalizeWhitespaces(s), 200)
	}
	return fallback
}
