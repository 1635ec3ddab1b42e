// Package client talks to a running meditrack server on behalf of the
// records CLI commands.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"github.com/meditrack/meditrack/internal/domain/patient"
)

// ErrNotLoggedIn is returned by doctor calls made before Login.
var ErrNotLoggedIn = errors.New("client: not logged in")

// APIError is a non-2xx answer from the server.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server returned %d", e.Status)
	}
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}

type errorBody struct {
	Message string            `json:"message"`
	Errors  map[string]string `json:"errors"`
}

// PatientPage is one page of GET /api/v1/patients.
type PatientPage struct {
	Data    []*patient.Record `json:"data"`
	Total   int               `json:"total"`
	Limit   int               `json:"limit"`
	Offset  int               `json:"offset"`
	HasMore bool              `json:"has_more"`
}

type sessionBody struct {
	Token     string    `json:"token"`
	Username  string    `json:"username"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Client is safe for sequential use by one command.
type Client struct {
	http   *resty.Client
	logger zerolog.Logger
	token  string
}

// New returns a client for the server at baseURL.
func New(baseURL string, logger zerolog.Logger) *Client {
	rc := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(30 * time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(3 * time.Second).
		SetHeader("Accept", "application/json").
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err == nil && r.StatusCode() == http.StatusServiceUnavailable
		})

	return &Client{
		http:   rc,
		logger: logger.With().Str("component", "meditrack_client").Logger(),
	}
}

// Login opens a doctor session used by the following calls.
func (c *Client) Login(ctx context.Context, username, password string) error {
	var sess sessionBody
	var apiErr errorBody
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(map[string]string{"username": username, "password": password}).
		SetResult(&sess).
		SetError(&apiErr).
		Post("/api/v1/auth/login")
	if err != nil {
		return fmt.Errorf("login request: %w", err)
	}
	if resp.IsError() {
		return &APIError{Status: resp.StatusCode(), Message: apiErr.Message}
	}
	if sess.Token == "" {
		return fmt.Errorf("login response carried no token")
	}

	c.token = sess.Token
	c.http.SetAuthToken(sess.Token)
	c.logger.Debug().Time("expires_at", sess.ExpiresAt).Msg("logged in")
	return nil
}

// Logout ends the session. It is a no-op when not logged in.
func (c *Client) Logout(ctx context.Context) error {
	if c.token == "" {
		return nil
	}
	resp, err := c.http.R().SetContext(ctx).Post("/api/v1/auth/logout")
	if err != nil {
		return fmt.Errorf("logout request: %w", err)
	}
	if resp.IsError() {
		return &APIError{Status: resp.StatusCode()}
	}
	c.token = ""
	c.http.SetAuthToken("")
	return nil
}

// ListPatients fetches one page of records, newest first. refresh asks the
// server to reload from its backend first.
func (c *Client) ListPatients(ctx context.Context, limit, offset int, refresh bool) (*PatientPage, error) {
	if c.token == "" {
		return nil, ErrNotLoggedIn
	}
	var page PatientPage
	var apiErr errorBody
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"limit":   strconv.Itoa(limit),
			"offset":  strconv.Itoa(offset),
			"refresh": strconv.FormatBool(refresh),
		}).
		SetResult(&page).
		SetError(&apiErr).
		Get("/api/v1/patients")
	if err != nil {
		return nil, fmt.Errorf("list patients: %w", err)
	}
	if resp.IsError() {
		return nil, &APIError{Status: resp.StatusCode(), Message: apiErr.Message}
	}
	return &page, nil
}

// AllPatients walks every page. Only the first page request refreshes.
func (c *Client) AllPatients(ctx context.Context, pageSize int, refresh bool) ([]*patient.Record, error) {
	if pageSize <= 0 {
		pageSize = 100
	}
	var out []*patient.Record
	offset := 0
	for {
		page, err := c.ListPatients(ctx, pageSize, offset, refresh && offset == 0)
		if err != nil {
			return nil, err
		}
		out = append(out, page.Data...)
		if !page.HasMore || len(page.Data) == 0 {
			return out, nil
		}
		offset += len(page.Data)
	}
}

// ExportPatients streams the XLSX export to w.
func (c *Client) ExportPatients(ctx context.Context, w io.Writer) (int64, error) {
	if c.token == "" {
		return 0, ErrNotLoggedIn
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		Get("/api/v1/patients/export")
	if err != nil {
		return 0, fmt.Errorf("export patients: %w", err)
	}
	body := resp.RawBody()
	defer body.Close()

	if resp.StatusCode() != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(body, 4096))
		return 0, &APIError{Status: resp.StatusCode(), Message: string(msg)}
	}
	n, err := io.Copy(w, body)
	if err != nil {
		return n, fmt.Errorf("write export: %w", err)
	}
	c.logger.Debug().Int64("bytes", n).Msg("export downloaded")
	return n, nil
}
