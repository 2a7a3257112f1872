// Package notesclient talks to the audionotes server: REST for notes, the
// WebSocket or gRPC stream for uploads and presigned URLs for downloads.
package notesclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/dmitrijs2005/audionotes/internal/client/config"
	"github.com/gorilla/websocket"
)

// Note mirrors the server's JSON representation of a note.
type Note struct {
	ID            string    `json:"id"`
	Title         string    `json:"title"`
	Notes         string    `json:"notes"`
	Tags          []string  `json:"tags"`
	AudioFilename string    `json:"audio_filename"`
	AudioPath     *string   `json:"audio_path"`
	AudioURL      *string   `json:"audio_url"`
	Transcription *string   `json:"transcription"`
	Summary       *string   `json:"summary"`
	Status        string    `json:"status"`
	Revision      int64     `json:"revision"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type CreateRequest struct {
	Title string   `json:"title"`
	Tags  []string `json:"tags,omitempty"`
	Notes string   `json:"notes,omitempty"`
}

type UpdateRequest struct {
	Title *string   `json:"title,omitempty"`
	Tags  *[]string `json:"tags,omitempty"`
	Notes *string   `json:"notes,omitempty"`
}

type ListOptions struct {
	Skip   int
	Limit  int
	Search string
	Status string
	Tags   []string
}

func (o ListOptions) values() url.Values {
	q := url.Values{}
	if o.Skip > 0 {
		q.Set("skip", strconv.Itoa(o.Skip))
	}
	if o.Limit > 0 {
		q.Set("limit", strconv.Itoa(o.Limit))
	}
	if o.Search != "" {
		q.Set("search", o.Search)
	}
	if o.Status != "" {
		q.Set("status", o.Status)
	}
	for _, t := range o.Tags {
		q.Add("tags", t)
	}
	return q
}

// AudioLink is a presigned retrieval URL.
type AudioLink struct {
	URL       string `json:"audio_url"`
	ExpiresIn int64  `json:"expires_in"`
}

// UploadStatus is the server's record of the latest upload session.
type UploadStatus struct {
	State     string    `json:"state"`
	Filename  string    `json:"filename"`
	FileSize  int64     `json:"file_size"`
	Received  int64     `json:"received"`
	Progress  float64   `json:"progress"`
	Message   string    `json:"message"`
	Stale     bool      `json:"stale"`
	UpdatedAt time.Time `json:"updated_at"`
}

// APIError is a non-2xx REST response.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Message)
}

// IsNotFound reports whether err is a 404 from the server.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

type Client struct {
	base      *url.URL
	http      *http.Client
	dialer    *websocket.Dialer
	grpcAddr  string
	chunkSize int
}

func New(cfg *config.Config) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(cfg.ServerURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("server url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("server url must be http or https, got %q", cfg.ServerURL)
	}

	return &Client{
		base:      base,
		http:      &http.Client{Timeout: cfg.RequestTimeout},
		dialer:    &websocket.Dialer{HandshakeTimeout: cfg.RequestTimeout},
		grpcAddr:  cfg.GRPCAddr,
		chunkSize: cfg.ChunkSizeOrDefault(),
	}, nil
}

func (c *Client) endpoint(path string, q url.Values) string {
	u := *c.base
	u.Path = strings.TrimRight(u.Path, "/") + path
	u.RawQuery = q.Encode()
	return u.String()
}

func (c *Client) do(ctx context.Context, method, path string, q url.Values, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path, q), body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var e struct {
			Error string `json:"error"`
		}
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if json.Unmarshal(data, &e) != nil || e.Error == "" {
			e.Error = strings.TrimSpace(string(data))
		}
		return &APIError{StatusCode: resp.StatusCode, Message: e.Error}
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func notePath(id string, parts ...string) string {
	p := "/api/v1/notes/" + url.PathEscape(id)
	for _, s := range parts {
		p += "/" + s
	}
	return p
}

func (c *Client) CreateNote(ctx context.Context, req CreateRequest) (*Note, error) {
	var n Note
	if err := c.do(ctx, http.MethodPost, "/api/v1/notes", nil, req, &n); err != nil {
		return nil, err
	}
	return &n, nil
}

func (c *Client) ListNotes(ctx context.Context, opts ListOptions) ([]Note, error) {
	var notes []Note
	if err := c.do(ctx, http.MethodGet, "/api/v1/notes", opts.values(), nil, &notes); err != nil {
		return nil, err
	}
	return notes, nil
}

func (c *Client) GetNote(ctx context.Context, id string) (*Note, error) {
	var n Note
	if err := c.do(ctx, http.MethodGet, notePath(id), nil, nil, &n); err != nil {
		return nil, err
	}
	return &n, nil
}

func (c *Client) UpdateNote(ctx context.Context, id string, req UpdateRequest) (*Note, error) {
	var n Note
	if err := c.do(ctx, http.MethodPut, notePath(id), nil, req, &n); err != nil {
		return nil, err
	}
	return &n, nil
}

func (c *Client) DeleteNote(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, notePath(id), nil, nil, nil)
}

func (c *Client) Transcription(ctx context.Context, id string) (string, error) {
	var out struct {
		Transcription string `json:"transcription"`
	}
	if err := c.do(ctx, http.MethodGet, notePath(id, "transcription"), nil, nil, &out); err != nil {
		return "", err
	}
	return out.Transcription, nil
}

func (c *Client) Summary(ctx context.Context, id string) (string, error) {
	var out struct {
		Summary string `json:"summary"`
	}
	if err := c.do(ctx, http.MethodGet, notePath(id, "summary"), nil, nil, &out); err != nil {
		return "", err
	}
	return out.Summary, nil
}

func (c *Client) Reset(ctx context.Context, id string) (*Note, error) {
	var n Note
	if err := c.do(ctx, http.MethodPost, notePath(id, "reset"), nil, nil, &n); err != nil {
		return nil, err
	}
	return &n, nil
}

func (c *Client) AudioURL(ctx context.Context, id string) (*AudioLink, error) {
	var l AudioLink
	if err := c.do(ctx, http.MethodGet, notePath(id, "audio"), nil, nil, &l); err != nil {
		return nil, err
	}
	return &l, nil
}

func (c *Client) UploadStatus(ctx context.Context, id string) (*UploadStatus, error) {
	var s UploadStatus
	if err := c.do(ctx, http.MethodGet, notePath(id, "upload"), nil, nil, &s); err != nil {
		return nil, err
	}
	return &s, nil
}
