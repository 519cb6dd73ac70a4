package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"subforge/internal/api"
	"subforge/internal/jobstore"
)

const apiPrefix = "/api/v1"

// apiClient talks to a running subforged.
type apiClient struct {
	base   string
	token  string
	user   string
	http   *http.Client
	dialer *websocket.Dialer
}

// apiError is a non-2xx response from the daemon.
type apiError struct {
	Status  int
	Kind    string
	Message string
	Hint    string
}

func (e *apiError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.Status)
	}
	if e.Kind != "" {
		msg = e.Kind + ": " + msg
	}
	if e.Hint != "" {
		msg += " (" + e.Hint + ")"
	}
	return fmt.Sprintf("daemon returned %d: %s", e.Status, msg)
}

func newAPIClient(base, token, user string) *apiClient {
	return &apiClient{
		base:   strings.TrimRight(base, "/"),
		token:  token,
		user:   user,
		http:   &http.Client{},
		dialer: &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
	}
}

func (c *apiClient) headers() http.Header {
	h := http.Header{}
	if c.token != "" {
		h.Set("Authorization", "Bearer "+c.token)
	}
	if c.user != "" {
		h.Set("X-User-ID", c.user)
	}
	return h
}

func (c *apiClient) do(ctx context.Context, method, path string, body io.Reader, contentType string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return err
	}
	req.Header = c.headers()
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("connect to daemon at %s: %w", c.base, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read daemon response: %w", err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return decodeAPIError(resp.StatusCode, data)
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode daemon response: %w", err)
	}
	return nil
}

func decodeAPIError(status int, data []byte) error {
	var body struct {
		Error string `json:"error"`
		Kind  string `json:"kind"`
		Hint  string `json:"hint"`
	}
	_ = json.Unmarshal(data, &body)
	if body.Error == "" {
		body.Error = strings.TrimSpace(string(data))
	}
	return &apiError{Status: status, Kind: body.Kind, Message: body.Error, Hint: body.Hint}
}

// Health returns /healthz. A degraded daemon answers 503 with the same body.
func (c *apiClient) Health(ctx context.Context) (api.HealthResponse, error) {
	var out api.HealthResponse
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/healthz", nil)
	if err != nil {
		return out, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return out, fmt.Errorf("connect to daemon at %s: %w", c.base, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusServiceUnavailable {
		data, _ := io.ReadAll(resp.Body)
		return out, decodeAPIError(resp.StatusCode, data)
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return out, fmt.Errorf("decode health response: %w", err)
	}
	return out, nil
}

func (c *apiClient) ListJobs(ctx context.Context, statuses []string, limit int, all bool) (api.JobList, error) {
	query := url.Values{}
	if len(statuses) > 0 {
		query.Set("status", strings.Join(statuses, ","))
	}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	if all {
		query.Set("all", "true")
	}
	path := apiPrefix + "/jobs"
	if encoded := query.Encode(); encoded != "" {
		path += "?" + encoded
	}
	var out api.JobList
	err := c.do(ctx, http.MethodGet, path, nil, "", &out)
	return out, err
}

func (c *apiClient) GetJob(ctx context.Context, id string) (*jobstore.Job, error) {
	var job jobstore.Job
	if err := c.do(ctx, http.MethodGet, apiPrefix+"/jobs/"+url.PathEscape(id), nil, "", &job); err != nil {
		return nil, err
	}
	return &job, nil
}

func (c *apiClient) CancelJob(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPost, apiPrefix+"/jobs/"+url.PathEscape(id)+"/cancel", nil, "", nil)
}

func (c *apiClient) PurgeJob(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, apiPrefix+"/jobs/"+url.PathEscape(id), nil, "", nil)
}

// Submit queues a background job. Local files are uploaded as multipart.
func (c *apiClient) Submit(ctx context.Context, source string, req api.SubmitRequest) (api.SubmitResponse, error) {
	var out api.SubmitResponse
	if isRemote(source) {
		req.URL = source
		payload, err := json.Marshal(req)
		if err != nil {
			return out, err
		}
		err = c.do(ctx, http.MethodPost, apiPrefix+"/jobs", bytes.NewReader(payload), "application/json", &out)
		return out, err
	}

	file, err := os.Open(source)
	if err != nil {
		return out, fmt.Errorf("open source: %w", err)
	}
	defer file.Close()

	pr, pw := io.Pipe()
	form := multipart.NewWriter(pw)
	go func() {
		err := writeUpload(form, file, filepath.Base(source), req)
		_ = pw.CloseWithError(err)
	}()
	err = c.do(ctx, http.MethodPost, apiPrefix+"/jobs", pr, form.FormDataContentType(), &out)
	_ = pr.Close()
	return out, err
}

func writeUpload(form *multipart.Writer, file io.Reader, name string, req api.SubmitRequest) error {
	fields := map[string]string{
		"sourceLanguage": req.SourceLanguage,
		"targetLanguage": req.TargetLanguage,
		"mode":           req.Mode,
	}
	for key, value := range fields {
		if value == "" {
			continue
		}
		if err := form.WriteField(key, value); err != nil {
			return err
		}
	}
	part, err := form.CreateFormFile("file", name)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, file); err != nil {
		return err
	}
	return form.Close()
}

// Events streams job events until the daemon closes the socket or fn
// returns an error.
func (c *apiClient) Events(ctx context.Context, id string, fn func(api.Event) error) error {
	wsURL, err := url.Parse(c.base + apiPrefix + "/jobs/" + url.PathEscape(id) + "/events")
	if err != nil {
		return err
	}
	switch wsURL.Scheme {
	case "https":
		wsURL.Scheme = "wss"
	default:
		wsURL.Scheme = "ws"
	}
	conn, resp, err := c.dialer.DialContext(ctx, wsURL.String(), c.headers())
	if err != nil {
		if resp != nil {
			defer resp.Body.Close()
			data, _ := io.ReadAll(resp.Body)
			return decodeAPIError(resp.StatusCode, data)
		}
		return fmt.Errorf("open event stream: %w", err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	for {
		var ev api.Event
		if err := conn.ReadJSON(&ev); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return nil
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			return fmt.Errorf("read event: %w", err)
		}
		if err := fn(ev); err != nil {
			return err
		}
	}
}

func isRemote(source string) bool {
	lower := strings.ToLower(strings.TrimSpace(source))
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}
