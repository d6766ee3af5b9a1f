// Package apiclient talks to the remote conversion service: uploads, the
// convert endpoint, the progress event stream and result downloads.
package apiclient

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/mail"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	maxEmailLength  = 300
	fileIDHeader    = "X-File-ID"
	timingHeader    = "Server-Timing"
	eventStreamType = "text/event-stream"
)

var ErrNoBaseURL = errors.New("conversion service base URL is required")

// Client is safe for concurrent use.
type Client struct {
	baseURL    *url.URL
	token      string
	timeout    time.Duration
	formats    []string
	httpClient *http.Client
	logger     *zap.Logger
}

type Options struct {
	BaseURL string
	Token   string
	// Timeout bounds a single convert, upload or waitlist call. Zero
	// disables it. Event streams are never bounded.
	Timeout    time.Duration
	Formats    []string
	HTTPClient *http.Client
	Logger     *zap.Logger
}

func New(opts Options) (*Client, error) {
	if opts.BaseURL == "" {
		return nil, ErrNoBaseURL
	}
	base, err := url.Parse(strings.TrimRight(opts.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid base URL %q", opts.BaseURL)
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{
		baseURL:    base,
		token:      opts.Token,
		timeout:    opts.Timeout,
		formats:    opts.Formats,
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

// BaseURL returns the service root.
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

// Convert asks the service to convert an uploaded file.
func (c *Client) Convert(ctx context.Context, req ConvertRequest) (*ConversionOutcome, error) {
	if err := c.validateConvert(req); err != nil {
		return nil, err
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	ctx, cancel := c.bounded(ctx)
	defer cancel()

	httpReq, err := c.newRequest(ctx, http.MethodPost, "/api/v2/convert", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	started := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &TransportError{Op: "convert " + req.FileID, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, c.handleErrorResponse(resp)
	}

	var payload convertResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode convert response: %w", err)
	}
	if payload.Error {
		return nil, &APIError{StatusCode: resp.StatusCode, Message: payload.ErrorMsg}
	}

	outcome := &ConversionOutcome{
		FileID:      payload.FileID,
		Filename:    payload.Filename,
		DownloadURL: payload.DownloadURL,
		PreviewURL:  payload.PreviewURL,
		Metadata:    payload.Metadata,
		ServerTime:  resp.Header.Get(timingHeader),
	}
	if outcome.FileID == "" {
		outcome.FileID = req.FileID
	}
	if payload.Data != "" {
		data, err := base64.StdEncoding.DecodeString(payload.Data)
		if err != nil {
			return nil, fmt.Errorf("decode inline data: %w", err)
		}
		outcome.Data = data
	}
	if d, ok := ParseServerTiming(outcome.ServerTime); ok {
		outcome.Elapsed = d
	} else {
		outcome.Elapsed = time.Since(started)
	}

	c.logger.Debug("conversion finished",
		zap.String("file_id", outcome.FileID),
		zap.Duration("elapsed", outcome.Elapsed),
	)
	return outcome, nil
}

// Upload streams one file to the upload endpoint, tagged with its file id.
func (c *Client) Upload(ctx context.Context, fileID, filename string, content io.Reader) error {
	pr, pw := io.Pipe()
	defer pr.Close()
	writer := multipart.NewWriter(pw)
	go func() {
		pw.CloseWithError(writeUploadForm(writer, fileID, filename, content))
	}()

	ctx, cancel := c.bounded(ctx)
	defer cancel()

	req, err := c.newRequest(ctx, http.MethodPost, "/api/uploads", pr)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set(fileIDHeader, fileID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &TransportError{Op: "upload " + fileID, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return c.handleErrorResponse(resp)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func writeUploadForm(writer *multipart.Writer, fileID, filename string, content io.Reader) error {
	if err := writer.WriteField("fileId", fileID); err != nil {
		return err
	}
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, content); err != nil {
		return fmt.Errorf("read %s: %w", filename, err)
	}
	return writer.Close()
}

// OpenEvents opens the progress event stream for one file. The caller owns
// the returned body.
func (c *Client) OpenEvents(ctx context.Context, fileID string) (io.ReadCloser, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/api/events?fileId="+url.QueryEscape(fileID), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", eventStreamType)
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &TransportError{Op: "events " + fileID, Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, c.handleErrorResponse(resp)
	}
	return resp.Body, nil
}

// Download fetches the binary content behind a result URL. Relative URLs
// resolve against the service root. Only http and https are fetched.
func (c *Client) Download(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	if rawURL == "" {
		return nil, &ValidationError{Message: "result has no download URL"}
	}
	target, err := url.Parse(rawURL)
	if err != nil {
		return nil, &ValidationError{Message: fmt.Sprintf("invalid download URL %q", rawURL)}
	}
	switch strings.ToLower(target.Scheme) {
	case "", "http", "https":
	default:
		return nil, &ValidationError{Message: fmt.Sprintf("unsupported download URL scheme %q", target.Scheme)}
	}
	target = c.baseURL.ResolveReference(target)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return nil, err
	}
	if target.Host == c.baseURL.Host {
		c.authorize(req)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &TransportError{Op: "download", Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		return nil, c.handleErrorResponse(resp)
	}
	return resp.Body, nil
}

// JoinWaitlist registers interest in an upcoming feature.
func (c *Client) JoinWaitlist(ctx context.Context, entry WaitlistEntry) error {
	if err := validateEmail(entry.Email); err != nil {
		return err
	}
	if entry.FeatureID == "" {
		return &ValidationError{Message: "missing feature id"}
	}

	body, err := json.Marshal(entry)
	if err != nil {
		return err
	}

	ctx, cancel := c.bounded(ctx)
	defer cancel()

	req, err := c.newRequest(ctx, http.MethodPost, "/api/waitlist", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &TransportError{Op: "waitlist", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return c.handleErrorResponse(resp)
	}
	return nil
}

func (c *Client) validateConvert(req ConvertRequest) error {
	if req.FileID == "" {
		return &ValidationError{Message: "missing file id"}
	}
	if len(c.formats) > 0 && !contains(c.formats, req.Format) {
		return &ValidationError{Message: fmt.Sprintf("unsupported output format %q", req.Format)}
	}
	if req.Quality < 1 || req.Quality > 100 {
		return &ValidationError{Message: fmt.Sprintf("image quality %d out of range", req.Quality)}
	}
	return nil
}

func (c *Client) bounded(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.timeout)
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	ref, err := url.Parse(path)
	if err != nil {
		return nil, err
	}
	target := *c.baseURL
	target.Path = strings.TrimRight(c.baseURL.Path, "/") + ref.Path
	target.RawQuery = ref.RawQuery

	req, err := http.NewRequestWithContext(ctx, method, target.String(), body)
	if err != nil {
		return nil, err
	}
	c.authorize(req)
	return req, nil
}

func (c *Client) authorize(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

// handleErrorResponse maps error responses to typed errors.
func (c *Client) handleErrorResponse(resp *http.Response) error {
	var errorData struct {
		Message   string `json:"message"`
		ErrorCode string `json:"error_code"`
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err := json.Unmarshal(body, &errorData); err != nil || errorData.Message == "" {
		errorData.Message = strings.TrimSpace(string(body))
	}

	c.logger.Debug("service returned error",
		zap.Int("status", resp.StatusCode),
		zap.String("url", resp.Request.URL.Redacted()),
		zap.String("message", errorData.Message),
	)

	switch resp.StatusCode {
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return &ValidationError{Message: errorData.Message}
	case http.StatusRequestEntityTooLarge:
		return &ValidationError{Message: "file too large"}
	case http.StatusUnsupportedMediaType:
		return &ValidationError{Message: "unsupported file format"}
	case http.StatusTooManyRequests:
		retryAfter, _ := strconv.Atoi(resp.Header.Get("Retry-After"))
		return &RateLimitError{Message: errorData.Message, RetryAfter: retryAfter}
	case http.StatusServiceUnavailable:
		return &ServiceUnavailableError{Message: errorData.Message}
	default:
		return &APIError{
			StatusCode: resp.StatusCode,
			Message:    errorData.Message,
			ErrorCode:  errorData.ErrorCode,
		}
	}
}

func validateEmail(email string) error {
	switch {
	case email == "":
		return &ValidationError{Message: "missing email"}
	case len(email) > maxEmailLength:
		return &ValidationError{Message: "email is too long"}
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return &ValidationError{Message: "invalid email"}
	}
	return nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
