// Package openvoice provides the HTTP client for an OpenVoice-compatible
// voice-cloning and text-to-speech server. It implements the voice.Service
// interface.
//
// All calls authenticate with a bearer credential captured at construction and
// target a configurable base URL (default http://localhost:8000):
//
//   - GET  /validate-key  200 valid, 401 invalid, anything else an error.
//   - POST /tts           JSON body, answers raw WAV bytes.
//   - GET  /voices        JSON voice catalogue.
//   - POST /clone-voice   multipart upload of a recorded sample.
//
// The client is stateless apart from its immutable configuration and is safe
// for concurrent use. It never retries; a caller that wants another attempt
// simply calls again.
//
// Typical usage:
//
//	c := openvoice.New(apiKey,
//	    openvoice.WithBaseURL("http://voice.local:8000"),
//	    openvoice.WithTimeout(20*time.Second),
//	)
//	ok, err := c.ValidateKey(ctx)
package openvoice

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/MrWong99/sheng/pkg/voice"
)

// Compile-time interface assertion.
var _ voice.Service = (*Client)(nil)

// ---- constants ----

const (
	// DefaultBaseURL is the address of a locally running server.
	DefaultBaseURL = "http://localhost:8000"

	// Model is the synthesis model requested on every /tts call.
	Model = "openvoice-v2"

	// ResponseFormat is the audio container requested from /tts.
	ResponseFormat = "wav"

	validateKeyEndpoint = "/validate-key"
	ttsEndpoint         = "/tts"
	voicesEndpoint      = "/voices"
	cloneVoiceEndpoint  = "/clone-voice"

	defaultCloneFilename = "sample.m4a"
)

// ---- options ----

// Option is a functional option for configuring a Client.
type Option func(*Client)

// WithBaseURL overrides the server address. A trailing slash is ignored.
// The URL is not checked here; a malformed value surfaces as
// voice.ErrInvalidURL on the first call.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(baseURL, "/")
	}
}

// WithHTTPClient replaces the underlying *http.Client, e.g. to install an
// instrumented transport. A nil client is ignored.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithTimeout sets the per-request timeout of the underlying HTTP client.
// Zero means no timeout beyond the context's.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

// WithRateLimit installs a client-side token bucket allowing perSecond
// requests with the given burst. Calls wait for a token and fail with a
// voice.ServerError if the context ends first. Non-positive perSecond disables
// limiting.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(c *Client) {
		if perSecond <= 0 {
			c.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// WithUserAgent sets the User-Agent header sent with every request.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		c.userAgent = ua
	}
}

// ---- Client ----

// Client implements voice.Service against an OpenVoice server.
type Client struct {
	baseURL    string
	apiKey     string
	userAgent  string
	timeout    time.Duration
	httpClient *http.Client
	limiter    *rate.Limiter
}

// New creates a Client that authenticates with apiKey. The key is captured
// once; construct a new Client after the stored credential changes.
func New(apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL:    DefaultBaseURL,
		apiKey:     apiKey,
		httpClient: http.DefaultClient,
	}
	for _, o := range opts {
		o(c)
	}
	if c.timeout > 0 {
		// Copy so the shared client (possibly http.DefaultClient) is not mutated.
		hc := *c.httpClient
		hc.Timeout = c.timeout
		c.httpClient = &hc
	}
	return c
}

// BaseURL returns the server address the client targets.
func (c *Client) BaseURL() string { return c.baseURL }

// ---- internal wire types ----

// speechRequest is the JSON body sent to POST /tts.
type speechRequest struct {
	Model          string  `json:"model"`
	Input          string  `json:"input"`
	Voice          string  `json:"voice"`
	Language       string  `json:"language"`
	ResponseFormat string  `json:"response_format"`
	Speed          float64 `json:"speed"`
}

// voicesResponse is the JSON body returned by GET /voices.
type voicesResponse struct {
	Voices []voice.Voice `json:"voices"`
}

// ---- ValidateKey ----

// ValidateKey performs GET /validate-key. A 200 answer yields (true, nil) and a
// 401 answer yields (false, nil); every other status is a *voice.HTTPError.
func (c *Client) ValidateKey(ctx context.Context) (bool, error) {
	endpoint, err := c.endpoint(validateKeyEndpoint)
	if err != nil {
		return false, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return false, fmt.Errorf("openvoice: create validate-key request: %w", voice.ErrInvalidURL)
	}

	resp, err := c.do(req)
	if err != nil {
		return false, err
	}
	defer drainClose(resp.Body)

	switch resp.StatusCode {
	case http.StatusOK:
		return true, nil
	case http.StatusUnauthorized:
		return false, nil
	default:
		return false, &voice.HTTPError{StatusCode: resp.StatusCode, Endpoint: validateKeyEndpoint}
	}
}

// ---- Synthesize ----

// Synthesize performs POST /tts and returns the raw WAV bytes of the answer.
// Neither the voice nor the speed is validated locally.
func (c *Client) Synthesize(ctx context.Context, r voice.Request) ([]byte, error) {
	endpoint, err := c.endpoint(ttsEndpoint)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(speechRequest{
		Model:          Model,
		Input:          r.Text(),
		Voice:          r.VoiceID(),
		Language:       string(r.Language()),
		ResponseFormat: ResponseFormat,
		Speed:          r.Speed(),
	})
	if err != nil {
		return nil, fmt.Errorf("openvoice: marshal tts request: %w: %w", voice.ErrEncoding, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("openvoice: create tts request: %w", voice.ErrInvalidURL)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/wav")

	resp, err := c.do(req)
	if err != nil {
		return nil, err
	}
	defer drainClose(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return nil, &voice.HTTPError{StatusCode: resp.StatusCode, Endpoint: ttsEndpoint}
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("openvoice: read tts response: %w: %w", voice.ErrInvalidResponse, err)
	}
	return audio, nil
}

// ---- ListVoices ----

// ListVoices performs GET /voices.
func (c *Client) ListVoices(ctx context.Context) ([]voice.Voice, error) {
	endpoint, err := c.endpoint(voicesEndpoint)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("openvoice: create voices request: %w", voice.ErrInvalidURL)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.do(req)
	if err != nil {
		return nil, err
	}
	defer drainClose(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return nil, &voice.HTTPError{StatusCode: resp.StatusCode, Endpoint: voicesEndpoint}
	}

	var out voicesResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("openvoice: decode voices: %w: %w", voice.ErrDecoding, err)
	}
	if out.Voices == nil {
		out.Voices = []voice.Voice{}
	}
	return out.Voices, nil
}

// ---- CloneVoice ----

// CloneVoice uploads req.Audio as a multipart form to POST /clone-voice.
func (c *Client) CloneVoice(ctx context.Context, cr voice.CloneRequest) (*voice.CloneResult, error) {
	if strings.TrimSpace(cr.Name) == "" {
		return nil, fmt.Errorf("openvoice: clone voice: name must not be empty")
	}
	if len(cr.Audio) == 0 {
		return nil, fmt.Errorf("openvoice: clone voice: audio sample must not be empty")
	}
	endpoint, err := c.endpoint(cloneVoiceEndpoint)
	if err != nil {
		return nil, err
	}

	filename := cr.Filename
	if filename == "" {
		filename = defaultCloneFilename
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if err := mw.WriteField("voice_name", cr.Name); err != nil {
		return nil, fmt.Errorf("openvoice: write voice_name field: %w: %w", voice.ErrEncoding, err)
	}
	if cr.Language != "" {
		if err := mw.WriteField("language", string(cr.Language)); err != nil {
			return nil, fmt.Errorf("openvoice: write language field: %w: %w", voice.ErrEncoding, err)
		}
	}
	fw, err := mw.CreateFormFile("audio_file", filepath.Base(filename))
	if err != nil {
		return nil, fmt.Errorf("openvoice: create form file: %w: %w", voice.ErrEncoding, err)
	}
	if _, err := fw.Write(cr.Audio); err != nil {
		return nil, fmt.Errorf("openvoice: write form file: %w: %w", voice.ErrEncoding, err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("openvoice: close multipart writer: %w: %w", voice.ErrEncoding, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &body)
	if err != nil {
		return nil, fmt.Errorf("openvoice: create clone-voice request: %w", voice.ErrInvalidURL)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Accept", "application/json")

	resp, err := c.do(req)
	if err != nil {
		return nil, err
	}
	defer drainClose(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return nil, &voice.HTTPError{StatusCode: resp.StatusCode, Endpoint: cloneVoiceEndpoint}
	}

	var result voice.CloneResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("openvoice: decode clone-voice response: %w: %w", voice.ErrDecoding, err)
	}
	return &result, nil
}

// ---- helpers ----

// endpoint joins the base URL and path and rejects anything that is not an
// absolute http(s) URL with a host.
func (c *Client) endpoint(path string) (string, error) {
	u, err := url.Parse(c.baseURL + path)
	if err != nil {
		return "", fmt.Errorf("openvoice: parse %q: %w", c.baseURL+path, voice.ErrInvalidURL)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", fmt.Errorf("openvoice: %q is not an absolute http(s) URL: %w", c.baseURL, voice.ErrInvalidURL)
	}
	return u.String(), nil
}

// do authenticates and sends req, waiting on the rate limiter first. Any
// failure before an HTTP response exists becomes a *voice.ServerError.
func (c *Client) do(req *http.Request) (*http.Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(req.Context()); err != nil {
			return nil, &voice.ServerError{Description: "rate limiter: " + err.Error(), Err: err}
		}
	}

	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &voice.ServerError{
			Description: fmt.Sprintf("%s %s: %v", req.Method, req.URL.Path, err),
			Err:         err,
		}
	}
	if resp == nil {
		return nil, fmt.Errorf("openvoice: %s %s: %w", req.Method, req.URL.Path, voice.ErrInvalidResponse)
	}
	return resp, nil
}

// drainClose discards what is left of body so the connection can be reused,
// then closes it.
func drainClose(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, io.LimitReader(body, 64<<10))
	_ = body.Close()
}
