// Package elevenlabs implements voice cloning and speech synthesis against
// the ElevenLabs REST API.
package elevenlabs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
)

const (
	defaultBaseURL      = "https://api.elevenlabs.io"
	defaultModel        = "eleven_multilingual_v2"
	defaultOutputFormat = "mp3_44100_128"

	// maxErrorBody bounds how much of an error response is kept for logs.
	maxErrorBody = 4 << 10
)

// Option is a functional option for Client.
type Option func(*Client)

// WithModel sets the synthesis model ID.
func WithModel(model string) Option {
	return func(c *Client) {
		if model != "" {
			c.model = model
		}
	}
}

// WithBaseURL overrides the API endpoint.
func WithBaseURL(u string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(u, "/")
	}
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// Client talks to ElevenLabs. Safe for concurrent use.
type Client struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
}

// New creates a Client. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("elevenlabs: apiKey must not be empty")
	}
	c := &Client{
		apiKey:     apiKey,
		baseURL:    defaultBaseURL,
		model:      defaultModel,
		httpClient: &http.Client{},
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// StatusError is returned when ElevenLabs answers with a non-2xx status.
type StatusError struct {
	Op     string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("elevenlabs: %s: unexpected status %d: %s", e.Op, e.Status, e.Body)
}

type addVoiceResponse struct {
	VoiceID string `json:"voice_id"`
}

type synthesizeRequest struct {
	Text    string `json:"text"`
	ModelID string `json:"model_id"`
}

// CloneVoice creates an instant voice clone named name from one audio
// sample and returns its voice ID.
func (c *Client) CloneVoice(ctx context.Context, name string, sample io.Reader, filename string) (string, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if err := mw.WriteField("name", name); err != nil {
		return "", fmt.Errorf("elevenlabs: clone voice: %w", err)
	}
	part, err := mw.CreateFormFile("files", filename)
	if err != nil {
		return "", fmt.Errorf("elevenlabs: clone voice: %w", err)
	}
	if _, err := io.Copy(part, sample); err != nil {
		return "", fmt.Errorf("elevenlabs: clone voice: read sample: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("elevenlabs: clone voice: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/v1/voices/add", &body)
	if err != nil {
		return "", fmt.Errorf("elevenlabs: clone voice: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("elevenlabs: clone voice HTTP: %w", err)
	}
	defer resp.Body.Close()
	if err := checkStatus("clone voice", resp); err != nil {
		return "", err
	}

	var out addVoiceResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("elevenlabs: clone voice decode: %w", err)
	}
	if out.VoiceID == "" {
		return "", errors.New("elevenlabs: clone voice: empty voice_id")
	}
	return out.VoiceID, nil
}

// Synthesize renders text in voiceID and streams MP3 audio into w.
// It returns the number of audio bytes written.
func (c *Client) Synthesize(ctx context.Context, voiceID, text string, w io.Writer) (int64, error) {
	payload, err := json.Marshal(synthesizeRequest{Text: text, ModelID: c.model})
	if err != nil {
		return 0, fmt.Errorf("elevenlabs: synthesize: %w", err)
	}

	path := "/v1/text-to-speech/" + url.PathEscape(voiceID) + "?output_format=" + defaultOutputFormat
	req, err := c.newRequest(ctx, http.MethodPost, path, bytes.NewReader(payload))
	if err != nil {
		return 0, fmt.Errorf("elevenlabs: synthesize: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/mpeg")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("elevenlabs: synthesize HTTP: %w", err)
	}
	defer resp.Body.Close()
	if err := checkStatus("synthesize", resp); err != nil {
		return 0, err
	}

	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return n, fmt.Errorf("elevenlabs: synthesize stream: %w", err)
	}
	return n, nil
}

// DeleteVoice removes a cloned voice.
func (c *Client) DeleteVoice(ctx context.Context, voiceID string) error {
	req, err := c.newRequest(ctx, http.MethodDelete, "/v1/voices/"+url.PathEscape(voiceID), nil)
	if err != nil {
		return fmt.Errorf("elevenlabs: delete voice: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("elevenlabs: delete voice HTTP: %w", err)
	}
	defer resp.Body.Close()
	return checkStatus("delete voice", resp)
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("xi-api-key", c.apiKey)
	return req, nil
}

func checkStatus(op string, resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &StatusError{Op: op, Status: resp.StatusCode, Body: strings.TrimSpace(string(b))}
}
