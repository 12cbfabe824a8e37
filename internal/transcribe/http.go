package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/medialib/scenesearch/pkg/types"
)

const (
	// maxRequestBytes is the upload cap per request. Files above it
	// are sent as sequential byte-range chunks.
	maxRequestBytes = 25 << 20

	connectTimeout = 30 * time.Second
	requestTimeout = 300 * time.Second
)

// HTTPConfig configures an HTTPProvider.
type HTTPConfig struct {
	ID            string
	Name          string
	Endpoint      string
	APIKey        string
	Language      string
	CostPerMinute float64
}

// HTTPProvider submits media files to a transcription HTTP endpoint
// and streams the returned segments through the Provider callbacks.
type HTTPProvider struct {
	cfg       HTTPConfig
	client    *http.Client
	maxBytes  int64
	cancelled atomic.Bool
	logger    *slog.Logger
}

var _ Provider = (*HTTPProvider)(nil)

// NewHTTPProvider creates an HTTP transcription provider.
func NewHTTPProvider(cfg HTTPConfig, opts ...HTTPOption) *HTTPProvider {
	p := &HTTPProvider{
		cfg:      cfg,
		maxBytes: maxRequestBytes,
		client: &http.Client{
			Timeout: requestTimeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{Timeout: connectTimeout}).DialContext,
			},
		},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// HTTPOption configures an HTTPProvider.
type HTTPOption func(*HTTPProvider)

// WithHTTPLogger sets the structured logger.
func WithHTTPLogger(logger *slog.Logger) HTTPOption {
	return func(p *HTTPProvider) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(client *http.Client) HTTPOption {
	return func(p *HTTPProvider) {
		if client != nil {
			p.client = client
		}
	}
}

// WithMaxRequestBytes overrides the per-request upload cap.
func WithMaxRequestBytes(n int64) HTTPOption {
	return func(p *HTTPProvider) {
		if n > 0 {
			p.maxBytes = n
		}
	}
}

// Name returns the human-readable provider name.
func (p *HTTPProvider) Name() string { return p.cfg.Name }

// ID returns the stable provider identifier.
func (p *HTTPProvider) ID() string { return p.cfg.ID }

// IsConfigured reports whether the provider has an endpoint and key.
func (p *HTTPProvider) IsConfigured() bool {
	return p.cfg.Endpoint != "" && p.cfg.APIKey != ""
}

// IsAvailable probes the endpoint with a HEAD request.
func (p *HTTPProvider) IsAvailable(ctx context.Context) bool {
	if !p.IsConfigured() {
		return false
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, p.cfg.Endpoint, nil)
	if err != nil {
		return false
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode < http.StatusInternalServerError
}

// Cancel flips the cancellation flag. The flag is checked between
// upload chunks, so an in-flight request still runs to completion.
func (p *HTTPProvider) Cancel() {
	p.cancelled.Store(true)
}

// EstimateCost projects the transcription cost from the media
// duration using the configured per-minute rate.
func (p *HTTPProvider) EstimateCost(durationMs int64) float64 {
	if durationMs <= 0 {
		return 0
	}
	minutes := float64(durationMs) / 60000.0
	return minutes * p.cfg.CostPerMinute
}

// transcribeResponse is the endpoint's JSON reply for one chunk.
type transcribeResponse struct {
	Segments []struct {
		StartMs    int64   `json:"start_ms"`
		EndMs      int64   `json:"end_ms"`
		Text       string  `json:"text"`
		Speaker    string  `json:"speaker,omitempty"`
		Confidence float64 `json:"confidence"`
	} `json:"segments"`
}

// Transcribe uploads the media file and emits segments through the
// callbacks. Files above the request cap are split into sequential
// byte-range chunks, with the running segment end carried as a time
// offset so chunk-relative times stay monotonic.
func (p *HTTPProvider) Transcribe(ctx context.Context, path string, onSegment SegmentFunc, onProgress ProgressFunc, onError ErrorFunc) (string, error) {
	if !p.IsConfigured() {
		return "", fmt.Errorf("provider %s is not configured", p.cfg.ID)
	}
	p.cancelled.Store(false)
	jobID := uuid.NewString()

	f, err := os.Open(path)
	if err != nil {
		return jobID, fmt.Errorf("open media file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return jobID, fmt.Errorf("stat media file: %w", err)
	}

	total := info.Size()
	chunks := (total + p.maxBytes - 1) / p.maxBytes
	if chunks < 1 {
		chunks = 1
	}

	var offsetMs int64
	for i := int64(0); i < chunks; i++ {
		if p.cancelled.Load() {
			return jobID, types.ErrCancelled
		}
		if err := ctx.Err(); err != nil {
			return jobID, err
		}

		size := p.maxBytes
		if remaining := total - i*p.maxBytes; remaining < size {
			size = remaining
		}

		resp, err := p.sendChunk(ctx, jobID, filepath.Base(path), io.LimitReader(f, size), i, chunks, offsetMs)
		if err != nil {
			return jobID, fmt.Errorf("transcribe chunk %d/%d: %w", i+1, chunks, err)
		}
		p.logger.Debug("transcribed chunk",
			"job_id", jobID, "chunk", i+1, "of", chunks, "segments", len(resp.Segments))

		for _, seg := range resp.Segments {
			entry := types.ParsedEntry{
				StartMs:    seg.StartMs + offsetMs,
				EndMs:      seg.EndMs + offsetMs,
				Text:       seg.Text,
				Speaker:    seg.Speaker,
				Confidence: seg.Confidence,
			}
			if entry.Text == "" {
				continue
			}
			if entry.Confidence <= 0 {
				err := fmt.Errorf("segment at %dms has no confidence", entry.StartMs)
				if onError != nil {
					onError(err)
				}
				continue
			}
			if onSegment != nil {
				onSegment(entry)
			}
		}
		if n := len(resp.Segments); n > 0 {
			last := resp.Segments[n-1]
			if end := last.EndMs + offsetMs; end > offsetMs {
				offsetMs = end
			}
		}
		if onProgress != nil {
			onProgress(float64(i+1) / float64(chunks))
		}
	}

	return jobID, nil
}

func (p *HTTPProvider) sendChunk(ctx context.Context, jobID, filename string, data io.Reader, index, total, offsetMs int64) (*transcribeResponse, error) {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)

	part, err := w.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, data); err != nil {
		return nil, fmt.Errorf("copy chunk body: %w", err)
	}
	fields := map[string]string{
		"job_id":       jobID,
		"chunk_index":  fmt.Sprintf("%d", index),
		"chunk_total":  fmt.Sprintf("%d", total),
		"offset_ms":    fmt.Sprintf("%d", offsetMs),
		"language":     p.cfg.Language,
		"response_fmt": "json",
	}
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			return nil, fmt.Errorf("write field %s: %w", k, err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.Endpoint, &body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("post chunk: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("endpoint returned %d: %s", resp.StatusCode, bytes.TrimSpace(payload))
	}

	var parsed transcribeResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &parsed, nil
}
