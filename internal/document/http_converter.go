package document

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	ragerr "github.com/seongho-dev/ragload/internal/errors"
)

// Default HTTP converter settings.
const (
	// DefaultConvertTimeout bounds one conversion request. PDF
	// conversion is slow for large scanned documents.
	DefaultConvertTimeout = 5 * time.Minute

	// converterPoolSize is the HTTP connection pool size.
	converterPoolSize = 4
)

// HTTPConverterConfig configures the conversion service client.
type HTTPConverterConfig struct {
	// Endpoint is the conversion service base URL.
	Endpoint string
	// Timeout bounds a single conversion request.
	Timeout time.Duration
}

// HTTPConverter sends raw files to a document-conversion service and
// receives normalized markdown plus structural metadata. The service
// owns layout analysis and OCR; ragload only consumes the result.
type HTTPConverter struct {
	client *http.Client
	config HTTPConverterConfig
}

// convertRequest is the wire format sent to the conversion service.
type convertRequest struct {
	Filename string            `json:"filename"`
	Content  string            `json:"content"` // base64 raw bytes
	Metadata map[string]string `json:"metadata,omitempty"`
}

// convertResponse is the wire format returned by the service.
type convertResponse struct {
	Markdown string `json:"markdown"`
	Sections []struct {
		Title  string `json:"title"`
		Level  int    `json:"level"`
		Offset int    `json:"offset"`
	} `json:"sections"`
	Error string `json:"error,omitempty"`
}

// NewHTTPConverter creates a client for the conversion service.
func NewHTTPConverter(cfg HTTPConverterConfig) *HTTPConverter {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConvertTimeout
	}

	transport := &http.Transport{
		MaxIdleConns:        converterPoolSize,
		MaxIdleConnsPerHost: converterPoolSize,
		IdleConnTimeout:     30 * time.Second,
	}

	// No client-level timeout; each request carries its own context
	// deadline so cancellation at document granularity works.
	return &HTTPConverter{
		client: &http.Client{Transport: transport},
		config: cfg,
	}
}

// Convert posts the raw file to the conversion service.
func (c *HTTPConverter) Convert(ctx context.Context, input ConvertInput) (*Document, error) {
	raw, err := os.ReadFile(input.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ragerr.New(ragerr.ErrCodeSourceNotFound,
				fmt.Sprintf("source file %s not found", input.Path), err)
		}
		return nil, ragerr.ConversionError(fmt.Sprintf("read %s: %v", input.Path, err), err)
	}

	body, err := json.Marshal(convertRequest{
		Filename: filepath.Base(input.Path),
		Content:  base64.StdEncoding.EncodeToString(raw),
		Metadata: input.Metadata,
	})
	if err != nil {
		return nil, ragerr.ConversionError("encode convert request", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost,
		c.config.Endpoint+"/v1/convert", bytes.NewReader(body))
	if err != nil {
		return nil, ragerr.ConversionError("build convert request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, ragerr.ConversionError(
			fmt.Sprintf("conversion service unreachable: %v", err), err)
	}
	defer func() { _ = resp.Body.Close() }()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, ragerr.ConversionError("read convert response", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, ragerr.ConversionError(
			fmt.Sprintf("conversion service returned %d: %s", resp.StatusCode, truncate(string(payload), 200)), nil)
	}

	var out convertResponse
	if err := json.Unmarshal(payload, &out); err != nil {
		return nil, ragerr.ConversionError("decode convert response", err)
	}
	if out.Error != "" {
		return nil, ragerr.ConversionError(out.Error, nil)
	}

	text := Normalize(out.Markdown)

	doc := &Document{
		SourceID: filepath.Base(input.Path),
		Text:     text,
		Metadata: input.Metadata,
	}

	// Prefer the service's structural metadata; fall back to parsing
	// headers out of the markdown when it sends none.
	if len(out.Sections) > 0 {
		for _, s := range out.Sections {
			doc.Sections = append(doc.Sections, Section(s))
		}
	} else {
		doc.Sections = ParseSections(text)
	}

	return doc, nil
}

// Close releases idle connections.
func (c *HTTPConverter) Close() {
	if t, ok := c.client.Transport.(*http.Transport); ok {
		t.CloseIdleConnections()
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
