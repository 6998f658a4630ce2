package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

// maxSourceBytes caps how much a chunk source may hold
const maxSourceBytes = 256 << 20

// Record is one chunk as written by an upstream extraction step.
// Both page/page_number and content/text spellings are accepted.
type Record struct {
	ChunkID    string    `json:"chunk_id,omitempty"`
	PageNumber int       `json:"page_number,omitempty"`
	Page       int       `json:"page,omitempty"`
	Content    string    `json:"content,omitempty"`
	Text       string    `json:"text,omitempty"`
	Embedding  []float32 `json:"embedding,omitempty"`
}

// PageNo returns page_number, falling back to page
func (r *Record) PageNo() int {
	if r.PageNumber != 0 {
		return r.PageNumber
	}
	return r.Page
}

// Body returns content, falling back to text
func (r *Record) Body() string {
	if r.Content != "" {
		return r.Content
	}
	return r.Text
}

// Load decodes chunk records from r. The payload may be an object with a
// "pages" or "chunks" array, or a bare array of records.
func Load(r io.Reader) ([]Record, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxSourceBytes))
	if err != nil {
		return nil, fmt.Errorf("read chunks: %w", err)
	}

	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, ErrNoChunks
	}

	if data[0] == '[' {
		var records []Record
		if err := json.Unmarshal(data, &records); err != nil {
			return nil, fmt.Errorf("decode chunk array: %w", err)
		}
		return records, nil
	}

	var envelope struct {
		Pages  []Record `json:"pages"`
		Chunks []Record `json:"chunks"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("decode chunk document: %w", err)
	}
	if envelope.Chunks != nil {
		return envelope.Chunks, nil
	}
	if envelope.Pages != nil {
		return envelope.Pages, nil
	}
	return nil, fmt.Errorf("%w: expected a \"pages\" or \"chunks\" array", ErrNoChunks)
}

// LoadFile reads chunk records from a JSON file
func LoadFile(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open chunks file: %w", err)
	}
	defer func() { _ = f.Close() }()

	return Load(f)
}

// LoadURL fetches chunk records over HTTP
func LoadURL(ctx context.Context, client *http.Client, url string) ([]Record, error) {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch chunks: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch chunks: unexpected status %d", resp.StatusCode)
	}

	return Load(resp.Body)
}
