package cli

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

	"github.com/hyperjump/bunko/internal/models"
)

// DefaultServerURL is where the CLI expects a running server.
const DefaultServerURL = "http://localhost:8080"

// Client talks to a running bunko server. The CLI uses it whenever a server is
// configured, since the server holds the catalog index lock.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a client for the server at baseURL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 10 * time.Minute},
	}
}

// APIError is a non-2xx response from the server.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}

// Status returns GET /api/v1/status.
func (c *Client) Status(ctx context.Context) (map[string]interface{}, error) {
	var out map[string]interface{}
	err := c.do(ctx, http.MethodGet, "/api/v1/status", nil, &out)
	return out, err
}

// Search runs retrieval against one document.
func (c *Client) Search(ctx context.Context, docID string, req models.SearchRequest) (*models.SearchResponse, error) {
	var out models.SearchResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/documents/"+url.PathEscape(docID)+"/search", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Ask asks a question about one document.
func (c *Client) Ask(ctx context.Context, docID string, req models.ChatRequest) (*models.Answer, error) {
	var out models.Answer
	if err := c.do(ctx, http.MethodPost, "/api/v1/documents/"+url.PathEscape(docID)+"/chat", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Summarize summarizes one document.
func (c *Client) Summarize(ctx context.Context, docID, query string) (*models.Summary, error) {
	var out models.Summary
	if err := c.do(ctx, http.MethodPost, "/api/v1/documents/"+url.PathEscape(docID)+"/summary", models.SummaryRequest{Query: query}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Compare compares two documents.
func (c *Client) Compare(ctx context.Context, req models.CompareRequest) (*models.Comparison, error) {
	var out models.Comparison
	if err := c.do(ctx, http.MethodPost, "/api/v1/compare", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CatalogResult is the GET /api/v1/catalog response.
type CatalogResult struct {
	Query      string              `json:"query"`
	Hits       []models.CatalogHit `json:"hits"`
	Suggestion string              `json:"suggestion,omitempty"`
}

// Catalog finds documents matching query.
func (c *Client) Catalog(ctx context.Context, query string, limit int, fuzzy bool) (*CatalogResult, error) {
	v := url.Values{"q": {query}}
	if limit > 0 {
		v.Set("limit", strconv.Itoa(limit))
	}
	if fuzzy {
		v.Set("fuzzy", "true")
	}
	var out CatalogResult
	if err := c.do(ctx, http.MethodGet, "/api/v1/catalog?"+v.Encode(), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Upload sends a file to POST /api/v1/documents.
func (c *Client) Upload(ctx context.Context, path string) (*models.Document, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return nil, err
	}
	if _, err := fw.Write(content); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/documents", &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	var out models.Document
	if err := c.send(req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.send(req, out)
}

func (c *Client) send(req *http.Request, out interface{}) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(resp.Body)
		msg := strings.TrimSpace(string(b))
		var e struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(b, &e) == nil && e.Error != "" {
			msg = e.Error
		}
		return &APIError{Status: resp.StatusCode, Message: msg}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
