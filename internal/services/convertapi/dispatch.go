package convertapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"sync"

	"marklift/internal/endpoints"
	"marklift/internal/items"
	"marklift/internal/logging"
	"marklift/internal/services"
)

// UseBatch decides between one multipart batch request and parallel per-item
// requests: batch only when there is more than one item and they are not all
// plain documents.
func UseBatch(batch []items.Item) bool {
	if len(batch) <= 1 {
		return false
	}
	for _, item := range batch {
		if item.Kind != items.KindDocument {
			return true
		}
	}
	return false
}

// Dispatch submits a normalized batch. Per-item failures are reported on the
// corresponding DispatchResult; the returned error is reserved for failures
// that sink the whole call, such as a batch request that never got accepted.
func (c *Client) Dispatch(ctx context.Context, batch []items.Item, credential string) ([]DispatchResult, error) {
	if len(batch) == 0 {
		return nil, services.NewValidationError(services.CodeNoItems, "", "nothing to dispatch")
	}
	if UseBatch(batch) {
		return c.dispatchBatch(ctx, batch, credential)
	}
	return c.dispatchEach(ctx, batch, credential), nil
}

// dispatchEach fans out one request per item. Completion order is not
// guaranteed; results are keyed by slice position which maps 1:1 to items.
func (c *Client) dispatchEach(ctx context.Context, batch []items.Item, credential string) []DispatchResult {
	results := make([]DispatchResult, len(batch))
	var wg sync.WaitGroup
	for i, item := range batch {
		wg.Add(1)
		go func(i int, item items.Item) {
			defer wg.Done()
			results[i] = c.dispatchOne(ctx, item, credential)
		}(i, item)
	}
	wg.Wait()
	return results
}

func (c *Client) dispatchOne(ctx context.Context, item items.Item, credential string) DispatchResult {
	result := DispatchResult{Items: []items.Item{item}}

	var (
		req *http.Request
		err error
	)
	if item.IsFileBacked() {
		req, err = c.newFileRequest(ctx, item)
	} else {
		req, err = c.newURLRequest(ctx, item)
	}
	if err != nil {
		result.Err = err
		return result
	}
	setCredential(req, credential)

	resp, err := c.do(req)
	if err != nil {
		result.Err = err
		return result
	}
	defer resp.Body.Close()

	jobID, payload, contentType, err := parseAcceptance(resp)
	if err != nil {
		result.Err = err
		return result
	}
	result.JobID = jobID
	result.Payload = payload
	result.ContentType = contentType
	c.logger.Debug("item dispatched", logging.FieldItemID, item.ID, logging.FieldJobID, jobID)
	return result
}

func (c *Client) newURLRequest(ctx context.Context, item items.Item) (*http.Request, error) {
	body, err := json.Marshal(urlRequestBody{
		URL:     item.SourceURL,
		Name:    item.Name,
		Options: item.Options,
	})
	if err != nil {
		return nil, fmt.Errorf("encode url request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpointURL(endpoints.Resolve(item.Kind)), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build url request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

func (c *Client) newFileRequest(ctx context.Context, item items.Item) (*http.Request, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	if err := writeFilePart(writer, "file", item); err != nil {
		return nil, err
	}
	optionsJSON, err := json.Marshal(item.Options)
	if err != nil {
		return nil, fmt.Errorf("encode options: %w", err)
	}
	if err := writer.WriteField("options", string(optionsJSON)); err != nil {
		return nil, fmt.Errorf("write options field: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("finalize multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpointURL(endpoints.Resolve(item.Kind)), &buf)
	if err != nil {
		return nil, fmt.Errorf("build file request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req, nil
}

// dispatchBatch submits every item in one multipart request: files under the
// shared "files" field, URL-kind items described in the "items" JSON array.
// The server may answer with one job id per item or a single id covering the
// whole batch; both shapes are mapped onto DispatchResults.
func (c *Client) dispatchBatch(ctx context.Context, batch []items.Item, credential string) ([]DispatchResult, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	urlEntries := make([]batchURLEntry, 0, len(batch))
	for _, item := range batch {
		if item.IsFileBacked() {
			if err := writeFilePart(writer, "files", item); err != nil {
				return nil, err
			}
			continue
		}
		urlEntries = append(urlEntries, batchURLEntry{
			URL:     item.SourceURL,
			Name:    item.Name,
			Kind:    string(item.Kind),
			Options: item.Options,
		})
	}

	entriesJSON, err := json.Marshal(urlEntries)
	if err != nil {
		return nil, fmt.Errorf("encode batch items: %w", err)
	}
	if err := writer.WriteField("items", string(entriesJSON)); err != nil {
		return nil, fmt.Errorf("write items field: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("finalize multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpointURL(endpoints.Batch), &buf)
	if err != nil {
		return nil, fmt.Errorf("build batch request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	setCredential(req, credential)

	resp, err := c.do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	jobIDs, err := parseBatchAcceptance(resp, len(batch))
	if err != nil {
		return nil, err
	}

	if len(jobIDs) == 1 {
		// Single id for the whole batch: one job fans out over every item.
		c.logger.Debug("batch dispatched as single job", logging.FieldJobID, jobIDs[0], "items", len(batch))
		return []DispatchResult{{Items: append([]items.Item(nil), batch...), JobID: jobIDs[0]}}, nil
	}

	results := make([]DispatchResult, len(batch))
	for i, item := range batch {
		results[i] = DispatchResult{Items: []items.Item{item}, JobID: jobIDs[i]}
	}
	c.logger.Debug("batch dispatched", "jobs", len(jobIDs))
	return results, nil
}

func writeFilePart(writer *multipart.Writer, field string, item items.Item) error {
	file, err := os.Open(item.SourcePath)
	if err != nil {
		return fmt.Errorf("open %s: %w", item.SourcePath, err)
	}
	defer file.Close()

	part, err := writer.CreateFormFile(field, item.Name)
	if err != nil {
		return fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return fmt.Errorf("copy %s into request: %w", item.Name, err)
	}
	return nil
}

type urlRequestBody struct {
	URL     string        `json:"url"`
	Name    string        `json:"name"`
	Options items.Options `json:"options"`
}

type batchURLEntry struct {
	URL     string        `json:"url"`
	Name    string        `json:"name"`
	Kind    string        `json:"kind"`
	Options items.Options `json:"options"`
}
