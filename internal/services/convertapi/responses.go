package convertapi

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"marklift/internal/services"
)

var binaryContentTypes = map[string]struct{}{
	"application/zip":          {},
	"application/octet-stream": {},
	"text/markdown":            {},
}

type acceptanceEnvelope struct {
	Success *bool    `json:"success"`
	JobID   string   `json:"jobId"`
	JobIDs  []string `json:"jobIds"`
	Message string   `json:"message"`
	Code    string   `json:"code"`
}

type errorEnvelope struct {
	Error *struct {
		Message string `json:"message"`
		Code    string `json:"code"`
		Details string `json:"details"`
	} `json:"error"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// parseAcceptance interprets a per-item response: either an asynchronous
// acceptance carrying a job id, or a synchronous binary artifact.
func parseAcceptance(resp *http.Response) (jobID string, payload []byte, contentType string, err error) {
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", nil, "", parseErrorResponse(resp)
	}

	contentType = normalizeContentType(resp.Header.Get("Content-Type"))
	if _, ok := binaryContentTypes[contentType]; ok {
		payload, err = io.ReadAll(io.LimitReader(resp.Body, maxArtifactBytes))
		if err != nil {
			return "", nil, "", services.Wrap(services.ErrNetwork, "convertapi", "read synchronous payload", "", err)
		}
		return "", payload, contentType, nil
	}

	envelope, err := decodeEnvelope(resp.Body)
	if err != nil {
		return "", nil, "", err
	}
	if envelope.Success != nil && !*envelope.Success {
		return "", nil, "", &services.APIError{
			StatusCode: resp.StatusCode,
			Code:       envelope.Code,
			Message:    fallbackMessage(envelope.Message, "conversion request rejected"),
		}
	}
	if envelope.JobID == "" {
		return "", nil, "", &services.APIError{
			StatusCode: resp.StatusCode,
			Code:       services.CodeNoJobID,
			Message:    "accepted response carried no job id",
		}
	}
	return envelope.JobID, nil, "", nil
}

// parseBatchAcceptance interprets a batch response. The server returns either
// one job id per submitted item or a single id representing the whole batch;
// any other cardinality is a malformed response.
func parseBatchAcceptance(resp *http.Response, itemCount int) ([]string, error) {
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, parseErrorResponse(resp)
	}

	envelope, err := decodeEnvelope(resp.Body)
	if err != nil {
		return nil, err
	}
	if envelope.Success != nil && !*envelope.Success {
		return nil, &services.APIError{
			StatusCode: resp.StatusCode,
			Code:       envelope.Code,
			Message:    fallbackMessage(envelope.Message, "batch request rejected"),
		}
	}

	switch {
	case len(envelope.JobIDs) == itemCount || len(envelope.JobIDs) == 1:
		return envelope.JobIDs, nil
	case len(envelope.JobIDs) > 0:
		return nil, services.Wrap(
			services.ErrResponseFormat,
			"convertapi", "batch acceptance",
			fmt.Sprintf("got %d job ids for %d items", len(envelope.JobIDs), itemCount),
			nil,
		)
	case envelope.JobID != "":
		return []string{envelope.JobID}, nil
	default:
		return nil, &services.APIError{
			StatusCode: resp.StatusCode,
			Code:       services.CodeNoJobID,
			Message:    "batch response carried no job ids",
		}
	}
}

// parseErrorResponse maps a non-2xx body onto an APIError, accepting both the
// nested {error: {message, code, details}} and flat {message, code} shapes.
func parseErrorResponse(resp *http.Response) error {
	body, readErr := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	apiErr := &services.APIError{StatusCode: resp.StatusCode}
	if readErr != nil {
		apiErr.Message = http.StatusText(resp.StatusCode)
		return apiErr
	}

	var envelope errorEnvelope
	if err := json.Unmarshal(body, &envelope); err == nil {
		if envelope.Error != nil {
			apiErr.Code = envelope.Error.Code
			apiErr.Message = envelope.Error.Message
			apiErr.Details = envelope.Error.Details
			return apiErr
		}
		if envelope.Message != "" || envelope.Code != "" {
			apiErr.Code = envelope.Code
			apiErr.Message = envelope.Message
			return apiErr
		}
	}

	apiErr.Message = fallbackMessage(strings.TrimSpace(string(body)), http.StatusText(resp.StatusCode))
	if len(apiErr.Message) > 200 {
		apiErr.Message = apiErr.Message[:200]
	}
	return apiErr
}

func decodeEnvelope(body io.Reader) (acceptanceEnvelope, error) {
	var envelope acceptanceEnvelope
	if err := json.NewDecoder(body).Decode(&envelope); err != nil {
		return envelope, services.Wrap(services.ErrResponseFormat, "convertapi", "decode response", "", err)
	}
	return envelope, nil
}

func normalizeContentType(value string) string {
	if idx := strings.IndexByte(value, ';'); idx >= 0 {
		value = value[:idx]
	}
	return strings.ToLower(strings.TrimSpace(value))
}

func fallbackMessage(message, fallback string) string {
	if strings.TrimSpace(message) == "" {
		return fallback
	}
	return message
}
