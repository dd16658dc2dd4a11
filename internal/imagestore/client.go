package imagestore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/aidims/aidims/internal/platform/apperror"
)

const contentTypeDICOM = "application/dicom"

// Client talks to an Orthanc-compatible image store over its REST API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a store client with a default HTTP client.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return NewClientWithHTTPClient(baseURL, &http.Client{Timeout: timeout})
}

// NewClientWithHTTPClient creates a store client using the given
// *http.Client, allowing an instrumented or test client to be passed.
func NewClientWithHTTPClient(baseURL string, client *http.Client) *Client {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{baseURL: baseURL, httpClient: client}
}

// Store uploads a DICOM instance and returns the store's identifiers for
// it. Re-uploading the same instance succeeds with Status "AlreadyStored"
// and the same identifiers.
func (c *Client) Store(ctx context.Context, dicom []byte) (*UploadResult, error) {
	url := c.baseURL + "/instances"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(dicom))
	if err != nil {
		return nil, fmt.Errorf("create upload request: %w", err)
	}
	req.Header.Set("Content-Type", contentTypeDICOM)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, apperror.External(err, "image store upload failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, c.statusError(resp, "upload instance")
	}

	var result UploadResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, apperror.External(err, "decode upload response")
	}
	return &result, nil
}

// InstanceMetadata fetches the store's metadata for an instance.
func (c *Client) InstanceMetadata(ctx context.Context, storeID string) (*InstanceDetails, error) {
	var details InstanceDetails
	if err := c.getJSON(ctx, "/instances/"+storeID, &details); err != nil {
		return nil, err
	}
	return &details, nil
}

// SeriesMetadata fetches the store's metadata for a series.
func (c *Client) SeriesMetadata(ctx context.Context, storeID string) (*SeriesDetails, error) {
	var details SeriesDetails
	if err := c.getJSON(ctx, "/series/"+storeID, &details); err != nil {
		return nil, err
	}
	return &details, nil
}

// StudyMetadata fetches the store's metadata for a study.
func (c *Client) StudyMetadata(ctx context.Context, storeID string) (*StudyDetails, error) {
	var details StudyDetails
	if err := c.getJSON(ctx, "/studies/"+storeID, &details); err != nil {
		return nil, err
	}
	return &details, nil
}

// Preview fetches a rendered preview image for an instance. Returns the
// image bytes and the content type reported by the store.
func (c *Client) Preview(ctx context.Context, storeID string) ([]byte, string, error) {
	return c.getBinary(ctx, "/instances/"+storeID+"/preview", "fetch preview")
}

// File fetches the raw DICOM file for an instance.
func (c *Client) File(ctx context.Context, storeID string) ([]byte, string, error) {
	return c.getBinary(ctx, "/instances/"+storeID+"/file", "fetch file")
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("create request for %s: %w", path, err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return apperror.External(err, "image store request %s failed", path)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return c.statusError(resp, "get "+path)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return apperror.External(err, "decode response for %s", path)
	}
	return nil
}

func (c *Client) getBinary(ctx context.Context, path, op string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, "", fmt.Errorf("create request for %s: %w", path, err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", apperror.External(err, "image store request %s failed", path)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", c.statusError(resp, op)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", apperror.External(err, "read response for %s", path)
	}
	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return data, contentType, nil
}

func (c *Client) statusError(resp *http.Response, op string) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	if resp.StatusCode == http.StatusNotFound {
		return apperror.NotFound("image store: %s: not found", op)
	}
	return apperror.External(
		fmt.Errorf("status %d: %s", resp.StatusCode, bytes.TrimSpace(body)),
		"image store: %s", op,
	)
}
