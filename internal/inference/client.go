package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/aidims/aidims/internal/platform/apperror"
)

// Classification is the model's overall verdict for an image.
type Classification struct {
	Status     string  `json:"status"`
	Confidence float64 `json:"confidence"`
}

// Finding is a single localized detection reported by the model. BboxXYXY
// holds pixel coordinates in x1, y1, x2, y2 order; the model may return
// fewer than four values.
type Finding struct {
	Label           string    `json:"label"`
	ConfidenceScore float64   `json:"confidence_score"`
	BboxXYXY        []float64 `json:"bbox_xyxy"`
}

// Result is the full prediction response for one image.
type Result struct {
	ModelVersion   string         `json:"model_version"`
	Classification Classification `json:"classification"`
	Findings       []Finding      `json:"findings"`
}

// Client talks to the AI inference service.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates an inference client. Prediction can take minutes on
// cold models, so the timeout should be generous.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Predict submits an image for analysis and returns the model's result.
func (c *Client) Predict(ctx context.Context, image []byte, filename string) (*Result, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("image", filename)
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(image); err != nil {
		return nil, fmt.Errorf("write form file: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close multipart writer: %w", err)
	}

	url := c.baseURL + "/predict_findings"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &body)
	if err != nil {
		return nil, fmt.Errorf("create predict request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, apperror.External(err, "inference service unreachable")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, apperror.External(
			fmt.Errorf("status %d: %s", resp.StatusCode, bytes.TrimSpace(detail)),
			"inference service rejected prediction",
		)
	}

	var result Result
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, apperror.External(err, "decode prediction response")
	}
	return &result, nil
}

// Healthy reports whether the inference service answers its health probe.
func (c *Client) Healthy(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}
