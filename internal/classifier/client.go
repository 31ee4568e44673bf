package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/washwatch/washwatch-go/internal/config"
	"github.com/washwatch/washwatch-go/internal/utils"
)

// Scorer is the external classifier boundary: a black-box scoring function
// that takes fixed-length ordered feature vectors and returns wash-trade
// probabilities in [0,1], one per vector.
type Scorer interface {
	Score(ctx context.Context, vectors [][]float64) ([]float64, error)
}

// PredictRequest is the payload sent to the model-serving sidecar.
type PredictRequest struct {
	Features [][]float64 `json:"features"`
}

// PredictResponse is the sidecar's scoring response.
type PredictResponse struct {
	Scores []float64 `json:"scores"`
}

// HealthResponse reports sidecar availability and the loaded model artifact.
type HealthResponse struct {
	Status string `json:"status"`
	Model  string `json:"model,omitempty"`
}

// ErrorResponse is the sidecar's error envelope.
type ErrorResponse struct {
	Error string `json:"error"`
}

// Client calls the model-serving sidecar over HTTP. Any transport or HTTP
// failure surfaces as ClassifierUnavailableError so the engine can degrade
// to rule-only verdicts.
type Client struct {
	HTTPClient *http.Client
	baseURL    string
}

// NewClient creates a classifier client from configuration.
func NewClient(cfg *config.ClassifierConfig) *Client {
	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		HTTPClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimSuffix(cfg.ServiceURL, "/"),
	}
}

// HealthCheck checks whether the sidecar is up and has a model loaded.
func (c *Client) HealthCheck(ctx context.Context) (*HealthResponse, error) {
	var response HealthResponse
	if err := c.makeRequest(ctx, http.MethodGet, "/health", nil, &response); err != nil {
		return nil, err
	}
	return &response, nil
}

// Score sends the batch of feature vectors for inference and returns one
// probability per vector, in order.
func (c *Client) Score(ctx context.Context, vectors [][]float64) ([]float64, error) {
	if len(vectors) == 0 {
		return []float64{}, nil
	}

	var response PredictResponse
	err := c.makeRequest(ctx, http.MethodPost, "/api/predict", &PredictRequest{Features: vectors}, &response)
	if err != nil {
		return nil, err
	}

	if len(response.Scores) != len(vectors) {
		return nil, utils.NewClassifierUnavailableError(
			fmt.Sprintf("scorer returned %d scores for %d vectors", len(response.Scores), len(vectors)), nil)
	}
	for _, score := range response.Scores {
		if score < 0 || score > 1 {
			return nil, utils.NewClassifierUnavailableError(
				fmt.Sprintf("scorer returned probability %f outside [0,1]", score), nil)
		}
	}
	return response.Scores, nil
}

// BaseURL returns the base URL of the model-serving sidecar.
func (c *Client) BaseURL() string {
	return c.baseURL
}

func (c *Client) makeRequest(ctx context.Context, method, path string, body interface{}, result interface{}) error {
	url := c.baseURL + path

	var reqBody io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewBuffer(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return utils.NewClassifierUnavailableError("request failed", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return utils.NewClassifierUnavailableError("failed to read response body", err)
	}

	if resp.StatusCode >= 400 {
		var errorResp ErrorResponse
		if err := json.Unmarshal(respBody, &errorResp); err == nil && errorResp.Error != "" {
			return utils.NewClassifierUnavailableError(
				fmt.Sprintf("scorer error (%d): %s", resp.StatusCode, errorResp.Error), nil)
		}
		return utils.NewClassifierUnavailableError(
			fmt.Sprintf("scorer error (%d): %s", resp.StatusCode, string(respBody)), nil)
	}

	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return utils.NewClassifierUnavailableError("failed to unmarshal response", err)
		}
	}
	return nil
}
