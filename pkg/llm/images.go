package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const (
	defaultImageModel   = "dall-e-3"
	defaultImageSize    = "1024x1024"
	defaultImageTimeout = 120 * time.Second
)

// ImageOptions configures an ImageClient.
type ImageOptions struct {
	APIKey  string
	BaseURL string
	Model   string
	Size    string
	Timeout time.Duration

	HTTPClient *http.Client
}

// ImageClient talks to an OpenAI-compatible image generation endpoint.
type ImageClient struct {
	apiKey     string
	baseURL    string
	model      string
	size       string
	httpClient *http.Client
}

// NewImageClient builds an image client with defaults for zero-valued
// options.
func NewImageClient(opts ImageOptions) *ImageClient {
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	model := opts.Model
	if model == "" {
		model = defaultImageModel
	}
	size := opts.Size
	if size == "" {
		size = defaultImageSize
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultImageTimeout
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout:   timeout,
			Transport: DefaultTransport,
		}
	}

	return &ImageClient{
		apiKey:     opts.APIKey,
		baseURL:    baseURL,
		model:      model,
		size:       size,
		httpClient: httpClient,
	}
}

type imageRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	N      int    `json:"n"`
	Size   string `json:"size"`
}

type imageResponse struct {
	Data []struct {
		URL string `json:"url"`
	} `json:"data"`
}

// Generate renders prompt into a single image and returns its URL.
func (c *ImageClient) Generate(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(imageRequest{
		Model:  c.model,
		Prompt: prompt,
		N:      1,
		Size:   c.size,
	})
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/images/generations", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", parseError(resp)
	}

	var imgResp imageResponse
	if err := json.NewDecoder(resp.Body).Decode(&imgResp); err != nil {
		return "", fmt.Errorf("decoding response: %w", err)
	}
	if len(imgResp.Data) == 0 || imgResp.Data[0].URL == "" {
		return "", fmt.Errorf("no image returned")
	}
	return imgResp.Data[0].URL, nil
}
