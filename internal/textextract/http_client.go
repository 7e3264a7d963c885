package textextract

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/haseab/retrace-sub007/internal/models"
)

// HTTPClient talks to a recognizer service over JSON: the frame goes out
// base64-encoded, recognized text and regions come back.
type HTTPClient struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
}

func NewHTTPClient(endpoint, apiKey string) *HTTPClient {
	return &HTTPClient{
		endpoint: endpoint,
		apiKey:   apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type extractRequest struct {
	Image string `json:"image"`
}

type extractResponse struct {
	FullText string `json:"fullText"`
	Regions  []struct {
		Text       string  `json:"text"`
		X          int     `json:"x"`
		Y          int     `json:"y"`
		Width      int     `json:"width"`
		Height     int     `json:"height"`
		Confidence float64 `json:"confidence"`
	} `json:"regions"`
	AppName     string `json:"appName"`
	WindowTitle string `json:"windowTitle"`
	BrowserURL  string `json:"browserUrl"`
	Error       string `json:"error"`
}

func (c *HTTPClient) ExtractText(ctx context.Context, imageData []byte) (*models.TextExtraction, error) {
	body, err := json.Marshal(extractRequest{
		Image: base64.StdEncoding.EncodeToString(imageData),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal extraction request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create extraction request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("extraction request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read extraction response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("extraction service returned %d: %s", resp.StatusCode, string(raw))
	}

	var parsed extractResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse extraction response: %w", err)
	}
	if parsed.Error != "" {
		return nil, fmt.Errorf("extraction service error: %s", parsed.Error)
	}

	out := &models.TextExtraction{
		FullText:    parsed.FullText,
		AppName:     parsed.AppName,
		WindowTitle: parsed.WindowTitle,
		BrowserURL:  parsed.BrowserURL,
	}
	for _, r := range parsed.Regions {
		out.Regions = append(out.Regions, models.TextRegion{
			Text:       r.Text,
			X:          r.X,
			Y:          r.Y,
			Width:      r.Width,
			Height:     r.Height,
			Confidence: r.Confidence,
		})
	}
	return out, nil
}
