package generator

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"emperror.dev/errors"
	"github.com/buger/jsonparser"
	"github.com/hashicorp/go-cleanhttp"
	jsoniter "github.com/json-iterator/go"
)

const maxResponseBytes = 1 << 20

// GeminiClient calls the Generative Language REST API.
type GeminiClient struct {
	HTTPClient *http.Client
	baseURL    string
	model      string
	apiKey     string
}

func NewGeminiClient(baseURL, model, apiKey string) *GeminiClient {
	return &GeminiClient{
		HTTPClient: cleanhttp.DefaultPooledClient(),
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		apiKey:     apiKey,
	}
}

type generateRequest struct {
	Contents []requestContent `json:"contents"`
}

type requestContent struct {
	Parts []requestPart `json:"parts"`
}

type requestPart struct {
	Text string `json:"text"`
}

func (c *GeminiClient) Endpoint() string {
	return fmt.Sprintf("%s/v1beta/models/%s:generateContent", c.baseURL, c.model)
}

// Generate sends prompt and returns the first candidate's text.
func (c *GeminiClient) Generate(ctx context.Context, prompt string) (string, error) {
	body, err := jsoniter.ConfigCompatibleWithStandardLibrary.Marshal(generateRequest{
		Contents: []requestContent{{Parts: []requestPart{{Text: prompt}}}},
	})
	if err != nil {
		return "", errors.Wrap(err, "encode generation request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint(), bytes.NewReader(body))
	if err != nil {
		return "", errors.Wrap(err, "build generation request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", errors.Wrap(err, "generation request")
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", errors.Wrap(err, "read generation response")
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		message, _ := jsonparser.GetString(raw, "error", "message")
		return "", errors.Errorf("generation api returned %d: %s", resp.StatusCode, message)
	}

	text, err := jsonparser.GetString(raw, "candidates", "[0]", "content", "parts", "[0]", "text")
	if err != nil {
		return "", errors.Errorf("%w: no candidate text: %w", ErrMalformedResponse, err)
	}
	return text, nil
}

var _ Model = (*GeminiClient)(nil)
