package oracle

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	envAPIKey    = "GEMINI_API_KEY"
	envModel     = "GEMINI_MODEL"
	defaultModel = "gemini-2.5-flash"

	apiBase     = "https://generativelanguage.googleapis.com/v1beta/models"
	maxTokens   = 1024
	timeoutSecs = 60

	maxRetries     = 3
	retryBaseDelay = 500 * time.Millisecond
	maxPromptSize  = 200000
)

// Client generates multimodal completions. The agent only ever needs
// one prompt with optional inline images per call.
type Client interface {
	Generate(ctx context.Context, req Request) (Response, error)
	Name() string
}

type Request struct {
	System      string
	Prompt      string
	Images      []Image
	Temperature float32
	MaxTokens   int
}

// Image is an inline attachment, raw bytes plus MIME type.
type Image struct {
	MIME string
	Data []byte
}

type Response struct {
	Text string
}

type geminiClient struct {
	apiKey string
	model  string
	base   string
	http   *http.Client
	logger zerolog.Logger
}

func NewGeminiFromEnv() (Client, error) {
	key := strings.TrimSpace(os.Getenv(envAPIKey))
	if key == "" {
		return nil, fmt.Errorf("missing %s", envAPIKey)
	}
	model := strings.TrimSpace(os.Getenv(envModel))
	if model == "" {
		model = defaultModel
	}
	model = strings.Trim(model, "\"'")
	return &geminiClient{
		apiKey: key,
		model:  model,
		base:   apiBase,
		http: &http.Client{
			Timeout: timeoutSecs * time.Second,
		},
		logger: zerolog.Nop(),
	}, nil
}

// NewGeminiWithLogger creates a client with a logger for request tracing.
func NewGeminiWithLogger(logger zerolog.Logger, model string) (Client, error) {
	client, err := NewGeminiFromEnv()
	if err != nil {
		return nil, err
	}
	gc := client.(*geminiClient)
	gc.logger = logger
	if model != "" {
		gc.model = model
	}
	return gc, nil
}

func (c *geminiClient) Name() string { return c.model }

func (c *geminiClient) Generate(ctx context.Context, req Request) (Response, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return Response{}, errors.New("empty prompt")
	}
	if len(req.Prompt) > maxPromptSize {
		c.logger.Warn().Int("size", len(req.Prompt)).Msg("prompt too large, truncating")
		req.Prompt = req.Prompt[:maxPromptSize] + "... [truncated]"
	}

	payload := c.buildPayload(req)
	body, err := json.Marshal(payload)
	if err != nil {
		return Response{}, fmt.Errorf("marshal payload: %w", err)
	}

	url := fmt.Sprintf("%s/%s:generateContent", c.base, c.model)

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			delay := retryBaseDelay * time.Duration(1<<uint(attempt-1))
			c.logger.Info().
				Int("attempt", attempt).
				Dur("delay", delay).
				Msg("retrying Gemini API call")
			select {
			case <-ctx.Done():
				return Response{}, ctx.Err()
			case <-time.After(delay):
			}
		}

		c.logger.Debug().
			Str("model", c.model).
			Int("images", len(req.Images)).
			Int("payload_size", len(body)).
			Msg("Gemini API request")

		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return Response{}, fmt.Errorf("create request: %w", err)
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("x-goog-api-key", c.apiKey)

		resp, err := c.http.Do(httpReq)
		if err != nil {
			lastErr = fmt.Errorf("http request: %w", err)
			if attempt < maxRetries {
				continue
			}
			return Response{}, lastErr
		}

		data, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("read response: %w", err)
			if attempt < maxRetries {
				continue
			}
			return Response{}, lastErr
		}

		c.logger.Debug().
			Int("status", resp.StatusCode).
			Int("response_size", len(data)).
			Msg("Gemini API response")

		if resp.StatusCode >= 400 {
			var apiErr geminiError
			if err := json.Unmarshal(data, &apiErr); err != nil || apiErr.Error.Message == "" {
				msg := string(data)
				if len(msg) > 500 {
					msg = msg[:500] + "..."
				}
				lastErr = fmt.Errorf("gemini %d: %s", resp.StatusCode, msg)
			} else {
				lastErr = fmt.Errorf("gemini %d: %s (status: %s)", resp.StatusCode, apiErr.Error.Message, apiErr.Error.Status)
			}

			c.logger.Error().
				Int("status", resp.StatusCode).
				Str("error_msg", apiErr.Error.Message).
				Int("attempt", attempt).
				Msg("Gemini API error")

			// Retry on rate limits and server errors only.
			if (resp.StatusCode == 429 || resp.StatusCode >= 500) && attempt < maxRetries {
				continue
			}
			return Response{}, lastErr
		}

		var gr geminiResponse
		if err := json.Unmarshal(data, &gr); err != nil {
			lastErr = fmt.Errorf("parse response: %w", err)
			if attempt < maxRetries {
				continue
			}
			return Response{}, lastErr
		}

		text := gr.text()
		if text == "" {
			lastErr = fmt.Errorf("empty candidate (finish: %s)", gr.finishReason())
			if attempt < maxRetries {
				continue
			}
			return Response{}, lastErr
		}

		c.logger.Debug().Int("response_length", len(text)).Msg("Gemini API success")
		return Response{Text: text}, nil
	}

	return Response{}, fmt.Errorf("max retries exceeded: %w", lastErr)
}

func (c *geminiClient) buildPayload(req Request) geminiPayload {
	parts := make([]geminiPart, 0, len(req.Images)+1)
	for _, img := range req.Images {
		mime := img.MIME
		if mime == "" {
			mime = "image/png"
		}
		parts = append(parts, geminiPart{
			InlineData: &geminiInlineData{
				MIMEType: mime,
				Data:     base64.StdEncoding.EncodeToString(img.Data),
			},
		})
	}
	parts = append(parts, geminiPart{Text: req.Prompt})

	maxOut := req.MaxTokens
	if maxOut <= 0 {
		maxOut = maxTokens
	}
	p := geminiPayload{
		Contents: []geminiContent{{Role: "user", Parts: parts}},
		GenerationConfig: geminiGenConfig{
			Temperature:     float64(req.Temperature),
			MaxOutputTokens: maxOut,
		},
	}
	if req.System != "" {
		p.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: req.System}}}
	}
	return p
}

type geminiPayload struct {
	Contents          []geminiContent `json:"contents"`
	SystemInstruction *geminiContent  `json:"systemInstruction,omitempty"`
	GenerationConfig  geminiGenConfig `json:"generationConfig"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inline_data,omitempty"`
}

type geminiInlineData struct {
	MIMEType string `json:"mime_type"`
	Data     string `json:"data"`
}

type geminiGenConfig struct {
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
}

type geminiResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
}

func (r geminiResponse) text() string {
	var buf bytes.Buffer
	for _, cand := range r.Candidates {
		for _, p := range cand.Content.Parts {
			buf.WriteString(p.Text)
		}
		break
	}
	return buf.String()
}

func (r geminiResponse) finishReason() string {
	if len(r.Candidates) == 0 {
		return "no candidates"
	}
	return r.Candidates[0].FinishReason
}

type geminiError struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}
