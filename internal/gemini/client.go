// Package gemini wraps the Google Gemini API for image generation and
// normalizes its heterogeneous response envelope into a canonical payload.
package gemini

import (
	"context"
	"fmt"
	"log/slog"

	"google.golang.org/genai"

	"github.com/example/genimage/internal/config"
)

type Client struct {
	client *genai.Client
	model  string
	log    *slog.Logger
}

func NewClient(ctx context.Context, cfg config.Config, log *slog.Logger) (*Client, error) {
	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: cfg.GeminiAPIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &Client{
		client: client,
		model:  cfg.GeminiModel,
		log:    log,
	}, nil
}

// GenerateFromText requests an image for a text prompt and returns the raw
// response envelope.
func (c *Client) GenerateFromText(ctx context.Context, prompt string) (*genai.GenerateContentResponse, error) {
	parts := []*genai.Part{
		{Text: fmt.Sprintf("Generate an image of the following: %s", prompt)},
	}
	return c.generate(ctx, parts, nil)
}

// GenerateFromImage requests a variation of the input image, optionally
// steered by a prompt.
func (c *Client) GenerateFromImage(ctx context.Context, image []byte, mimeType, prompt string) (*genai.GenerateContentResponse, error) {
	if prompt == "" {
		prompt = "Generate a new variation of this image."
	}
	parts := []*genai.Part{
		{Text: prompt},
		{InlineData: &genai.Blob{MIMEType: mimeType, Data: image}},
	}
	return c.generate(ctx, parts, nil)
}

// GenerateFromTextAndImage requests an edit of the input image following the
// prompt. Sampling is loosened so the model actually produces a visibly
// modified image instead of echoing the input.
func (c *Client) GenerateFromTextAndImage(ctx context.Context, image []byte, mimeType, prompt string) (*genai.GenerateContentResponse, error) {
	instruction := fmt.Sprintf("Modify this image according to the following instructions: %s\n"+
		"Apply a clearly visible change that matches the instructions while keeping the main subject, "+
		"and return the fully modified image rather than the original.", prompt)
	parts := []*genai.Part{
		{Text: instruction},
		{InlineData: &genai.Blob{MIMEType: mimeType, Data: image}},
	}
	sampling := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(0.8)),
		TopK:        genai.Ptr(float32(32)),
		TopP:        genai.Ptr(float32(0.95)),
	}
	return c.generate(ctx, parts, sampling)
}

func (c *Client) generate(ctx context.Context, parts []*genai.Part, sampling *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	cfg := &genai.GenerateContentConfig{}
	if sampling != nil {
		cfg = sampling
	}
	// The model only emits image parts when the image modality is requested.
	cfg.ResponseModalities = []string{"TEXT", "IMAGE"}

	contents := []*genai.Content{{
		Role:  "user",
		Parts: parts,
	}}

	resp, err := c.client.Models.GenerateContent(ctx, c.model, contents, cfg)
	if err != nil {
		return nil, fmt.Errorf("gemini generate: %w", err)
	}
	return resp, nil
}
