// Package bedrock implements llm.Client on AWS Bedrock using the Anthropic
// messages payload.
package bedrock

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/bedrockruntime"
	"github.com/aws/aws-sdk-go/service/bedrockruntime/bedrockruntimeiface"

	"github.com/globee-labs/globee/llm"
)

const (
	defaultModelID     = "anthropic.claude-3-5-sonnet-20240620-v1:0"
	anthropicVersion   = "bedrock-2023-05-31"
	defaultMaxTokens   = 1024
	defaultTemperature = 0.7
)

type ClientOptions struct {
	ModelID string
	Region  string
	// API overrides the session-backed runtime, for tests.
	API bedrockruntimeiface.BedrockRuntimeAPI
}

type Client struct {
	modelID string
	api     bedrockruntimeiface.BedrockRuntimeAPI
}

func New(opts ClientOptions) (*Client, error) {
	modelID := strings.TrimSpace(opts.ModelID)
	if modelID == "" {
		modelID = defaultModelID
	}
	api := opts.API
	if api == nil {
		region := strings.TrimSpace(opts.Region)
		if region == "" {
			return nil, fmt.Errorf("region is required")
		}
		sess, err := session.NewSession(&aws.Config{Region: aws.String(region)})
		if err != nil {
			return nil, fmt.Errorf("create aws session: %w", err)
		}
		api = bedrockruntime.New(sess)
	}
	return &Client{modelID: modelID, api: api}, nil
}

type invokeMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type invokeRequest struct {
	Messages         []invokeMessage `json:"messages"`
	MaxTokens        int             `json:"max_tokens"`
	Temperature      float64         `json:"temperature"`
	AnthropicVersion string          `json:"anthropic_version"`
}

type invokeContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type invokeResponse struct {
	Content []invokeContent `json:"content"`
}

func buildInvokeBody(req llm.Request) ([]byte, error) {
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return nil, fmt.Errorf("prompt is required")
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	temperature := req.Temperature
	if temperature <= 0 {
		temperature = defaultTemperature
	}
	return json.Marshal(invokeRequest{
		Messages:         []invokeMessage{{Role: "user", Content: prompt}},
		MaxTokens:        maxTokens,
		Temperature:      temperature,
		AnthropicVersion: anthropicVersion,
	})
}

// parseInvokeBody joins the text parts of a messages-API response; parts of
// any other type are ignored.
func parseInvokeBody(raw []byte) (string, error) {
	var out invokeResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("decode bedrock response: %w", err)
	}
	parts := make([]string, 0, len(out.Content))
	for _, item := range out.Content {
		if item.Type != "text" {
			continue
		}
		parts = append(parts, item.Text)
	}
	text := strings.TrimSpace(strings.Join(parts, "\n"))
	if text == "" {
		return "", fmt.Errorf("bedrock response contained no text")
	}
	return text, nil
}

func (c *Client) Generate(ctx context.Context, req llm.Request) (string, error) {
	if c == nil || c.api == nil {
		return "", fmt.Errorf("bedrock client is not initialized")
	}
	body, err := buildInvokeBody(req)
	if err != nil {
		return "", err
	}
	out, err := c.api.InvokeModelWithContext(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(c.modelID),
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
		Body:        body,
	})
	if err != nil {
		return "", fmt.Errorf("bedrock invoke %s: %w", c.modelID, err)
	}
	return parseInvokeBody(out.Body)
}
