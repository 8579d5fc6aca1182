// Package azure implements classify.Provider on Azure OpenAI chat completions.
package azure

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

const (
	DefaultDeployment = "gpt-4o-mini"
	DefaultAPIVersion = "2023-10-01-preview"

	maxTokens = 200
)

// Client sends classification prompts to an Azure OpenAI deployment.
type Client struct {
	client     *openai.Client
	deployment string
}

// New creates a client for the given resource endpoint and deployment,
// authenticated with the pre-shared api-key.
func New(endpoint, apiKey, deployment, apiVersion string) *Client {
	if deployment == "" {
		deployment = DefaultDeployment
	}
	cfg := openai.DefaultAzureConfig(apiKey, strings.TrimRight(endpoint, "/"))
	if apiVersion != "" {
		cfg.APIVersion = apiVersion
	}
	cfg.AzureModelMapperFunc = func(string) string { return deployment }
	cfg.HTTPClient = &http.Client{Timeout: 120 * time.Second}

	return &Client{
		client:     openai.NewClientWithConfig(cfg),
		deployment: deployment,
	}
}

// Complete sends one user message and returns the first choice's content.
// A response without choices yields an empty string and no error.
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.deployment,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		MaxTokens: maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("azure chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Message.Content, nil
}

// ValidateEndpoint checks that endpoint is an https Azure OpenAI resource
// URL: https://{resource}.openai.azure.com or
// https://{resource}.services.ai.azure.com.
func ValidateEndpoint(endpoint string) error {
	if endpoint == "" {
		return errors.New("azure OpenAI endpoint cannot be empty")
	}
	if !strings.HasPrefix(endpoint, "https://") {
		return fmt.Errorf("azure OpenAI endpoint must start with https:// (got %q)", endpoint)
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return fmt.Errorf("invalid azure OpenAI endpoint: %w", err)
	}
	host := u.Hostname()
	for _, suffix := range []string{".openai.azure.com", ".services.ai.azure.com"} {
		if strings.HasSuffix(host, suffix) && len(host) > len(suffix) {
			return nil
		}
	}
	return fmt.Errorf("azure OpenAI endpoint host %q must end with .openai.azure.com or .services.ai.azure.com", host)
}
