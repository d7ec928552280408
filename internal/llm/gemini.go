// Package llm 封装文本生成模型。
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"

	"prepkitty/internal/config"
	"prepkitty/internal/metrics"
)

// ErrEmptyResponse 表示模型返回了空文本。
var ErrEmptyResponse = errors.New("model returned an empty response")

// Generator 把提示词转换为一段回复文本。
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Gemini 通过 google.golang.org/genai 调用 Gemini 模型。
type Gemini struct {
	client      *genai.Client
	model       string
	temperature float32
}

// NewGemini 创建 Gemini 客户端；未配置 API Key 时返回错误。
func NewGemini(ctx context.Context, cfg config.GeminiConfig) (*Gemini, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("gemini api key is not configured")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	model := cfg.Model
	if model == "" {
		model = config.DefaultGeminiModel
	}
	return &Gemini{client: client, model: model, temperature: 0.7}, nil
}

// Model 返回当前使用的模型名称。
func (g *Gemini) Model() string {
	return g.model
}

// Generate 发送单轮提示词并返回纯文本回复。
func (g *Gemini) Generate(ctx context.Context, prompt string) (text string, err error) {
	started := time.Now()
	defer func() { metrics.ObserveLLMCall(g.model, started, err) }()

	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), &genai.GenerateContentConfig{
		Temperature: genai.Ptr(g.temperature),
	})
	if err != nil {
		return "", fmt.Errorf("gemini generate content: %w", err)
	}
	text = strings.TrimSpace(resp.Text())
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}
