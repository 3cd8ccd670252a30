package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"thought_engine/config"
	"thought_engine/logger"
	"thought_engine/models"
	"thought_engine/utils"
)

// Generator 外部生成服务，只有一个操作
type Generator interface {
	Complete(ctx context.Context, instruction models.Instruction) (string, error)
}

type httpDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// OpenAI 兼容的 chat/completions 请求和响应结构
type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []message       `json:"messages"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	Temperature    float64         `json:"temperature,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Index   int `json:"index"`
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// LLMClient 调用 OpenAI 兼容接口的生成服务客户端；失败不自动重试
type LLMClient struct {
	baseURL     string
	apiKey      string
	model       string
	temperature float64
	client      httpDoer
}

// NewLLMClient 根据配置创建生成服务客户端
func NewLLMClient(cfg *config.Config) *LLMClient {
	apiKey := cfg.Generation.APIKey
	// 如果配置中的API Key是环境变量引用，则从环境变量中获取
	if strings.HasPrefix(apiKey, "${") && strings.HasSuffix(apiKey, "}") {
		envName := apiKey[2 : len(apiKey)-1]
		apiKey = os.Getenv(envName)
		logger.Info("从环境变量获取API Key", "env_var", envName)
	}

	timeout := time.Duration(cfg.Generation.TimeoutSec) * time.Second
	return &LLMClient{
		baseURL:     strings.TrimRight(cfg.Generation.BaseURL, "/"),
		apiKey:      apiKey,
		model:       cfg.Generation.Model,
		temperature: cfg.Generation.Temperature,
		client:      &http.Client{Timeout: timeout},
	}
}

// Complete 发送一次生成请求并返回模型输出中的 JSON 文本
func (c *LLMClient) Complete(ctx context.Context, instruction models.Instruction) (string, error) {
	logger.Info("调用生成服务", "model", c.model, "tier", instruction.Tier, "max_tokens", instruction.MaxTokens)
	logger.Debug("生成请求提示词预览", "prompt_preview", utils.Preview(instruction.Prompt, 100))

	reqBody := chatRequest{
		Model: c.model,
		Messages: []message{
			{Role: "system", Content: instruction.System},
			{Role: "user", Content: instruction.Prompt},
		},
		MaxTokens:      instruction.MaxTokens,
		Temperature:    c.temperature,
		ResponseFormat: &responseFormat{Type: "json_object"},
	}
	reqJSON, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("序列化请求体失败: %w", err)
	}

	url := c.baseURL + "/v1/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqJSON))
	if err != nil {
		return "", fmt.Errorf("创建HTTP请求失败: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	startTime := time.Now()
	resp, err := c.client.Do(req)
	duration := time.Since(startTime)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		logger.Error("发送生成请求失败", "error", err, "duration_ms", duration.Milliseconds())
		return "", &models.GenerationBackendError{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		return "", &models.GenerationBackendError{StatusCode: resp.StatusCode, Err: fmt.Errorf("读取响应失败: %w", err)}
	}
	logger.Info("生成服务响应", "status_code", resp.StatusCode, "response_size", len(body), "duration_ms", duration.Milliseconds())

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		preview := utils.Preview(string(body), 500)
		logger.Error("生成服务返回错误状态", "status", resp.StatusCode, "response", preview)
		return "", &models.GenerationBackendError{StatusCode: resp.StatusCode, Err: errors.New(preview)}
	}

	var chatResp chatResponse
	if err := json.Unmarshal(body, &chatResp); err != nil {
		return "", &models.GenerationParseError{Tier: instruction.Tier, Raw: utils.Preview(string(body), 500), Err: err}
	}
	if len(chatResp.Choices) == 0 {
		return "", &models.GenerationParseError{Tier: instruction.Tier, Raw: string(body), Err: errors.New("响应中没有内容")}
	}

	choice := chatResp.Choices[0]
	logger.Info("成功获取生成结果",
		"tokens_prompt", chatResp.Usage.PromptTokens,
		"tokens_completion", chatResp.Usage.CompletionTokens,
		"tokens_total", chatResp.Usage.TotalTokens,
		"finish_reason", choice.FinishReason)

	return utils.ExtractJSONFromText(choice.Message.Content), nil
}
