package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"aurum/internal/logger"
)

type AnthropicClient struct {
	BaseURL      string
	APIKey       string
	Model        string
	Timeout      time.Duration
	ExtraHeaders map[string]string
}

// Call 发起单次推理调用，失败不重试。
func (c *AnthropicClient) Call(ctx context.Context, payload ChatPayload) (string, error) {
	ctx = ensureCtx(ctx)
	url := c.messagesURL()

	bodyBytes := buildAnthropicBodyBytes(c.Model, payload)
	logger.LogLLMPayload(c.Model, string(bodyBytes))

	httpc := &http.Client{Timeout: c.callTimeout()}
	return c.doMessages(ctx, httpc, url, bodyBytes)
}

// callTimeout 不修改共享的 client 实例，并发调用只读字段。
func (c *AnthropicClient) callTimeout() time.Duration {
	if c.Timeout <= 0 {
		return defaultCallTimeout
	}
	return c.Timeout
}

func (c *AnthropicClient) messagesURL() string {
	url := strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	if url == "" {
		url = "https://api.anthropic.com/v1"
	}
	url = strings.TrimSuffix(url, "/messages")
	return url + "/messages"
}

func buildAnthropicBodyBytes(model string, payload ChatPayload) []byte {
	maxTokens := payload.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	temperature := payload.Temperature
	if temperature <= 0 {
		temperature = 0.4
	}
	body := map[string]any{
		"model": model,
		"messages": []map[string]any{{
			"role":    "user",
			"content": payload.User,
		}},
		"temperature": temperature,
		"max_tokens":  maxTokens,
	}
	if strings.TrimSpace(payload.System) != "" {
		body["system"] = payload.System
	}
	b, _ := json.Marshal(body)
	return b
}

func (c *AnthropicClient) doMessages(ctx context.Context, httpc *http.Client, url string, body []byte) (string, error) {
	logger.Debugf("[AI] 请求: POST %s headers=%v", url, redactHeaders(c.headers()))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	for k, v := range c.headers() {
		req.Header.Set(k, v)
	}
	resp, err := httpc.Do(req)
	if err != nil {
		return "", err
	}
	if resp.StatusCode/100 != 2 {
		return "", &ServiceError{Status: resp.StatusCode, Body: readErrorBody(resp)}
	}
	return decodeAnthropicContent(resp)
}

func decodeAnthropicContent(resp *http.Response) (string, error) {
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			logger.Debugf("[AI] response body close failed: %v", cerr)
		}
	}()
	var r struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		return "", err
	}
	if len(r.Content) == 0 {
		return "", fmt.Errorf("empty content")
	}
	var b strings.Builder
	for _, block := range r.Content {
		if block.Type == "text" && block.Text != "" {
			b.WriteString(block.Text)
		}
	}
	out := strings.TrimSpace(b.String())
	if out == "" {
		return "", fmt.Errorf("empty text content")
	}
	return out, nil
}

func (c *AnthropicClient) headers() map[string]string {
	out := map[string]string{"Content-Type": "application/json"}
	if c.APIKey != "" && !headerKeyExists(c.ExtraHeaders, "x-api-key") {
		out["x-api-key"] = c.APIKey
	}
	if !headerKeyExists(c.ExtraHeaders, "anthropic-version") {
		out["anthropic-version"] = "2023-06-01"
	}
	for k, v := range c.ExtraHeaders {
		out[k] = v
	}
	return out
}
