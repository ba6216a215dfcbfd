package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"aurum/internal/logger"
)

type OpenAIChatClient struct {
	BaseURL      string
	APIKey       string
	Model        string
	Timeout      time.Duration
	ExtraHeaders map[string]string
}

// Call 发起单次推理调用。失败不重试：各阶段自带兜底，重复请求只会拖慢取消。
func (c *OpenAIChatClient) Call(ctx context.Context, payload ChatPayload) (string, error) {
	ctx = ensureCtx(ctx)
	url := c.completionsURL()

	bodyBytes := buildOpenAIBodyBytes(c.Model, payload)
	logger.LogLLMPayload(c.Model, string(bodyBytes))

	httpc := &http.Client{Timeout: c.callTimeout()}
	return c.doCompletions(ctx, httpc, url, bodyBytes)
}

// callTimeout 不修改共享的 client 实例，并发调用只读字段。
func (c *OpenAIChatClient) callTimeout() time.Duration {
	if c.Timeout <= 0 {
		return defaultCallTimeout
	}
	return c.Timeout
}

func (c *OpenAIChatClient) completionsURL() string {
	url := strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	if url == "" {
		url = "https://api.openai.com/v1"
	}
	url = strings.TrimSuffix(url, "/chat/completions")
	return url + "/chat/completions"
}

func buildOpenAIBodyBytes(model string, payload ChatPayload) []byte {
	msgs := make([]map[string]any, 0, 2)
	if strings.TrimSpace(payload.System) != "" {
		msgs = append(msgs, map[string]any{"role": "system", "content": payload.System})
	}
	msgs = append(msgs, map[string]any{"role": "user", "content": payload.User})
	temperature := payload.Temperature
	if temperature <= 0 {
		temperature = 0.4
	}
	body := map[string]any{
		"model":       model,
		"messages":    msgs,
		"temperature": temperature,
	}
	if payload.MaxTokens > 0 {
		body["max_tokens"] = payload.MaxTokens
	}
	b, _ := json.Marshal(body)
	return b
}

func (c *OpenAIChatClient) doCompletions(ctx context.Context, httpc *http.Client, url string, body []byte) (string, error) {
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
	return decodeOpenAIContent(resp)
}

func decodeOpenAIContent(resp *http.Response) (string, error) {
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			logger.Debugf("[AI] response body close failed: %v", cerr)
		}
	}()
	var r struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		return "", err
	}
	if len(r.Choices) == 0 {
		return "", fmt.Errorf("empty choices")
	}
	out := strings.TrimSpace(r.Choices[0].Message.Content)
	if out == "" {
		return "", fmt.Errorf("empty text content")
	}
	return out, nil
}

// readErrorBody 读取上游错误原文；优先取 error.message，退回整段文本。
func readErrorBody(resp *http.Response) string {
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			logger.Debugf("[AI] response body close failed: %v", cerr)
		}
	}()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 8192))
	if err != nil || len(raw) == 0 {
		return resp.Status
	}
	var eresp struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(raw, &eresp); err == nil && strings.TrimSpace(eresp.Error.Message) != "" {
		return eresp.Error.Message
	}
	return strings.TrimSpace(string(raw))
}

func (c *OpenAIChatClient) headers() map[string]string {
	out := map[string]string{"Content-Type": "application/json"}
	if c.APIKey != "" && !headerKeyExists(c.ExtraHeaders, "Authorization") {
		out["Authorization"] = "Bearer " + c.APIKey
	}
	for k, v := range c.ExtraHeaders {
		out[k] = v
	}
	return out
}
