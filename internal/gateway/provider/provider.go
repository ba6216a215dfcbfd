package provider

import (
	"context"
	"fmt"
	"strings"
	"time"

	"aurum/internal/config"
	"aurum/internal/logger"
)

// 中文说明：
// 配置驱动的 Provider 工厂：按条目构造 openai 兼容或 anthropic 客户端，
// 未显式提供 id 时自动生成稳定 ID，避免日志为空。

// ChatPayload 是一次推理调用的输入。
type ChatPayload struct {
	System      string
	User        string
	Temperature float64
	MaxTokens   int
}

// ModelProvider 抽象推理服务；编排器只依赖该接口。
type ModelProvider interface {
	ID() string
	Call(ctx context.Context, payload ChatPayload) (string, error)
}

// ServiceError 表示推理服务返回非成功响应；Body 保留上游错误原文。
type ServiceError struct {
	Status int
	Body   string
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("reasoning service error: status=%d: %s", e.Status, e.Body)
}

// BuildProvidersFromConfig 根据配置的模型条目构造 Provider 列表。
func BuildProvidersFromConfig(models []config.ModelConfig, timeout time.Duration) []ModelProvider {
	out := make([]ModelProvider, 0, len(models))
	for _, m := range models {
		if !m.Enabled {
			continue
		}
		id := strings.TrimSpace(m.ID)
		if id == "" {
			base := strings.TrimSpace(m.Provider)
			if base == "" {
				base = "provider"
			}
			if model := strings.TrimSpace(m.Model); model != "" {
				id = fmt.Sprintf("%s:%s", base, model)
			} else {
				id = base
			}
			logger.Warnf("未配置 ai.models.id，已为 %q 生成 ID: %s", m.Provider, id)
		}
		switch strings.ToLower(strings.TrimSpace(m.Provider)) {
		case "anthropic":
			client := &AnthropicClient{
				BaseURL:      m.APIURL,
				APIKey:       m.APIKey,
				Model:        m.Model,
				Timeout:      timeout,
				ExtraHeaders: m.Headers,
			}
			out = append(out, &modelProvider{id: id, client: client})
		default:
			client := &OpenAIChatClient{
				BaseURL:      m.APIURL,
				APIKey:       m.APIKey,
				Model:        m.Model,
				Timeout:      timeout,
				ExtraHeaders: m.Headers,
			}
			out = append(out, &modelProvider{id: id, client: client})
		}
	}
	return out
}

// Primary 返回第一个启用的 Provider；一次流水线只绑定一个推理服务。
func Primary(providers []ModelProvider) (ModelProvider, error) {
	if len(providers) == 0 {
		return nil, fmt.Errorf("no enabled model provider configured")
	}
	return providers[0], nil
}

type chatClient interface {
	Call(ctx context.Context, payload ChatPayload) (string, error)
}

type modelProvider struct {
	id     string
	client chatClient
}

func (p *modelProvider) ID() string { return p.id }
func (p *modelProvider) Call(ctx context.Context, payload ChatPayload) (string, error) {
	return p.client.Call(ctx, payload)
}
