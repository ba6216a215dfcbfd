package research

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

// 中文说明：
// 搜索服务是可降级依赖：任何失败都返回空结果加错误标记，绝不让单次搜索
// 拖垮整条流水线。

type Config struct {
	APIURL     string
	APIKey     string
	MaxResults int
	Depth      string
	Timeout    time.Duration
}

func (c *Config) withDefaults() Config {
	out := *c
	if strings.TrimSpace(out.APIURL) == "" {
		out.APIURL = "https://api.tavily.com/search"
	}
	if out.MaxResults <= 0 {
		out.MaxResults = 5
	}
	if strings.TrimSpace(out.Depth) == "" {
		out.Depth = "basic"
	}
	if out.Timeout <= 0 {
		out.Timeout = 20 * time.Second
	}
	return out
}

// Snippet 是裁剪后的单条搜索结果，只保留后续阶段需要的字段。
type Snippet struct {
	Title         string `json:"title"`
	URL           string `json:"url"`
	Content       string `json:"content"`
	PublishedDate string `json:"published_date,omitempty"`
}

// Result 携带搜索结果；Err 非空表示本次搜索降级为空结果。
type Result struct {
	Snippets []Snippet
	Err      string
}

type Client struct {
	cfg   Config
	httpc *http.Client
}

func NewClient(cfg Config) *Client {
	final := cfg.withDefaults()
	return &Client{
		cfg:   final,
		httpc: &http.Client{Timeout: final.Timeout},
	}
}

// Search 执行单条查询；失败时返回空列表与错误标记，从不返回 error。
func (c *Client) Search(ctx context.Context, query string) Result {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := ctx.Err(); err != nil {
		return Result{Err: err.Error()}
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return Result{Err: "empty query"}
	}

	body, _ := json.Marshal(map[string]any{
		"api_key":      c.cfg.APIKey,
		"query":        query,
		"search_depth": c.cfg.Depth,
		"max_results":  c.cfg.MaxResults,
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.APIURL, bytes.NewReader(body))
	if err != nil {
		return Result{Err: err.Error()}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		logger.Warnf("[research] 查询失败 %q: %v", query, err)
		return Result{Err: err.Error()}
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		logger.Warnf("[research] 查询 %q 返回 %s", query, resp.Status)
		return Result{Err: fmt.Sprintf("search status %d", resp.StatusCode)}
	}

	var r struct {
		Results []struct {
			Title         string `json:"title"`
			URL           string `json:"url"`
			Content       string `json:"content"`
			PublishedDate string `json:"published_date"`
		} `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		return Result{Err: err.Error()}
	}
	out := make([]Snippet, 0, len(r.Results))
	for _, item := range r.Results {
		out = append(out, Snippet{
			Title:         item.Title,
			URL:           item.URL,
			Content:       item.Content,
			PublishedDate: item.PublishedDate,
		})
	}
	return Result{Snippets: out}
}
