package provider

import (
	"context"
	"strings"
	"time"
)

const defaultCallTimeout = 120 * time.Second

func ensureCtx(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}

// redactHeaders 隐去请求头中的敏感字段，仅用于日志。
func redactHeaders(headers map[string]string) map[string]string {
	out := make(map[string]string, len(headers))
	for k, v := range headers {
		lk := strings.ToLower(k)
		if strings.Contains(lk, "auth") || strings.Contains(lk, "key") || strings.Contains(lk, "token") {
			if len(v) > 4 {
				out[k] = "****" + v[len(v)-4:]
			} else {
				out[k] = "****"
			}
			continue
		}
		out[k] = v
	}
	return out
}

func headerKeyExists(headers map[string]string, key string) bool {
	if len(headers) == 0 {
		return false
	}
	key = strings.ToLower(strings.TrimSpace(key))
	for k := range headers {
		if strings.ToLower(strings.TrimSpace(k)) == key {
			return true
		}
	}
	return false
}
