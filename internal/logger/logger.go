package logger

import (
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// 中文说明：
// 统一的进程级日志封装；zerolog 作为底层输出，保留 Infof/Warnf 等旧调用习惯。

var (
	log           = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Timestamp().Logger()
	llmPayloadOn  atomic.Bool
	llmPayloadMax = 4000
)

// Setup 根据配置设置日志级别与 LLM 请求体记录开关。
func Setup(level string, logLLMPayload bool) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		log = log.Level(zerolog.DebugLevel)
	case "warn":
		log = log.Level(zerolog.WarnLevel)
	case "error":
		log = log.Level(zerolog.ErrorLevel)
	default:
		log = log.Level(zerolog.InfoLevel)
	}
	llmPayloadOn.Store(logLLMPayload)
}

func Debugf(format string, args ...any) { log.Debug().Msgf(format, args...) }
func Infof(format string, args ...any)  { log.Info().Msgf(format, args...) }
func Warnf(format string, args ...any)  { log.Warn().Msgf(format, args...) }
func Errorf(format string, args ...any) { log.Error().Msgf(format, args...) }

// LogLLMPayload 在开关打开时记录发往模型的请求体（超长截断）。
func LogLLMPayload(model, payload string) {
	if !llmPayloadOn.Load() {
		return
	}
	if len(payload) > llmPayloadMax {
		payload = payload[:llmPayloadMax] + "...(truncated)"
	}
	log.Debug().Str("model", model).Msg("[AI] payload: " + payload)
}
