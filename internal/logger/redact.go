package logger

import (
	"context"
	"log/slog"
	"regexp"
	"strings"
)

// Redaction はマスク後の値。
const Redaction = "***"

// FilterDatum はメッセージ中の"field=value"をfield=redactionに置き換える。
// 値はseparatorの直前までとする。
func FilterDatum(fields []string, redaction, message, separator string) string {
	if len(fields) == 0 {
		return message
	}
	return datumPattern(fields, separator).ReplaceAllString(message, "${1}="+escapeReplacement(redaction))
}

func datumPattern(fields []string, separator string) *regexp.Regexp {
	quoted := make([]string, len(fields))
	for i, f := range fields {
		quoted[i] = regexp.QuoteMeta(f)
	}
	value := "[^" + regexp.QuoteMeta(separator) + "]*"
	if separator == "" {
		value = `\S*`
	}
	return regexp.MustCompile(`(` + strings.Join(quoted, "|") + `)=` + value)
}

func escapeReplacement(s string) string {
	return strings.ReplaceAll(s, "$", "$$")
}

// RedactingHandler は指定された属性の値とメッセージ中の値をマスクするslog.Handler。
type RedactingHandler struct {
	handler slog.Handler
	fields  map[string]struct{}
	pattern *regexp.Regexp
}

// NewRedactingHandler はhandlerをラップしたRedactingHandlerを生成する。
func NewRedactingHandler(handler slog.Handler, fields []string) *RedactingHandler {
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		set[f] = struct{}{}
	}
	return &RedactingHandler{
		handler: handler,
		fields:  set,
		pattern: datumPattern(fields, ";"),
	}
}

// Enabled はレベルが有効かを返す。
func (h *RedactingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.handler.Enabled(ctx, level)
}

// Handle はマスク済みのレコードを下位のハンドラーに渡す。
func (h *RedactingHandler) Handle(ctx context.Context, r slog.Record) error {
	msg := h.pattern.ReplaceAllString(r.Message, "${1}="+Redaction)
	redacted := slog.NewRecord(r.Time, r.Level, msg, r.PC)
	r.Attrs(func(a slog.Attr) bool {
		redacted.AddAttrs(h.redact(a))
		return true
	})
	return h.handler.Handle(ctx, redacted)
}

// WithAttrs は属性をマスクしてから下位のハンドラーに追加する。
func (h *RedactingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	redacted := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		redacted[i] = h.redact(a)
	}
	return &RedactingHandler{handler: h.handler.WithAttrs(redacted), fields: h.fields, pattern: h.pattern}
}

// WithGroup はグループ付きのハンドラーを返す。
func (h *RedactingHandler) WithGroup(name string) slog.Handler {
	return &RedactingHandler{handler: h.handler.WithGroup(name), fields: h.fields, pattern: h.pattern}
}

func (h *RedactingHandler) redact(a slog.Attr) slog.Attr {
	if _, ok := h.fields[a.Key]; ok {
		return slog.String(a.Key, Redaction)
	}
	if a.Value.Kind() == slog.KindGroup {
		group := a.Value.Group()
		redacted := make([]any, len(group))
		for i, ga := range group {
			redacted[i] = h.redact(ga)
		}
		return slog.Group(a.Key, redacted...)
	}
	return a
}

var _ slog.Handler = (*RedactingHandler)(nil)
