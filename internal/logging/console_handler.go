package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"
)

const consoleTimeLayout = "2006-01-02 15:04:05.000"

// subject holds the fields promoted out of the key=value tail into the
// line header. The first value seen for each key wins.
type subject struct {
	component string
	videoID   string
	stage     string
}

func (s *subject) claim(key string, v slog.Value) bool {
	var slot *string
	switch key {
	case FieldComponent:
		slot = &s.component
	case FieldVideoID:
		slot = &s.videoID
	case FieldStage:
		slot = &s.stage
	default:
		return false
	}
	if *slot == "" {
		*slot = plainValue(v)
	}
	return true
}

type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) write(p []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.w.Write(p)
	return err
}

// consoleHandler writes one human-oriented line per record:
//
//	2026-01-02 15:04:05.000 WARN acquisition: [dQw4w9WgXcQ · download] msg key=value
//
// Attributes bound with WithAttrs are rendered once and reused.
type consoleHandler struct {
	out    *syncWriter
	level  slog.Leveler
	caller bool
	prefix string
	head   subject
	bound  []byte
}

func newConsoleHandler(w io.Writer, lvl slog.Leveler, caller bool) slog.Handler {
	return &consoleHandler{out: &syncWriter{w: w}, level: lvl, caller: caller}
}

func (h *consoleHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *consoleHandler) Handle(_ context.Context, record slog.Record) error {
	head := h.head
	var tail []byte
	record.Attrs(func(attr slog.Attr) bool {
		tail = appendField(tail, h.prefix, attr, &head)
		return true
	})

	ts := record.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	line := make([]byte, 0, 96+len(h.bound)+len(tail))
	line = ts.In(time.Local).AppendFormat(line, consoleTimeLayout)
	line = append(line, ' ')
	line = append(line, levelLabel(record.Level)...)
	line = append(line, ' ')
	if head.component != "" {
		line = append(line, head.component...)
		line = append(line, ": "...)
	}
	if s := FormatSubject(head.videoID, head.stage); s != "" {
		line = append(line, '[')
		line = append(line, s...)
		line = append(line, "] "...)
	}
	msg := strings.TrimSpace(record.Message)
	if msg == "" {
		msg = "(no message)"
	}
	line = append(line, msg...)
	if h.caller {
		if src := record.Source(); src != nil && src.File != "" {
			line = append(line, " ["...)
			line = append(line, filepath.Base(src.File)...)
			line = append(line, ':')
			line = strconv.AppendInt(line, int64(src.Line), 10)
			line = append(line, ']')
		}
	}
	line = append(line, h.bound...)
	line = append(line, tail...)
	line = append(line, '\n')
	return h.out.write(line)
}

func (h *consoleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	next := *h
	next.bound = append([]byte(nil), h.bound...)
	for _, attr := range attrs {
		next.bound = appendField(next.bound, h.prefix, attr, &next.head)
	}
	return &next
}

func (h *consoleHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	next := *h
	next.prefix = h.prefix + name + "."
	return &next
}

func appendField(dst []byte, prefix string, attr slog.Attr, head *subject) []byte {
	if attr.Equal(slog.Attr{}) {
		return dst
	}
	v := attr.Value.Resolve()
	if v.Kind() == slog.KindGroup {
		inner := prefix
		if attr.Key != "" {
			inner = prefix + attr.Key + "."
		}
		for _, child := range v.Group() {
			dst = appendField(dst, inner, child, head)
		}
		return dst
	}
	key := prefix + attr.Key
	if key == "" {
		return dst
	}
	if head.claim(key, v) {
		return dst
	}
	dst = append(dst, ' ')
	dst = append(dst, key...)
	dst = append(dst, '=')
	return append(dst, renderValue(v)...)
}

func plainValue(v slog.Value) string {
	if v.Kind() == slog.KindString {
		return v.String()
	}
	if err, ok := v.Any().(error); ok && v.Kind() == slog.KindAny {
		return err.Error()
	}
	return renderValue(v)
}

func renderValue(v slog.Value) string {
	switch v.Kind() {
	case slog.KindString:
		return quoted(v.String())
	case slog.KindInt64:
		return strconv.FormatInt(v.Int64(), 10)
	case slog.KindUint64:
		return strconv.FormatUint(v.Uint64(), 10)
	case slog.KindFloat64:
		return strconv.FormatFloat(v.Float64(), 'f', -1, 64)
	case slog.KindBool:
		return strconv.FormatBool(v.Bool())
	case slog.KindDuration:
		return v.Duration().String()
	case slog.KindTime:
		return v.Time().UTC().Format(time.RFC3339)
	}
	if err, ok := v.Any().(error); ok {
		return quoted(err.Error())
	}
	return quoted(fmt.Sprint(v.Any()))
}

func quoted(s string) string {
	if s == "" || strings.ContainsFunc(s, func(r rune) bool { return r <= ' ' || r == '=' || r == '"' }) {
		return strconv.Quote(s)
	}
	return s
}

func levelLabel(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return "ERROR"
	case level >= slog.LevelWarn:
		return "WARN"
	case level >= slog.LevelInfo:
		return "INFO"
	}
	return "DEBUG"
}
