package log

import (
	"context"
	"log/slog"
	"runtime"
	"strconv"
	"sync"
)

// slogLevelFatal sits above slog.LevelError so Fatal entries keep their level
// through the bridge.
const slogLevelFatal = slog.Level(12)

// bridgeHandler is a slog.Handler that routes records through the logger's
// formatter and outputs.
type bridgeHandler struct {
	core       *core
	attrs      []slog.Attr
	group      string
	redactions map[string]struct{}
	sampler    *sampler
}

func newBridgeHandler(c *core) *bridgeHandler {
	return &bridgeHandler{core: c}
}

// Enabled gates by the shared core level.
func (h *bridgeHandler) Enabled(_ context.Context, level slog.Level) bool {
	return Level(h.core.level.Load()) <= fromSlogLevel(level)
}

// Handle converts the slog record to an Entry and writes it to every output.
func (h *bridgeHandler) Handle(_ context.Context, r slog.Record) error {
	if h.sampler != nil && !h.sampler.allow(r.Level, r.Message) {
		return nil
	}

	fields := make(Fields, len(h.attrs)+r.NumAttrs())
	put := func(a slog.Attr) bool {
		key := a.Key
		if h.group != "" {
			key = h.group + "." + key
		}
		if _, ok := h.redactions[a.Key]; ok {
			fields[key] = "[REDACTED]"
			return true
		}
		fields[key] = a.Value.Any()
		return true
	}
	for _, a := range h.attrs {
		put(a)
	}
	r.Attrs(put)

	caller := ""
	if r.PC != 0 {
		frames := runtime.CallersFrames([]uintptr{r.PC})
		f, _ := frames.Next()
		caller = f.File + ":" + strconv.Itoa(f.Line)
	} else if _, file, line, ok := runtime.Caller(5); ok {
		caller = file + ":" + strconv.Itoa(line)
	}

	entry := &Entry{
		Level:     fromSlogLevel(r.Level),
		Message:   r.Message,
		Fields:    fields,
		Timestamp: r.Time,
		Caller:    caller,
	}

	formatted, err := h.core.formatter.Format(entry)
	if err != nil {
		return err
	}
	for _, out := range h.core.outputs {
		_ = out.Write(entry, formatted)
	}
	return nil
}

// WithAttrs returns a copy of the handler with additional base attributes.
func (h *bridgeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	nh := *h
	if len(attrs) > 0 {
		nh.attrs = append(append([]slog.Attr{}, h.attrs...), attrs...)
	}
	return &nh
}

// WithGroup prefixes subsequent keys with the group name.
func (h *bridgeHandler) WithGroup(name string) slog.Handler {
	nh := *h
	if nh.group != "" {
		nh.group = nh.group + "." + name
	} else {
		nh.group = name
	}
	return &nh
}

func (h *bridgeHandler) withRedactions(keys []string) *bridgeHandler {
	if len(keys) == 0 {
		return h
	}
	nh := *h
	nh.redactions = make(map[string]struct{}, len(keys))
	for _, k := range keys {
		nh.redactions[k] = struct{}{}
	}
	return &nh
}

func (h *bridgeHandler) withSampler(initial, thereafter int) *bridgeHandler {
	if thereafter <= 0 {
		return h
	}
	nh := *h
	nh.sampler = newSampler(initial, thereafter)
	return &nh
}

// sampler implements simple per-message sampling.
type sampler struct {
	mu         sync.Mutex
	initial    uint64
	thereafter uint64
	counts     map[string]uint64
}

func newSampler(initial, thereafter int) *sampler {
	if initial < 0 {
		initial = 0
	}
	if thereafter <= 0 {
		thereafter = 1
	}
	return &sampler{
		initial:    uint64(initial),
		thereafter: uint64(thereafter),
		counts:     make(map[string]uint64),
	}
}

func (s *sampler) allow(level slog.Level, message string) bool {
	key := strconv.Itoa(int(level)) + ":" + message
	s.mu.Lock()
	n := s.counts[key]
	s.counts[key] = n + 1
	s.mu.Unlock()
	if n < s.initial {
		return true
	}
	return (n-s.initial)%s.thereafter == 0
}

func toSlogLevel(level Level) slog.Level {
	switch level {
	case DebugLevel:
		return slog.LevelDebug
	case InfoLevel:
		return slog.LevelInfo
	case WarnLevel:
		return slog.LevelWarn
	case ErrorLevel:
		return slog.LevelError
	case FatalLevel:
		return slogLevelFatal
	default:
		return slog.LevelInfo
	}
}

func fromSlogLevel(level slog.Level) Level {
	switch {
	case level < slog.LevelInfo:
		return DebugLevel
	case level < slog.LevelWarn:
		return InfoLevel
	case level < slog.LevelError:
		return WarnLevel
	case level < slogLevelFatal:
		return ErrorLevel
	default:
		return FatalLevel
	}
}

func attrsFromMap(m Fields) []slog.Attr {
	if len(m) == 0 {
		return nil
	}
	attrs := make([]slog.Attr, 0, len(m))
	for k, v := range m {
		attrs = append(attrs, slog.Any(k, v))
	}
	return attrs
}

func attrsFromFieldSlice(fields []Field) []slog.Attr {
	if len(fields) == 0 {
		return nil
	}
	attrs := make([]slog.Attr, 0, len(fields))
	for _, f := range fields {
		attrs = append(attrs, slog.Any(f.Key, f.Value))
	}
	return attrs
}

// argsToAttrs converts key-value variadic args (k1, v1, k2, v2, ...) to slog.Attr.
func argsToAttrs(args []interface{}) []slog.Attr {
	if len(args) == 0 {
		return nil
	}
	attrs := make([]slog.Attr, 0, len(args)/2+1)
	for i := 0; i < len(args); i += 2 {
		if i+1 < len(args) {
			if key, ok := args[i].(string); ok {
				attrs = append(attrs, slog.Any(key, args[i+1]))
			} else {
				attrs = append(attrs, slog.Any("arg"+strconv.Itoa(i), args[i+1]))
			}
		} else {
			attrs = append(attrs, slog.Any("arg"+strconv.Itoa(i), args[i]))
		}
	}
	return attrs
}

func attrsToAny(attrs []slog.Attr) []any {
	if len(attrs) == 0 {
		return nil
	}
	out := make([]any, len(attrs))
	for i := range attrs {
		out[i] = attrs[i]
	}
	return out
}
