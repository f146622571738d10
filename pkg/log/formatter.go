package log

import (
	"bytes"
	"fmt"
	"sort"
	"time"

	gojson "github.com/goccy/go-json"
)

// JSONFormatter renders one JSON object per line.
type JSONFormatter struct {
	// TimestampFormat defaults to time.RFC3339Nano.
	TimestampFormat string
	// IncludeCaller adds a "caller" key when the entry has one.
	IncludeCaller bool
}

// Format implements Formatter.
func (f *JSONFormatter) Format(entry *Entry) ([]byte, error) {
	tsFormat := f.TimestampFormat
	if tsFormat == "" {
		tsFormat = time.RFC3339Nano
	}
	out := make(map[string]interface{}, len(entry.Fields)+4)
	for k, v := range entry.Fields {
		if err, ok := v.(error); ok {
			v = err.Error()
		}
		out[k] = v
	}
	out["ts"] = entry.Timestamp.Format(tsFormat)
	out["level"] = entry.Level.String()
	out["msg"] = entry.Message
	if f.IncludeCaller && entry.Caller != "" {
		out["caller"] = entry.Caller
	}
	if entry.Error != nil {
		out[errorKey] = entry.Error.Error()
	}
	b, err := gojson.Marshal(out)
	if err != nil {
		return nil, err
	}
	return append(b, '\n'), nil
}

// TextFormatter renders "ts LEVEL msg k=v ..." with keys sorted.
type TextFormatter struct {
	TimestampFormat string
	IncludeCaller   bool
}

// Format implements Formatter.
func (f *TextFormatter) Format(entry *Entry) ([]byte, error) {
	tsFormat := f.TimestampFormat
	if tsFormat == "" {
		tsFormat = "2006-01-02T15:04:05.000Z07:00"
	}
	var buf bytes.Buffer
	buf.WriteString(entry.Timestamp.Format(tsFormat))
	buf.WriteByte(' ')
	fmt.Fprintf(&buf, "%-5s", entry.Level.String())
	buf.WriteByte(' ')
	buf.WriteString(entry.Message)

	keys := make([]string, 0, len(entry.Fields))
	for k := range entry.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		buf.WriteByte(' ')
		buf.WriteString(k)
		buf.WriteByte('=')
		writeTextValue(&buf, entry.Fields[k])
	}
	if entry.Error != nil {
		buf.WriteString(" error=")
		writeTextValue(&buf, entry.Error.Error())
	}
	if f.IncludeCaller && entry.Caller != "" {
		buf.WriteString(" caller=")
		buf.WriteString(entry.Caller)
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

func writeTextValue(buf *bytes.Buffer, v interface{}) {
	var s string
	switch t := v.(type) {
	case nil:
		s = ""
	case string:
		s = t
	case error:
		s = t.Error()
	case fmt.Stringer:
		s = t.String()
	default:
		s = fmt.Sprint(t)
	}
	if needsQuoting(s) {
		fmt.Fprintf(buf, "%q", s)
		return
	}
	buf.WriteString(s)
}

func needsQuoting(s string) bool {
	if s == "" {
		return true
	}
	for _, r := range s {
		if r <= ' ' || r == '=' || r == '"' {
			return true
		}
	}
	return false
}
