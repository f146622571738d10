package log

import "time"

const errorKey = "error"

// Field is a single structured key/value pair.
type Field struct {
	Key   string
	Value interface{}
}

// F builds a Field from an arbitrary value.
func F(key string, value interface{}) Field { return Field{Key: key, Value: value} }

func Str(key, value string) Field { return Field{Key: key, Value: value} }

func Int(key string, value int) Field { return Field{Key: key, Value: value} }

func Int64(key string, value int64) Field { return Field{Key: key, Value: value} }

func Bool(key string, value bool) Field { return Field{Key: key, Value: value} }

// Dur renders durations in their String form so text output stays readable.
func Dur(key string, value time.Duration) Field { return Field{Key: key, Value: value.String()} }

// Err attaches an error under the "error" key. A nil error yields an empty value.
func Err(err error) Field {
	if err == nil {
		return Field{Key: errorKey, Value: nil}
	}
	return Field{Key: errorKey, Value: err.Error()}
}

// Component tags a log line with the emitting component.
func Component(name string) Field { return Field{Key: ComponentKey, Value: name} }

// Queue tags a log line with a queue name.
func Queue(name string) Field { return Field{Key: QueueKey, Value: name} }
