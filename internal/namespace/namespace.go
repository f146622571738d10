package namespace

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"time"

	gojson "github.com/goccy/go-json"

	"github.com/cockroachdb/pebble"

	pebblestore "github.com/rzbill/flodq/internal/storage/pebble"
)

// ErrInvalidName rejects a namespace name that does not match the
// configured pattern.
var ErrInvalidName = errors.New("namespace: invalid name")

// Meta holds namespace metadata and limits applied to its deques.
type Meta struct {
	Name              string `json:"name"`
	CreatedAtMs       int64  `json:"createdAtMs"`
	QueueNameMaxBytes int    `json:"queueNameMaxBytes"`
	PayloadMaxBytes   int    `json:"payloadMaxBytes"`
}

// Defaults returns the limits applied to new namespaces.
func Defaults() Meta {
	return Meta{
		QueueNameMaxBytes: 256,
		PayloadMaxBytes:   1 << 20, // 1 MiB
	}
}

var nsMetaPrefix = []byte("nsmeta/")

func nsMetaKey(ns string) []byte {
	k := make([]byte, 0, len(nsMetaPrefix)+len(ns))
	k = append(k, nsMetaPrefix...)
	k = append(k, ns...)
	return k
}

// Validator checks names against an anchored pattern.
type Validator struct{ re *regexp.Regexp }

// NewValidator compiles pattern, anchoring it at both ends.
func NewValidator(pattern string) (*Validator, error) {
	re, err := regexp.Compile("^(?:" + pattern + ")$")
	if err != nil {
		return nil, fmt.Errorf("namespace: bad name pattern: %w", err)
	}
	return &Validator{re: re}, nil
}

// Validate returns ErrInvalidName if name does not match.
func (v *Validator) Validate(name string) error {
	if v == nil || v.re.MatchString(name) {
		return nil
	}
	return fmt.Errorf("%w: %q", ErrInvalidName, name)
}

// EnsureNamespace creates a namespace meta record if absent, returning the
// effective meta. defaults fills in a new record; an existing one wins.
func EnsureNamespace(db *pebblestore.DB, name string, defaults Meta) (Meta, error) {
	key := nsMetaKey(name)
	if b, err := db.Get(key); err == nil && len(b) > 0 {
		var m Meta
		if err := gojson.Unmarshal(b, &m); err == nil {
			return m, nil
		}
		// corrupted record is rewritten below
	} else if err != nil && !pebblestore.IsNotFound(err) {
		return Meta{}, err
	}
	m := defaults
	m.Name = name
	m.CreatedAtMs = time.Now().UnixMilli()
	bytes, err := gojson.Marshal(m)
	if err != nil {
		return Meta{}, err
	}
	if err := db.Set(key, bytes); err != nil {
		return Meta{}, err
	}
	return m, nil
}

// List returns every namespace record, sorted by name.
func List(db *pebblestore.DB) ([]Meta, error) {
	hi := append(append([]byte{}, nsMetaPrefix...), 0xFF)
	iter, err := db.NewIter(&pebble.IterOptions{LowerBound: nsMetaPrefix, UpperBound: hi})
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	var out []Meta
	for ok := iter.First(); ok; ok = iter.Next() {
		var m Meta
		if err := gojson.Unmarshal(iter.Value(), &m); err != nil {
			continue
		}
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, iter.Error()
}
