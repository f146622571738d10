package log

import (
	"fmt"
	"strings"
)

// Config declares how to build a logger.
type Config struct {
	Level   string         `json:"level" yaml:"level"`
	Format  string         `json:"format" yaml:"format"` // text|json
	Outputs []OutputConfig `json:"outputs" yaml:"outputs"`
	// RedactKeys lists field keys whose values are replaced before output.
	RedactKeys []string `json:"redactKeys" yaml:"redactKeys"`
	// SampleInitial/SampleThereafter enable per-message sampling when
	// SampleThereafter > 0.
	SampleInitial    int  `json:"sampleInitial" yaml:"sampleInitial"`
	SampleThereafter int  `json:"sampleThereafter" yaml:"sampleThereafter"`
	IncludeCaller    bool `json:"includeCaller" yaml:"includeCaller"`
}

// OutputConfig selects one output.
type OutputConfig struct {
	Type string `json:"type" yaml:"type"` // console|file|null
	Path string `json:"path" yaml:"path"`
}

// ApplyConfig builds a Logger from cfg. A nil cfg yields an info-level text
// logger on stderr.
func ApplyConfig(cfg *Config) (Logger, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	var formatter Formatter
	switch strings.ToLower(cfg.Format) {
	case "", "text":
		formatter = &TextFormatter{IncludeCaller: cfg.IncludeCaller}
	case "json":
		formatter = &JSONFormatter{IncludeCaller: cfg.IncludeCaller}
	default:
		return nil, fmt.Errorf("log: unknown format %q", cfg.Format)
	}

	opts := []LoggerOption{WithLevel(level), WithFormatter(formatter)}
	for _, oc := range cfg.Outputs {
		switch strings.ToLower(oc.Type) {
		case "", "console", "stderr":
			opts = append(opts, WithOutput(NewConsoleOutput()))
		case "file":
			if oc.Path == "" {
				return nil, fmt.Errorf("log: file output requires a path")
			}
			fo, err := NewFileOutput(oc.Path)
			if err != nil {
				return nil, fmt.Errorf("log: open %s: %w", oc.Path, err)
			}
			opts = append(opts, WithOutput(fo))
		case "null":
			opts = append(opts, WithOutput(NullOutput{}))
		default:
			return nil, fmt.Errorf("log: unknown output type %q", oc.Type)
		}
	}
	if len(cfg.RedactKeys) > 0 {
		opts = append(opts, WithRedaction(cfg.RedactKeys...))
	}
	if cfg.SampleThereafter > 0 {
		opts = append(opts, WithSampling(cfg.SampleInitial, cfg.SampleThereafter))
	}
	return NewLogger(opts...), nil
}
