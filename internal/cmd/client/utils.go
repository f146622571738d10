package client

import (
	"encoding/base64"
	"io"
	"unicode/utf8"

	gojson "github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/rzbill/flodq/internal/config"
)

// addStoreFlags registers the flags selecting and addressing the store.
func addStoreFlags(cmd *cobra.Command) {
	f := cmd.PersistentFlags()
	f.String("config", "", "Config file (.yaml, .yml or .json)")
	f.String("backend", "", "Store backend: local|redis|grpc (default from config)")
	f.String("data-dir", "", "Data directory for the local backend")
	f.String("redis", "", "Redis address for the redis backend")
	f.String("grpc", "", "flodq server address for the grpc backend")
	f.StringP("namespace", "n", "", "Namespace (grpc and local backends)")
}

// loadConfig layers defaults, the config file, FLODQ_* variables and flags.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return cfg, err
	}
	config.FromEnv(&cfg)
	if v, _ := cmd.Flags().GetString("backend"); v != "" {
		cfg.Backend = config.Backend(v)
	}
	if v, _ := cmd.Flags().GetString("data-dir"); v != "" {
		cfg.DataDir = v
	}
	if v, _ := cmd.Flags().GetString("redis"); v != "" {
		cfg.Redis.Addr = v
	}
	if v, _ := cmd.Flags().GetString("grpc"); v != "" {
		cfg.GRPC.Addr = v
	}
	if v, _ := cmd.Flags().GetString("namespace"); v != "" {
		cfg.DefaultNamespaceName = v
	}
	return cfg, cfg.Validate()
}

// decodedPayload returns one of payload_json, payload_text or payload_b64.
func decodedPayload(payload []byte) map[string]any {
	out := map[string]any{}
	if len(payload) > 0 && (payload[0] == '{' || payload[0] == '[') {
		var v any
		if gojson.Unmarshal(payload, &v) == nil {
			out["payload_json"] = v
			return out
		}
	}
	if utf8.Valid(payload) {
		out["payload_text"] = string(payload)
		return out
	}
	out["payload_b64"] = base64.StdEncoding.EncodeToString(payload)
	return out
}

func printJSON(w io.Writer, v any) error {
	enc := gojson.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
