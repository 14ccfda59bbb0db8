// Package payload loads configuration trees given on the command line.
package payload

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrNoPayload is returned when neither inline data nor a file was given
var ErrNoPayload = errors.New("no payload given (use --data or --data-file)")

// Load returns the payload from inline JSON/YAML text or from a file.
// Exactly one of inline and file may be set. Files ending in .yaml or .yml
// are read as YAML, everything else as JSON. The result only contains values
// encoding/json can marshal: maps keyed by string, slices and scalars.
func Load(inline, file string) (any, error) {
	switch {
	case inline != "" && file != "":
		return nil, errors.New("--data and --data-file are mutually exclusive")
	case inline != "":
		return Parse([]byte(inline))
	case file != "":
		return LoadFile(file)
	default:
		return nil, ErrNoPayload
	}
}

// LoadFile reads a JSON or YAML payload file; "-" reads stdin
func LoadFile(path string) (any, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("read payload: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return parseYAML(data)
	case ".json":
		return parseJSON(data)
	default:
		return Parse(data)
	}
}

// Parse decodes JSON, falling back to YAML for text that is not JSON
func Parse(data []byte) (any, error) {
	if v, err := parseJSON(data); err == nil {
		return v, nil
	}
	v, err := parseYAML(data)
	if err != nil {
		return nil, fmt.Errorf("payload is neither JSON nor YAML: %w", err)
	}
	return v, nil
}

func parseJSON(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("parse JSON payload: %w", err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("parse JSON payload: trailing data after document")
	}
	return v, nil
}

func parseYAML(data []byte) (any, error) {
	var v any
	if err := yaml.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("parse YAML payload: %w", err)
	}
	if v == nil {
		return nil, ErrNoPayload
	}
	return normalize(v)
}

// normalize converts YAML-specific shapes into JSON-compatible ones
func normalize(v any) (any, error) {
	switch val := v.(type) {
	case map[string]any:
		for k, item := range val {
			n, err := normalize(item)
			if err != nil {
				return nil, err
			}
			val[k] = n
		}
		return val, nil
	case map[any]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			n, err := normalize(item)
			if err != nil {
				return nil, err
			}
			out[fmt.Sprint(k)] = n
		}
		return out, nil
	case []any:
		for i, item := range val {
			n, err := normalize(item)
			if err != nil {
				return nil, err
			}
			val[i] = n
		}
		return val, nil
	default:
		return val, nil
	}
}

// Wrap nests data under key, the shape subtree commands patch at the root
func Wrap(key string, data any) map[string]any {
	return map[string]any{key: data}
}
