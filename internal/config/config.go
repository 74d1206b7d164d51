// Copyright (c) 2026 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

package config

import (
	_ "embed"
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"strings"

	"github.com/apex/log"
	"gopkg.in/yaml.v3"
)

//go:embed default_config.yml
var defaultTemplate []byte

// Type is the in-memory representation of the loaded configuration.
//
// Fields:
//   - Source: absolute path of the YAML file loaded.
//   - Namespace: optional dot-prefixed keyspace used to prefer namespaced
//     lookups (e.g. "build_ami.iam_role").
//   - Data: raw key/value tree unmarshaled from YAML.
type Type struct {
	Source    string
	Namespace string
	Data      map[string]interface{}
}

// Config holds the global, lazily-initialized configuration instance.
var Config Type

// init attempts to load configuration at process start. Errors are ignored so
// the application can still run without a config file; callers of getters will
// trigger a lazy reload when needed.
func init() {
	_, _ = Load()
}

// GetInt returns the integer value for the given dotted key path. A single
// defaultValue may be provided and is returned when the key is missing.
func GetInt(key string, defaultValue ...int) (int, error) {
	return getOr(key, defaultValue, func(val any) (int, error) {
		// YAML numbers may decode as int, int64, or float64.
		switch v := val.(type) {
		case int:
			return v, nil
		case int64:
			return int(v), nil
		case float64:
			return int(v), nil
		default:
			return 0, errors.New("value is not an int")
		}
	})
}

// GetString returns the string value for the given dotted key path. If the key
// is not found and a single defaultValue is provided, the default is returned.
// Returns an error if the value exists but is not a string.
func GetString(key string, defaultValue ...string) (string, error) {
	return getOr(key, defaultValue, func(val any) (string, error) {
		s, ok := val.(string)
		if !ok {
			return "", errors.New("value is not a string")
		}
		return s, nil
	})
}

// GetStringSlice returns the string slice value for the given dotted key path,
// e.g. build_ami.tags. Returns an error if the value exists but is not a list
// of strings.
func GetStringSlice(key string, defaultValue ...[]string) ([]string, error) {
	return getOr(key, defaultValue, func(val any) ([]string, error) {
		switch v := val.(type) {
		case []string:
			return v, nil
		case []any:
			result := make([]string, len(v))
			for i, item := range v {
				s, ok := item.(string)
				if !ok {
					return nil, errors.New("slice element is not a string")
				}
				result[i] = s
			}
			return result, nil
		default:
			return nil, errors.New("value is not a slice")
		}
	})
}

// GetStringMap returns a string-keyed map of strings for the given dotted key
// path, e.g. build_ami.default_builder_instance_type. Non-string leaf values
// are formatted with %v.
func GetStringMap(key string, defaultValue ...map[string]string) (map[string]string, error) {
	return getOr(key, defaultValue, func(val any) (map[string]string, error) {
		m, ok := val.(map[string]any)
		if !ok {
			return nil, errors.New("value is not a map")
		}
		result := make(map[string]string, len(m))
		for k, v := range m {
			if s, ok := v.(string); ok {
				result[k] = s
			} else {
				result[k] = fmt.Sprintf("%v", v)
			}
		}
		return result, nil
	})
}

// GetMap returns the raw map at the given dotted key path, e.g.
// build_ami.cloud_config_data. The map is a copy of the top level only.
func GetMap(key string, defaultValue ...map[string]any) (map[string]any, error) {
	return getOr(key, defaultValue, func(val any) (map[string]any, error) {
		switch m := val.(type) {
		case map[string]any:
			return maps.Clone(m), nil
		case nil:
			return map[string]any{}, nil
		default:
			return nil, errors.New("value is not a map")
		}
	})
}

// getOr resolves key, loading the file on first use, and converts the value.
// A missing key yields the single default when one is given.
func getOr[T any](key string, defaultValue []T, convert func(any) (T, error)) (T, error) {
	if len(Config.Data) == 0 {
		_, _ = Load()
	}

	val, err := Config.get(key)
	if err != nil {
		if len(defaultValue) == 1 {
			return defaultValue[0], nil
		}
		var zero T
		return zero, err
	}
	return convert(val)
}

// Load reads the YAML configuration file and populates the global Config.
// Returns the loaded Type or an error if the file could not be located or
// parsed.
func Load() (Type, error) {
	path, err := getConfigFile()
	if err != nil {
		return Type{}, err
	}

	bytes, err := os.ReadFile(path)
	if err != nil {
		return Type{}, err
	}

	var data map[string]interface{}
	if err := yaml.Unmarshal(bytes, &data); err != nil {
		return Type{}, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	Config = Type{
		Source: path,
		Data:   data}

	return Config, nil
}

// EnsureDefault writes the bundled default configuration to Path() when no
// file exists there yet. It reports whether a file was written.
func EnsureDefault() (bool, error) {
	path, err := Path()
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(path); err == nil {
		return false, nil
	} else if !os.IsNotExist(err) {
		return false, err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil { //nolint:mnd
		return false, fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, defaultTemplate, 0o644); err != nil { //nolint:mnd
		return false, fmt.Errorf("failed to write default config: %w", err)
	}
	log.Infof("Wrote new config file %s with default values", path)
	return true, nil
}

// Path returns the location of the config file whether or not it exists. If
// AEGEA_CFG_FILE is set it wins, otherwise the file is aegea/aegea.yaml in
// os.UserConfigDir.
func Path() (string, error) {
	if cfgPath := os.Getenv("AEGEA_CFG_FILE"); cfgPath != "" {
		return cfgPath, nil
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "aegea", "aegea.yaml"), nil
}

// ErrorLogPath returns the path of error.log, which lives next to the config
// file.
func ErrorLogPath() (string, error) {
	path, err := Path()
	if err != nil {
		return "", err
	}
	return filepath.Join(filepath.Dir(path), "error.log"), nil
}

// DefaultTemplate returns the bundled default configuration document.
func DefaultTemplate() []byte {
	return append([]byte(nil), defaultTemplate...)
}

// get traverses the configuration tree using a dotted key path (e.g.
// "build_ami.iam_role"). If Namespace is set, a namespaced candidate key is
// attempted first (Namespace + "." + kspec), then the unnamespaced key.
// Returns the raw value (any) if found.
func (cfg *Type) get(kspec string) (any, error) {
	candidateKeys := []string{kspec}
	if cfg.Namespace != "" {
		candidateKeys = []string{cfg.Namespace + "." + kspec, kspec}
	}

	for _, key := range candidateKeys {
		keys := strings.Split(key, ".")
		var current interface{} = cfg.Data

		success := true
		for _, key := range keys {
			m, ok := current.(map[string]interface{})
			if !ok {
				success = false
				break
			}
			current, ok = m[key]
			if !ok {
				success = false
				break
			}
		}

		if success {
			return current, nil
		}
	}

	return nil, fmt.Errorf("no valid path found among: %v", candidateKeys)
}

// getConfigFile returns the path from Path() if a regular file exists there.
func getConfigFile() (string, error) {
	path, err := Path()
	if err != nil {
		return "", err
	}

	fileInfo, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("config file not found at %s", path)
	}
	if fileInfo.IsDir() {
		return "", fmt.Errorf("config path points to a directory: %s", path)
	}
	log.Debugf("using config file: %s", path)
	return path, nil
}
