package config

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const (
	maxConfigFileSize = 1024 * 1024 // 1MB

	// EnvPrefix prefixes every environment override.
	EnvPrefix = "UPCMD_"
)

// sections are the nested config blocks. Any other key is top-level and
// keeps its underscores.
var sections = map[string]bool{
	"exec":      true,
	"sanitize":  true,
	"logging":   true,
	"telemetry": true,
}

// listKeys are split on newlines when set from the environment, so regular
// expressions may contain commas.
var listKeys = map[string]bool{
	"allowed_upgrade_commands": true,
	"sanitize.secrets":         true,
}

// LoadWithFile loads configuration from a YAML file, then overrides it with
// environment variables.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (UPCMD_ALLOWED_UPGRADE_COMMANDS, UPCMD_EXEC_TIMEOUT, etc.)
//  2. YAML config file
//  3. Defaults
//
// An empty configPath skips the file. A missing file is an error when a
// path is given.
//
// # Security Considerations
//
// The file may carry known secrets, so group- or world-writable files are
// rejected, as are files larger than 1MB.
//
// # Environment Variable Mapping
//
// The prefix is stripped and the rest lowercased. A leading section name
// becomes a dotted path; other keys are top-level:
//
//	UPCMD_EXEC_TIMEOUT                    -> exec.timeout
//	UPCMD_SANITIZE_ALLOWLIST_PATH         -> sanitize.allowlist_path
//	UPCMD_ALLOWED_UPGRADE_COMMANDS        -> allowed_upgrade_commands
//	UPCMD_ALLOW_UPGRADE_COMMAND_TEMPLATING -> allow_upgrade_command_templating
func LoadWithFile(configPath string) (*Config, error) {
	k := koanf.New(".")

	if configPath != "" {
		content, err := readConfigFile(configPath)
		if err != nil {
			return nil, err
		}
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.ProviderWithValue(EnvPrefix, ".", envTransform), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := Default()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// envTransform maps UPCMD_SECTION_FIELD_NAME to section.field_name.
func envTransform(key, value string) (string, interface{}) {
	lower := strings.ToLower(strings.TrimPrefix(key, EnvPrefix))
	path := lower
	if parts := strings.SplitN(lower, "_", 2); len(parts) == 2 && sections[parts[0]] {
		path = parts[0] + "." + parts[1]
	}
	if listKeys[path] {
		return path, splitLines(value)
	}
	return path, value
}

func splitLines(s string) []string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return out
}

// readConfigFile opens the file once and validates it through the open
// descriptor.
func readConfigFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if err := validateConfigFileProperties(info); err != nil {
		return nil, fmt.Errorf("config file validation failed: %w", err)
	}

	content, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return content, nil
}

// validateConfigFileProperties checks file type, permissions and size.
func validateConfigFileProperties(info os.FileInfo) error {
	if !info.Mode().IsRegular() {
		return fmt.Errorf("config path is not a regular file")
	}
	if runtime.GOOS != "windows" {
		if perm := info.Mode().Perm(); perm&0o022 != 0 {
			return fmt.Errorf("insecure config file permissions: %v (must not be group or world writable)", perm)
		}
	}
	if info.Size() > maxConfigFileSize {
		return fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxConfigFileSize)
	}
	return nil
}
