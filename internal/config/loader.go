package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// EnvConfigPath names the comma-separated list of config files to layer.
const EnvConfigPath = "CPG_CONFIG_PATH"

const legacyConfigPath = "./config.yaml"

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// ResolvePaths picks the config files to load.
// Priority order: explicit paths, $CPG_CONFIG_PATH, ./config.yaml.
func ResolvePaths(explicit []string) ([]string, error) {
	if len(explicit) > 0 {
		return explicit, nil
	}

	if env := os.Getenv(EnvConfigPath); strings.TrimSpace(env) != "" {
		var paths []string
		for _, p := range strings.Split(env, ",") {
			if p = strings.TrimSpace(p); p != "" {
				paths = append(paths, p)
			}
		}
		if len(paths) > 0 {
			return paths, nil
		}
	}

	if _, err := os.Stat(legacyConfigPath); err == nil {
		return []string{legacyConfigPath}, nil
	}

	return nil, fmt.Errorf("%w: no config found (checked: --config, $%s, %s)",
		ErrConfiguration, EnvConfigPath, legacyConfigPath)
}

// Load reads and layers configuration files. Later files override earlier ones
// key by key; the result is fully populated with defaults.
func Load(paths ...string) (*Config, error) {
	if len(paths) == 0 {
		return nil, fmt.Errorf("%w: no config files given", ErrConfiguration)
	}

	var merged *yaml.Node
	sources := make([][]byte, 0, len(paths))
	absPaths := make([]string, 0, len(paths))

	for _, p := range paths {
		absPath, err := filepath.Abs(p)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve config path %q: %w", p, err)
		}

		data, err := os.ReadFile(absPath)
		if err != nil {
			return nil, fmt.Errorf("config file not found: %s\n"+
				"Hint: Check the path, $%s, or run with --config", absPath, EnvConfigPath)
		}
		interpolated := []byte(interpolateEnv(string(data)))

		var doc yaml.Node
		if err := yaml.Unmarshal(interpolated, &doc); err != nil {
			return nil, fmt.Errorf("failed to parse YAML in %s: %w", absPath, err)
		}
		root := documentRoot(&doc)
		if root == nil {
			// Empty file contributes nothing.
			absPaths = append(absPaths, absPath)
			sources = append(sources, interpolated)
			continue
		}
		if root.Kind != yaml.MappingNode {
			return nil, fmt.Errorf("%s: top level must be a mapping", absPath)
		}

		if merged == nil {
			merged = root
		} else {
			mergeNodes(merged, root)
		}
		absPaths = append(absPaths, absPath)
		sources = append(sources, interpolated)
	}

	cfg := Defaults()
	if merged != nil {
		if err := merged.Decode(cfg); err != nil {
			return nil, fmt.Errorf("invalid configuration: %w", err)
		}
	}
	cfg.SourceFiles = absPaths
	cfg.Fingerprint = fingerprint(sources)

	return cfg, nil
}

// Parse decodes a single in-memory YAML document on top of the defaults.
func Parse(data []byte) (*Config, error) {
	cfg := Defaults()
	if err := yaml.Unmarshal([]byte(interpolateEnv(string(data))), cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	cfg.Fingerprint = fingerprint([][]byte{data})
	return cfg, nil
}

func documentRoot(doc *yaml.Node) *yaml.Node {
	if doc.Kind == 0 {
		return nil
	}
	if doc.Kind == yaml.DocumentNode {
		if len(doc.Content) == 0 {
			return nil
		}
		return doc.Content[0]
	}
	return doc
}

// mergeNodes merges src into dst. Mappings merge per key keeping dst key order;
// any other node kind in src replaces dst.
func mergeNodes(dst, src *yaml.Node) {
	if dst.Kind != yaml.MappingNode || src.Kind != yaml.MappingNode {
		*dst = *src
		return
	}

	for i := 0; i+1 < len(src.Content); i += 2 {
		key, value := src.Content[i], src.Content[i+1]
		if existing := mappingValue(dst, key.Value); existing != nil {
			mergeNodes(existing, value)
			continue
		}
		dst.Content = append(dst.Content, key, value)
	}
}

func mappingValue(node *yaml.Node, key string) *yaml.Node {
	for i := 0; i+1 < len(node.Content); i += 2 {
		if node.Content[i].Value == key {
			return node.Content[i+1]
		}
	}
	return nil
}

func interpolateEnv(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]

		if value, exists := os.LookupEnv(varName); exists {
			return value
		}

		// Unresolved placeholders stay visible so validation can report them.
		return match
	})
}
