package main

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// defaults holds the optional YAML defaults file contents: fallback
// values for flags the user didn't pass explicitly on the command
// line (mirrors the teacher's DefaultSearchPaths config-loading
// convention, SPEC_FULL.md §1).
type defaults struct {
	Theme  string `yaml:"theme"`
	Scorer string `yaml:"scorer"`
	Layout string `yaml:"layout"`
}

// defaultSearchPaths returns the config file candidates in priority
// order: an explicit --config path wins outright; otherwise the
// working directory, the user's config dir, then /etc, in that order.
func defaultSearchPaths(explicit string) []string {
	if explicit != "" {
		return []string{explicit}
	}
	paths := []string{"config.yaml"}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "sweep-go", "config.yaml"))
	}
	paths = append(paths, filepath.Join("/etc", "sweep-go", "config.yaml"))
	return paths
}

// loadDefaults reads the first existing candidate path and returns its
// parsed contents. It returns a zero-value defaults (and no error) if
// none of the candidates exist.
func loadDefaults(explicit string) (defaults, error) {
	var d defaults
	for _, path := range defaultSearchPaths(explicit) {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return d, err
		}
		if err := yaml.Unmarshal(data, &d); err != nil {
			return d, err
		}
		return d, nil
	}
	return d, nil
}
