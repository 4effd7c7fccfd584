package secrets

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// EnvLoader reads the named environment variables. Unset variables are
// omitted.
func EnvLoader(keys ...string) Loader {
	return func() (map[string]string, error) {
		vals := make(map[string]string, len(keys))
		for _, k := range keys {
			if v := os.Getenv(k); v != "" {
				vals[k] = v
			}
		}
		return vals, nil
	}
}

// DirLoader reads the named files from dir, the layout of a mounted
// Kubernetes secret. Each file name is the key and its content, without a
// trailing newline, the value. A missing dir or file is skipped.
func DirLoader(dir string, keys ...string) Loader {
	return func() (map[string]string, error) {
		vals := make(map[string]string, len(keys))
		for _, k := range keys {
			data, err := os.ReadFile(filepath.Join(dir, k))
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			if err != nil {
				return nil, fmt.Errorf("read secret %s: %w", k, err)
			}
			if v := strings.TrimRight(string(data), "\r\n"); v != "" {
				vals[k] = v
			}
		}
		return vals, nil
	}
}
