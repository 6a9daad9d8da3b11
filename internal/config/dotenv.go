package config

import (
	"bufio"
	"os"
	"strings"
	"sync"
)

var dotEnvOnce sync.Once

// LoadDotEnv loads simple KEY=VALUE lines from the given files if present.
// Existing environment variables take precedence and are not overwritten.
// Only the first call has an effect.
func LoadDotEnv(paths ...string) {
	dotEnvOnce.Do(func() {
		for _, p := range paths {
			loadDotEnvFile(p)
		}
	})
}

func loadDotEnvFile(path string) {
	f, err := os.Open(path)
	if err != nil {
		return
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		key, val, ok := parseDotEnvLine(scanner.Text())
		if !ok {
			continue
		}
		if _, exists := os.LookupEnv(key); !exists {
			_ = os.Setenv(key, val)
		}
	}
}

func parseDotEnvLine(line string) (string, string, bool) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return "", "", false
	}
	line = strings.TrimPrefix(line, "export ")
	i := strings.Index(line, "=")
	if i <= 0 {
		return "", "", false
	}
	key := strings.TrimSpace(line[:i])
	val := strings.TrimSpace(line[i+1:])
	if key == "" || val == "" {
		return "", "", false
	}
	// Strip optional surrounding quotes
	if len(val) >= 2 && ((val[0] == '"' && val[len(val)-1] == '"') || (val[0] == '\'' && val[len(val)-1] == '\'')) {
		val = val[1 : len(val)-1]
	}
	return key, val, true
}
