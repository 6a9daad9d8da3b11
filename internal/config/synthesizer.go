package config

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"os"
	"strings"
	"time"
)

// EnvVariable is one line of a synthesized .env file.
type EnvVariable struct {
	Key       string
	Value     string
	Type      string
	Generated bool
}

// Synthesizer writes a starter .env file: one generated account per known
// role plus the settings most runs override. The same file configures the
// harness and seeds the demo application, so both agree on credentials.
type Synthesizer struct {
	outputPath string
	baseURL    string
	variables  []EnvVariable
}

func NewSynthesizer(outputPath, baseURL string) *Synthesizer {
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}
	return &Synthesizer{outputPath: outputPath, baseURL: baseURL}
}

// SynthesizeEnv writes the file. With rotateOnly, existing passwords are
// replaced and every other value is kept; otherwise existing values win.
func (s *Synthesizer) SynthesizeEnv(rotateOnly bool) error {
	existing := ReadEnvFile(s.outputPath)
	if err := s.generateVariables(existing, rotateOnly); err != nil {
		return err
	}
	if err := s.writeEnvFile(); err != nil {
		return fmt.Errorf("failed to write .env file: %w", err)
	}
	return nil
}

// GeneratedCount returns how many values were freshly generated.
func (s *Synthesizer) GeneratedCount() int {
	count := 0
	for _, v := range s.variables {
		if v.Generated {
			count++
		}
	}
	return count
}

func (s *Synthesizer) generateVariables(existing map[string]string, rotateOnly bool) error {
	s.variables = s.variables[:0]
	s.section("# Generated by e2eprobe synthesize on " + time.Now().Format(time.RFC3339))
	s.static(existing, EnvPrefix+"_APP_BASE_URL", s.baseURL)
	s.static(existing, EnvPrefix+"_MODE", ModeVerify)
	s.blank()

	for _, role := range KnownRoles {
		s.section("# " + role)
		key := EnvPrefix + "_CREDENTIALS_" + strings.ToUpper(role)
		s.static(existing, key+"_EMAIL", role+"@example.com")

		password, err := generatePassword(20)
		if err != nil {
			return fmt.Errorf("failed to generate password for %s: %w", role, err)
		}
		s.generated(existing, key+"_PASSWORD", password, rotateOnly)
		s.blank()
	}

	s.section("# Logging")
	s.static(existing, EnvPrefix+"_LOGGING_LEVEL", "info")
	s.static(existing, EnvPrefix+"_LOGGING_FORMAT", "console")
	return nil
}

func (s *Synthesizer) section(text string) {
	s.variables = append(s.variables, EnvVariable{Key: text, Type: "section"})
}

func (s *Synthesizer) blank() {
	s.variables = append(s.variables, EnvVariable{Type: "blank"})
}

func (s *Synthesizer) static(existing map[string]string, key, defaultValue string) {
	value := defaultValue
	if v, ok := existing[key]; ok {
		value = v
	}
	s.variables = append(s.variables, EnvVariable{Key: key, Value: value, Type: "static"})
}

func (s *Synthesizer) generated(existing map[string]string, key, newValue string, rotateOnly bool) {
	if v, ok := existing[key]; ok && v != "" && !rotateOnly {
		s.variables = append(s.variables, EnvVariable{Key: key, Value: v, Type: "secret"})
		return
	}
	s.variables = append(s.variables, EnvVariable{Key: key, Value: newValue, Type: "secret", Generated: true})
}

func (s *Synthesizer) writeEnvFile() error {
	if _, err := os.Stat(s.outputPath); err == nil {
		backupPath := fmt.Sprintf("%s.backup.%s", s.outputPath, time.Now().Format("20060102_150405"))
		data, err := os.ReadFile(s.outputPath)
		if err != nil {
			return err
		}
		if err := os.WriteFile(backupPath, data, 0600); err != nil {
			return fmt.Errorf("failed to backup existing .env: %w", err)
		}
	}

	var b strings.Builder
	for _, v := range s.variables {
		switch v.Type {
		case "section":
			b.WriteString(v.Key + "\n")
		case "blank":
			b.WriteString("\n")
		default:
			fmt.Fprintf(&b, "%s=%s\n", v.Key, v.Value)
		}
	}
	return os.WriteFile(s.outputPath, []byte(b.String()), 0600)
}

// ReadEnvFile parses KEY=VALUE lines from path. A missing file yields an
// empty map.
func ReadEnvFile(path string) map[string]string {
	vars := make(map[string]string)
	data, err := os.ReadFile(path)
	if err != nil {
		return vars
	}
	for _, line := range strings.Split(string(data), "\n") {
		if key, val, ok := parseDotEnvLine(line); ok {
			vars[key] = val
		}
	}
	return vars
}

func generatePassword(length int) (string, error) {
	if length < 12 {
		length = 12
	}
	buf := make([]byte, length)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	// URL-safe base64 keeps the value free of shell and .env quoting issues.
	return base64.RawURLEncoding.EncodeToString(buf)[:length], nil
}
