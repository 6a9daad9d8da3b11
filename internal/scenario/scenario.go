// Package scenario reads declarative scenario files and runs them against a
// harness.
package scenario

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/gotrs-io/e2eprobe/internal/check"
	"github.com/gotrs-io/e2eprobe/internal/config"
	"github.com/gotrs-io/e2eprobe/internal/schema"
)

//go:embed builtin.yaml
var builtinYAML []byte

// Step kinds.
const (
	StepLogin                   = "login"
	StepLoginAPI                = "login_api"
	StepLogout                  = "logout"
	StepExpectAuthenticated     = "expect_authenticated"
	StepNavigate                = "navigate"
	StepScreenshot              = "screenshot"
	StepExpectNoConsoleErrors   = "expect_no_console_errors"
	StepExpectNoPageErrors      = "expect_no_page_errors"
	StepExpectNoNetworkFailures = "expect_no_network_failures"
	StepAPI                     = "api"
)

// File is a scenario document.
type File struct {
	Scenarios []Scenario `yaml:"scenarios"`
}

// Scenario is a named list of steps run in one browser page.
type Scenario struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description,omitempty"`
	Mode        string   `yaml:"mode,omitempty"`
	Role        string   `yaml:"role,omitempty"`
	Ignore      []string `yaml:"ignore,omitempty"`
	// IgnoreNetwork filters failed requests by "METHOD URL -> status".
	IgnoreNetwork []string `yaml:"ignore_network,omitempty"`
	Steps         []Step   `yaml:"steps"`
}

// APIStep fetches an API path and optionally checks it.
type APIStep struct {
	Path   string `yaml:"path"`
	Field  string `yaml:"field,omitempty"`
	Equals string `yaml:"equals,omitempty"`
	Min    *int   `yaml:"min,omitempty"`
}

// NavigateStep probes a route.
type NavigateStep struct {
	Route  string `yaml:"route"`
	Expect string `yaml:"expect,omitempty"`
}

// Step is a single action or check. Kind selects which fields apply.
type Step struct {
	Kind     string
	Role     string
	Navigate NavigateStep
	Label    string
	API      APIStep
}

// UnmarshalYAML accepts a bare step name or a one-key mapping.
func (s *Step) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		switch node.Value {
		case StepLogin, StepLoginAPI, StepLogout, StepExpectAuthenticated, StepExpectNoConsoleErrors, StepExpectNoPageErrors, StepExpectNoNetworkFailures:
			s.Kind = node.Value
			return nil
		}
		return fmt.Errorf("line %d: step %q needs arguments or does not exist", node.Line, node.Value)
	case yaml.MappingNode:
	default:
		return fmt.Errorf("line %d: step must be a name or a mapping", node.Line)
	}
	if len(node.Content) != 2 {
		return fmt.Errorf("line %d: step must have exactly one key", node.Line)
	}
	key, value := node.Content[0], node.Content[1]
	s.Kind = key.Value

	switch s.Kind {
	case StepLogin, StepLoginAPI:
		if value.Tag != "!!null" {
			return value.Decode(&s.Role)
		}
	case StepNavigate:
		return value.Decode(&s.Navigate)
	case StepScreenshot:
		return value.Decode(&s.Label)
	case StepAPI:
		return value.Decode(&s.API)
	case StepLogout, StepExpectAuthenticated, StepExpectNoConsoleErrors, StepExpectNoPageErrors, StepExpectNoNetworkFailures:
	default:
		return fmt.Errorf("line %d: unknown step %q", key.Line, s.Kind)
	}
	return nil
}

// String names the step in findings.
func (s Step) String() string {
	switch s.Kind {
	case StepLogin, StepLoginAPI:
		if s.Role != "" {
			return s.Kind + " " + s.Role
		}
	case StepNavigate:
		expect := s.Navigate.Expect
		if expect == "" {
			expect = ExpectReached
		}
		return fmt.Sprintf("navigate %s (%s)", s.Navigate.Route, expect)
	case StepScreenshot:
		return fmt.Sprintf("screenshot %q", s.Label)
	case StepAPI:
		return "api " + s.API.Path
	}
	return s.Kind
}

// Parse validates data against the scenario schema and decodes it.
func Parse(data []byte) (File, error) {
	if err := schema.Validate(schema.KindScenarios, data); err != nil {
		return File{}, err
	}
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return File{}, fmt.Errorf("decode scenarios: %w", err)
	}
	if err := f.validate(); err != nil {
		return File{}, err
	}
	return f, nil
}

// LoadFile reads and parses a scenario file.
func LoadFile(path string) (File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return File{}, fmt.Errorf("read scenarios: %w", err)
	}
	return Parse(data)
}

// Builtin returns the embedded default scenarios.
func Builtin() File {
	f, err := Parse(builtinYAML)
	if err != nil {
		panic(fmt.Sprintf("built-in scenarios are invalid: %v", err))
	}
	return f
}

// Load reads path, or returns the built-in scenarios when path is empty.
func Load(path string) (File, error) {
	if path == "" {
		return Builtin(), nil
	}
	return LoadFile(path)
}

func (f File) validate() error {
	seen := make(map[string]bool)
	for _, sc := range f.Scenarios {
		if seen[sc.Name] {
			return fmt.Errorf("duplicate scenario name %q", sc.Name)
		}
		seen[sc.Name] = true
		if _, err := check.NewIgnoreList(sc.Ignore...); err != nil {
			return fmt.Errorf("scenario %q: %w", sc.Name, err)
		}
		if _, err := check.NewIgnoreList(sc.IgnoreNetwork...); err != nil {
			return fmt.Errorf("scenario %q: %w", sc.Name, err)
		}
		for i, st := range sc.Steps {
			if (st.Kind == StepLogin || st.Kind == StepLoginAPI) && st.Role == "" && sc.Role == "" {
				return fmt.Errorf("scenario %q step %d: %s needs a role", sc.Name, i+1, st.Kind)
			}
		}
	}
	return nil
}

// Select returns the scenarios named in names, in file order. No names
// selects all.
func (f File) Select(names ...string) ([]Scenario, error) {
	if len(names) == 0 {
		return f.Scenarios, nil
	}
	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[n] = true
	}
	var out []Scenario
	for _, sc := range f.Scenarios {
		if want[sc.Name] {
			out = append(out, sc)
			delete(want, sc.Name)
		}
	}
	if len(want) > 0 {
		var missing []string
		for n := range want {
			missing = append(missing, n)
		}
		sort.Strings(missing)
		return nil, fmt.Errorf("unknown scenario(s): %s", strings.Join(missing, ", "))
	}
	return out, nil
}

// EffectiveMode is the scenario's mode, or fallback when it has none.
func (sc Scenario) EffectiveMode(fallback string) string {
	if sc.Mode != "" {
		return sc.Mode
	}
	if fallback == "" {
		return config.ModeVerify
	}
	return fallback
}
