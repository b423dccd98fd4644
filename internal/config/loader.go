package config

import (
	"errors"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the default configuration file name.
const DefaultConfigFile = ".snlscan"

// ErrConfigNotFound is returned when the configuration file does not exist.
var ErrConfigNotFound = errors.New("configuration file not found")

// File is the YAML configuration file layout. All fields are optional;
// values present in the file override built-in defaults but are in turn
// overridden by explicit CLI flags.
type File struct {
	// Tools configures the external tool locations.
	Tools struct {
		Discovery     string `yaml:"discovery"`
		Detection     string `yaml:"detection"`
		TemplatesRoot string `yaml:"templates_root"`
		BinDir        string `yaml:"bin_dir"`
	} `yaml:"tools"`

	// ResultsDir overrides the artifact output directory.
	ResultsDir string `yaml:"results_dir"`

	// DataDir overrides the job database directory.
	DataDir string `yaml:"data_dir"`

	// BenchmarkHosts overrides the validation-gate reference targets.
	BenchmarkHosts []string `yaml:"benchmark_hosts"`

	// Explain configures the explanation service. RequestTimeout takes a
	// Go duration string ("30s", "1m"); yaml.v3 has no native duration
	// support, so it is parsed in Apply.
	Explain struct {
		URL            string `yaml:"url"`
		APIKey         string `yaml:"api_key"`
		RequestTimeout string `yaml:"request_timeout"`
	} `yaml:"explain"`

	// Auth configures bearer-token verification for serve mode.
	Auth struct {
		Secret   string `yaml:"secret"`
		Audience string `yaml:"audience"`
	} `yaml:"auth"`

	// ListenAddr overrides the HTTP API listen address.
	ListenAddr string `yaml:"listen_addr"`
}

// LoadConfigFile loads configuration overrides from a YAML file.
// If the file does not exist, it returns ErrConfigNotFound. Callers
// should handle this error based on whether the config file path was
// explicitly specified by the user.
func LoadConfigFile(path string) (*File, error) {
	data, err := os.ReadFile(path) //nolint:gosec // User-provided config path is intentional
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrConfigNotFound
		}
		return nil, err
	}

	var cf File
	if err := yaml.Unmarshal(data, &cf); err != nil {
		return nil, err
	}
	return &cf, nil
}

// Apply merges file values into the config. Only non-zero file values
// override; flags applied after this call take final precedence.
func (c *Config) Apply(cf *File) {
	if cf == nil {
		return
	}
	if cf.Tools.Discovery != "" {
		c.DiscoveryToolPath = cf.Tools.Discovery
	}
	if cf.Tools.Detection != "" {
		c.DetectionToolPath = cf.Tools.Detection
	}
	if cf.Tools.TemplatesRoot != "" {
		c.TemplatesRoot = cf.Tools.TemplatesRoot
	}
	if cf.Tools.BinDir != "" {
		c.BinDir = cf.Tools.BinDir
	}
	if cf.ResultsDir != "" {
		c.ResultsDir = cf.ResultsDir
	}
	if cf.DataDir != "" {
		c.DataDir = cf.DataDir
	}
	if len(cf.BenchmarkHosts) > 0 {
		c.BenchmarkHosts = append([]string(nil), cf.BenchmarkHosts...)
	}
	if cf.Explain.URL != "" {
		c.ExplainURL = cf.Explain.URL
	}
	if cf.Explain.APIKey != "" {
		c.ExplainAPIKey = cf.Explain.APIKey
	}
	if cf.Explain.RequestTimeout != "" {
		if d, err := time.ParseDuration(cf.Explain.RequestTimeout); err == nil && d > 0 {
			c.ExplainTimeout = d
		}
	}
	if cf.Auth.Secret != "" {
		c.AuthSecret = cf.Auth.Secret
	}
	if cf.Auth.Audience != "" {
		c.AuthAudience = cf.Auth.Audience
	}
	if cf.ListenAddr != "" {
		c.ListenAddr = cf.ListenAddr
	}
}

// FindConfigFile searches for the configuration file in the following order:
// 1. If configPath is specified, use it directly
// 2. Look for .snlscan in the current directory
// 3. Look for .snlscan in the user's home directory
//
// Returns the path to the configuration file if found, or empty string if
// not found.
func FindConfigFile(configPath string) string {
	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}
		return ""
	}

	cwd, err := os.Getwd()
	if err == nil {
		cwdConfig := filepath.Join(cwd, DefaultConfigFile)
		if _, err := os.Stat(cwdConfig); err == nil {
			return cwdConfig
		}
	}

	home, err := os.UserHomeDir()
	if err == nil {
		homeConfig := filepath.Join(home, DefaultConfigFile)
		if _, err := os.Stat(homeConfig); err == nil {
			return homeConfig
		}
	}

	return ""
}
