package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"gopkg.in/yaml.v3"
)

// Config holds the resolved settings for a single run.
type Config struct {
	// RBEInstance names the remote-execution deployment,
	// e.g. projects/my-project/instances/default_instance.
	RBEInstance string `yaml:"rbe_instance"`
	// RewrapperProject overrides the project derived from RBEInstance.
	RewrapperProject string `yaml:"rewrapper_cfg_project"`
	// CIPDPrefix is the package name prefix for remote-execution config packages.
	CIPDPrefix string `yaml:"cipd_prefix"`
	// SrcRoot is the build tree root; buildtools/ and tools/ live under it.
	SrcRoot string `yaml:"src_root"`
}

const (
	// DefaultCIPDPrefix is the package name prefix used when none is configured.
	DefaultCIPDPrefix = "infra_internal/rbe/reclient_cfgs"

	// DefaultSrcRoot is the build tree root used when none is configured.
	DefaultSrcRoot = "."

	// InstanceEnvVar names the environment variable supplying the default RBE instance.
	InstanceEnvVar = "RBE_instance"

	// DefaultFilePermissions is the file permission for rendered config files.
	DefaultFilePermissions = 0o644
)

// ErrInstanceOrProjectRequired is returned when neither an RBE instance
// nor an explicit rewrapper project was supplied.
var ErrInstanceOrProjectRequired = errors.New(
	"at least one of rbe_instance and rewrapper_cfg_project must be provided")

// instancePattern extracts the project id embedded in an instance identifier.
var instancePattern = regexp.MustCompile(`^projects/([-\w]+)/instances/[-\w]+$`)

// Load reads YAML defaults from the provided path.
func Load(path string) (*Config, error) {
	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read settings: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(contents, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal settings: %w", err)
	}

	return &cfg, nil
}

// ApplyDefaults fills unset fields with their default values.
func ApplyDefaults(cfg *Config) {
	if cfg.CIPDPrefix == "" {
		cfg.CIPDPrefix = DefaultCIPDPrefix
	}

	if cfg.SrcRoot == "" {
		cfg.SrcRoot = DefaultSrcRoot
	}
}

// Validate checks the provided settings for required fields.
func Validate(cfg *Config) error {
	if cfg.RBEInstance == "" && cfg.RewrapperProject == "" {
		return ErrInstanceOrProjectRequired
	}

	return nil
}

// ProjectFromInstance derives the project id embedded in an RBE instance
// identifier. It returns an empty string when the identifier does not match
// the projects/<project>/instances/<name> form.
func ProjectFromInstance(instance string) string {
	m := instancePattern.FindStringSubmatch(instance)
	if m == nil {
		return ""
	}

	return m[1]
}

// EffectiveProject returns the explicit rewrapper project when set,
// otherwise the project derived from the instance identifier.
func (c *Config) EffectiveProject() string {
	if c.RewrapperProject != "" {
		return c.RewrapperProject
	}

	return ProjectFromInstance(c.RBEInstance)
}
