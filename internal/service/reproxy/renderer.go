package reproxy

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/oshokin/reclient-cfgs/internal/config"
	"github.com/oshokin/reclient-cfgs/internal/logger"
	"github.com/oshokin/reclient-cfgs/internal/platform"
)

// TemplatesDirName is the directory under the cfgs dir holding the templates.
const TemplatesDirName = "reproxy_cfg_templates"

// OutputFilename is the rendered configuration file name.
const OutputFilename = "reproxy.cfg"

// header is prepended to every rendered config. It is part of the template
// input, so the $reproxy_cfg_template placeholder inside it is substituted
// like any other.
const header = `# AUTOGENERATED FILE - DO NOT EDIT
# Generated by reclient-cfgs
# To edit:
# Update reproxy_cfg_templates/$reproxy_cfg_template
# And run 'gclient sync' or 'gclient runhooks'
`

var (
	// ErrTemplateMissing is returned when the named template does not exist.
	ErrTemplateMissing = errors.New("reproxy config template does not exist")

	// errUnknownPlaceholder is returned when the template references a
	// placeholder outside the fixed set.
	errUnknownPlaceholder = errors.New("unknown template placeholder")
)

// Values carries the caller-supplied substitutions for one render.
type Values struct {
	// Instance is the RBE instance identifier.
	Instance string
	// Project is the effective RBE project.
	Project string
	// TemplateName is the file name under reproxy_cfg_templates/.
	TemplateName string
}

// Renderer renders reproxy.cfg into the reclient cfgs directory.
type Renderer struct {
	// CfgsDir is the directory holding templates and the rendered output.
	CfgsDir string
	// SrcRoot is the build tree root used to locate the dependency scanner.
	SrcRoot string
	// Profile supplies the platform-dependent substitutions.
	Profile platform.Profile
}

// Render loads the named template, substitutes the fixed placeholder set and
// fully overwrites the output file. Nothing is written when the template is
// missing or references an unknown placeholder.
func (r *Renderer) Render(ctx context.Context, values Values) error {
	templatePath := filepath.Join(r.CfgsDir, TemplatesDirName, values.TemplateName)
	logger.Infof(ctx, "Generating %s from %s", OutputFilename, templatePath)

	body, err := os.ReadFile(templatePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%s: %w", templatePath, ErrTemplateMissing)
		}

		return fmt.Errorf("read template: %w", err)
	}

	rendered, err := substitute(header+string(body), map[string]string{
		"rbe_instance":         values.Instance,
		"rbe_project":          values.Project,
		"reproxy_cfg_template": values.TemplateName,
		"depsscanner_address":  r.scannerAddress(),
		"auth_flags":           r.Profile.AuthFlags,
	})
	if err != nil {
		return err
	}

	outputPath := filepath.Join(r.CfgsDir, OutputFilename)
	if err := os.WriteFile(outputPath, []byte(rendered), config.DefaultFilePermissions); err != nil {
		return fmt.Errorf("write %s: %w", OutputFilename, err)
	}

	return nil
}

// scannerAddress builds the dependency scanner endpoint, platform suffix included.
func (r *Renderer) scannerAddress() string {
	server := filepath.Join(r.SrcRoot, "buildtools", "reclient", "scandeps_server")
	return "exec://" + server + r.Profile.ExecutableSuffix
}

// substitute expands $name / ${name} placeholders against the provided set.
// Any placeholder outside the set fails the whole render.
func substitute(text string, vars map[string]string) (string, error) {
	var unknown []string

	expanded := os.Expand(text, func(name string) string {
		value, ok := vars[name]
		if !ok {
			unknown = append(unknown, name)
			return ""
		}

		return value
	})

	if len(unknown) > 0 {
		return "", fmt.Errorf("%w: %s", errUnknownPlaceholder, strings.Join(unknown, ", "))
	}

	return expanded, nil
}
