package reproxy

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/reclient-cfgs/internal/platform"
)

// newRenderer builds a renderer over a temp cfgs dir with one template.
func newRenderer(t *testing.T, templateName, templateBody string) *Renderer {
	t.Helper()

	srcRoot := t.TempDir()
	cfgsDir := filepath.Join(srcRoot, "buildtools", "reclient_cfgs")
	templatesDir := filepath.Join(cfgsDir, TemplatesDirName)
	require.NoError(t, os.MkdirAll(templatesDir, 0o755))

	if templateName != "" {
		require.NoError(t,
			os.WriteFile(filepath.Join(templatesDir, templateName), []byte(templateBody), 0o600))
	}

	return &Renderer{
		CfgsDir: cfgsDir,
		SrcRoot: srcRoot,
		Profile: platform.ForOS("linux"),
	}
}

const sampleTemplate = "instance=$rbe_instance\n" +
	"service=${rbe_project}.example.com\n" +
	"depsscanner_address=$depsscanner_address\n" +
	"$auth_flags\n"

// TestRenderer_Render substitutes all five placeholders and writes the output.
func TestRenderer_Render(t *testing.T) {
	t.Parallel()

	r := newRenderer(t, "chromium.cfg", sampleTemplate)

	values := Values{
		Instance:     "projects/p/instances/default_instance",
		Project:      "p",
		TemplateName: "chromium.cfg",
	}
	require.NoError(t, r.Render(context.Background(), values))

	rendered, err := os.ReadFile(filepath.Join(r.CfgsDir, OutputFilename))
	require.NoError(t, err)

	out := string(rendered)
	require.Contains(t, out, "# AUTOGENERATED FILE - DO NOT EDIT")
	// The banner's own placeholder is substituted too.
	require.Contains(t, out, "Update reproxy_cfg_templates/chromium.cfg")
	require.Contains(t, out, "instance=projects/p/instances/default_instance")
	require.Contains(t, out, "service=p.example.com")
	require.Contains(t, out, "depsscanner_address=exec://")
	require.Contains(t, out, filepath.Join("buildtools", "reclient", "scandeps_server"))
	require.Contains(t, out, "automatic_auth=true")
	require.NotContains(t, out, "$rbe_instance")
}

// TestRenderer_Render_WindowsProfile appends the executable suffix and swaps auth flags.
func TestRenderer_Render_WindowsProfile(t *testing.T) {
	t.Parallel()

	r := newRenderer(t, "chromium.cfg", sampleTemplate)
	r.Profile = platform.ForOS("windows")

	values := Values{Instance: "i", Project: "p", TemplateName: "chromium.cfg"}
	require.NoError(t, r.Render(context.Background(), values))

	rendered, err := os.ReadFile(filepath.Join(r.CfgsDir, OutputFilename))
	require.NoError(t, err)
	require.Contains(t, string(rendered), "scandeps_server.exe")
	require.Contains(t, string(rendered), "use_application_default_credentials=true")
}

// TestRenderer_Render_Idempotent renders twice and compares bytes, replacing
// prior content entirely.
func TestRenderer_Render_Idempotent(t *testing.T) {
	t.Parallel()

	r := newRenderer(t, "chromium.cfg", sampleTemplate)
	values := Values{Instance: "i", Project: "p", TemplateName: "chromium.cfg"}

	outputPath := filepath.Join(r.CfgsDir, OutputFilename)
	require.NoError(t, os.WriteFile(outputPath, []byte("stale content that must disappear"), 0o600))

	require.NoError(t, r.Render(context.Background(), values))
	first, err := os.ReadFile(outputPath)
	require.NoError(t, err)
	require.NotContains(t, string(first), "stale content")

	require.NoError(t, r.Render(context.Background(), values))
	second, err := os.ReadFile(outputPath)
	require.NoError(t, err)
	require.Equal(t, first, second)
}

// TestRenderer_Render_MissingTemplate fails without writing any output.
func TestRenderer_Render_MissingTemplate(t *testing.T) {
	t.Parallel()

	r := newRenderer(t, "", "")
	err := r.Render(context.Background(), Values{TemplateName: "nope.cfg"})
	require.ErrorIs(t, err, ErrTemplateMissing)

	_, statErr := os.Stat(filepath.Join(r.CfgsDir, OutputFilename))
	require.True(t, os.IsNotExist(statErr))
}

// TestRenderer_Render_UnknownPlaceholder fails without writing any output.
func TestRenderer_Render_UnknownPlaceholder(t *testing.T) {
	t.Parallel()

	r := newRenderer(t, "bad.cfg", "value=$mystery\n")
	err := r.Render(context.Background(), Values{TemplateName: "bad.cfg"})
	require.ErrorIs(t, err, errUnknownPlaceholder)
	require.ErrorContains(t, err, "mystery")

	_, statErr := os.Stat(filepath.Join(r.CfgsDir, OutputFilename))
	require.True(t, os.IsNotExist(statErr))
}
