package configurer

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/mitchellh/go-ps"
	"github.com/stretchr/testify/require"

	"github.com/oshokin/reclient-cfgs/internal/config"
	"github.com/oshokin/reclient-cfgs/internal/service/cipd"
	"github.com/oshokin/reclient-cfgs/internal/service/reproxy"
	"github.com/oshokin/reclient-cfgs/internal/service/revision"
)

// ensureCall records one Ensure invocation.
type ensureCall struct {
	pkg, ref, dir string
}

// fakeEnsurer records calls and fails with scripted errors per package.
type fakeEnsurer struct {
	calls []ensureCall
	errs  map[string]error
}

func (f *fakeEnsurer) Ensure(_ context.Context, pkg, ref, dir string) error {
	f.calls = append(f.calls, ensureCall{pkg: pkg, ref: ref, dir: dir})
	return f.errs[pkg]
}

// fakeRenderer records render values and returns a scripted error.
type fakeRenderer struct {
	values []reproxy.Values
	err    error
}

func (f *fakeRenderer) Render(_ context.Context, values reproxy.Values) error {
	f.values = append(f.values, values)
	return f.err
}

// newTestRunner wires a runner over fakes and a temp cfgs dir.
func newTestRunner(t *testing.T, project string, toolchains []toolchain) (*runner, *fakeEnsurer, *fakeRenderer, *bytes.Buffer) {
	t.Helper()

	var (
		ens = &fakeEnsurer{errs: map[string]error{}}
		ren = &fakeRenderer{}
		out = &bytes.Buffer{}
	)

	r := &runner{
		cfg: &config.Config{
			RBEInstance: "projects/" + project + "/instances/default_instance",
			CIPDPrefix:  config.DefaultCIPDPrefix,
			SrcRoot:     t.TempDir(),
		},
		project:    project,
		cfgsDir:    filepath.Join(t.TempDir(), "buildtools", "reclient_cfgs"),
		ensurer:    ens,
		renderer:   ren,
		toolchains: toolchains,
		listProcs:  func() ([]ps.Process, error) { return nil, nil },
		out:        out,
	}

	return r, ens, ren, out
}

// TestRun_SkipsUnresolvedToolchains never fetches a toolchain without a
// revision and still succeeds when the rest fetch fine.
func TestRun_SkipsUnresolvedToolchains(t *testing.T) {
	t.Parallel()

	toolchains := []toolchain{
		{name: "nacl", source: revision.Fixed("")},
		{name: "python", source: revision.Fixed("3.8.0")},
	}
	r, ens, _, _ := newTestRunner(t, "p", toolchains)

	require.NoError(t, r.run(context.Background()))

	require.Len(t, ens.calls, 1)
	require.Equal(t, "infra_internal/rbe/reclient_cfgs/p/python", ens.calls[0].pkg)
	require.Equal(t, "revision/3.8.0", ens.calls[0].ref)
	require.Equal(t, filepath.Join(r.cfgsDir, "python"), ens.calls[0].dir)
}

// TestRun_AuthFailure prints remediation instructions, fails the run and
// leaves the remaining toolchains unattempted.
func TestRun_AuthFailure(t *testing.T) {
	t.Parallel()

	toolchains := []toolchain{
		{name: "first", source: revision.Fixed("r1")},
		{name: "second", source: revision.Fixed("r2")},
	}
	r, ens, _, out := newTestRunner(t, "p", toolchains)
	ens.errs["infra_internal/rbe/reclient_cfgs/p/first"] = &cipd.AuthError{
		Output: "permission denied",
		Err:    errors.New("cipd: exit status 1"),
	}

	err := r.run(context.Background())
	require.Error(t, err)

	var authErr *cipd.AuthError
	require.ErrorAs(t, err, &authErr)

	require.Contains(t, out.String(), "cipd auth-login")
	require.Contains(t, out.String(), "requires authentication")
	require.Len(t, ens.calls, 1)
}

// TestRun_FetchFailure aborts without printing auth remediation.
func TestRun_FetchFailure(t *testing.T) {
	t.Parallel()

	toolchains := []toolchain{
		{name: "first", source: revision.Fixed("r1")},
		{name: "second", source: revision.Fixed("r2")},
	}
	r, ens, _, out := newTestRunner(t, "p", toolchains)
	ens.errs["infra_internal/rbe/reclient_cfgs/p/first"] = &cipd.FetchError{
		Output: "no such package",
		Err:    errors.New("cipd: exit status 1"),
	}

	err := r.run(context.Background())
	require.Error(t, err)

	var fetchErr *cipd.FetchError
	require.ErrorAs(t, err, &fetchErr)

	require.Empty(t, out.String())
	require.Len(t, ens.calls, 1)
}

// TestRun_SkipFetch stops after the render without touching the fetcher.
func TestRun_SkipFetch(t *testing.T) {
	t.Parallel()

	r, ens, ren, _ := newTestRunner(t, "p", []toolchain{
		{name: "python", source: revision.Fixed("3.8.0")},
	})
	r.skipFetch = true
	r.template = "chromium.cfg"

	require.NoError(t, r.run(context.Background()))

	require.Empty(t, ens.calls)
	require.Len(t, ren.values, 1)
	require.Equal(t, "chromium.cfg", ren.values[0].TemplateName)
	require.Equal(t, "p", ren.values[0].Project)
}

// TestRun_TemplateFailureAbortsBeforeFetch ends the run with the fetch phase
// never starting.
func TestRun_TemplateFailureAbortsBeforeFetch(t *testing.T) {
	t.Parallel()

	r, ens, ren, _ := newTestRunner(t, "p", []toolchain{
		{name: "python", source: revision.Fixed("3.8.0")},
	})
	r.template = "missing.cfg"
	ren.err = reproxy.ErrTemplateMissing

	err := r.run(context.Background())
	require.ErrorIs(t, err, reproxy.ErrTemplateMissing)
	require.Empty(t, ens.calls)
}

// TestRun_TemplateRequiresInstance rejects a render without an instance.
func TestRun_TemplateRequiresInstance(t *testing.T) {
	t.Parallel()

	r, ens, ren, _ := newTestRunner(t, "p", nil)
	r.cfg.RBEInstance = ""
	r.template = "chromium.cfg"

	err := r.run(context.Background())
	require.ErrorIs(t, err, errInstanceRequiredForTemplate)
	require.Empty(t, ren.values)
	require.Empty(t, ens.calls)
}

// TestRun_ProjectUndefined requires an explicit project when the instance
// does not embed one.
func TestRun_ProjectUndefined(t *testing.T) {
	t.Parallel()

	r, ens, _, _ := newTestRunner(t, "", []toolchain{
		{name: "python", source: revision.Fixed("3.8.0")},
	})
	r.cfg.RBEInstance = "not-an-instance"

	err := r.run(context.Background())
	require.ErrorIs(t, err, errProjectUndefined)
	require.Empty(t, ens.calls)
}

// TestResolveConfig layers flags over YAML defaults and validates the result.
func TestResolveConfig(t *testing.T) {
	t.Parallel()

	configPath := filepath.Join(t.TempDir(), "reclient-cfgs.yaml")
	contents := []byte(
		"rbe_instance: projects/from-file/instances/i\n" +
			"cipd_prefix: file/prefix\n")
	require.NoError(t, os.WriteFile(configPath, contents, 0o600))

	cfg, err := resolveConfig(&Options{
		ConfigPath: configPath,
		Instance:   "projects/from-flag/instances/i",
	})
	require.NoError(t, err)
	require.Equal(t, "projects/from-flag/instances/i", cfg.RBEInstance)
	require.Equal(t, "file/prefix", cfg.CIPDPrefix)
	require.Equal(t, config.DefaultSrcRoot, cfg.SrcRoot)

	_, err = resolveConfig(&Options{})
	require.ErrorIs(t, err, config.ErrInstanceOrProjectRequired)
}
