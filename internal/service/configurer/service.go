package configurer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"

	"github.com/mitchellh/go-ps"

	"github.com/oshokin/reclient-cfgs/internal/command"
	"github.com/oshokin/reclient-cfgs/internal/config"
	"github.com/oshokin/reclient-cfgs/internal/logger"
	"github.com/oshokin/reclient-cfgs/internal/platform"
	"github.com/oshokin/reclient-cfgs/internal/service/cipd"
	"github.com/oshokin/reclient-cfgs/internal/service/reproxy"
	"github.com/oshokin/reclient-cfgs/internal/service/revision"
)

// Options are inputs accepted by the configurer entry point.
type Options struct {
	// ConfigPath is the optional path to a YAML defaults file.
	ConfigPath string
	// Instance is the RBE instance identifier.
	Instance string
	// Project is the explicit rewrapper config project override.
	Project string
	// Template is the reproxy.cfg template name; empty skips rendering.
	Template string
	// CIPDPrefix overrides the package name prefix.
	CIPDPrefix string
	// SrcRoot overrides the build tree root.
	SrcRoot string
	// SkipFetch stops the run after the optional template render.
	SkipFetch bool
	// Quiet lowers external tool log verbosity.
	Quiet bool
}

// pythonRevision is the pinned revision of the python toolchain configs.
const pythonRevision = "3.8.0"

var (
	// errInstanceRequiredForTemplate is returned when a template render was
	// requested without an RBE instance to substitute into it.
	errInstanceRequiredForTemplate = errors.New(
		"rbe_instance is required if reproxy_cfg_template is set")

	// errProjectUndefined is returned when the fetch phase starts without a
	// usable project: the instance did not embed one and no override was given.
	errProjectUndefined = errors.New(
		"RBE project is undefined; pass --rewrapper_cfg_project explicitly")
)

// authInstructions is printed verbatim when CIPD reports the user is not
// authenticated. It mirrors the one-time manual login flow.
const authInstructions = `Access to remoteexec config CIPD package requires authentication.
-----------------------------------------------------------------

I'm sorry for the hassle, but you may need to do a one-time manual
authentication. Please run:

    cipd auth-login

and follow the instructions.

NOTE: Use your google.com credentials, not chromium.org.

-----------------------------------------------------------------
`

// ensurer materializes versioned packages into local directories.
type ensurer interface {
	Ensure(ctx context.Context, pkg, ref, dir string) error
}

// templateRenderer renders reproxy.cfg from a named template.
type templateRenderer interface {
	Render(ctx context.Context, values reproxy.Values) error
}

// toolchain pairs a toolchain name with its revision source.
type toolchain struct {
	name   string
	source revision.Source
}

// runner holds the collaborators for a single execution.
// It is intentionally unexported; call Run(ctx, Options) from callers.
type runner struct {
	cfg        *config.Config
	project    string
	cfgsDir    string
	template   string
	skipFetch  bool
	ensurer    ensurer
	renderer   templateRenderer
	toolchains []toolchain
	listProcs  func() ([]ps.Process, error)
	out        io.Writer
}

// Run executes the configurer lifecycle and is the public entry point for the CLI.
func Run(ctx context.Context, opts *Options) error {
	ctx = logger.WithName(ctx, "reclient-cfgs")

	r, err := newRunner(opts)
	if err != nil {
		return err
	}

	if err = r.run(ctx); err != nil {
		logger.ErrorKV(ctx, "Configurer run failed", "error", err)
		return err
	}

	return nil
}

// newRunner merges settings and wires the production collaborators.
func newRunner(opts *Options) (*runner, error) {
	cfg, err := resolveConfig(opts)
	if err != nil {
		return nil, err
	}

	var (
		profile   = platform.Current()
		cmdRunner = command.ExecRunner{}
		cfgsDir   = filepath.Join(cfg.SrcRoot, "buildtools", "reclient_cfgs")
	)

	return &runner{
		cfg:       cfg,
		project:   cfg.EffectiveProject(),
		cfgsDir:   cfgsDir,
		template:  opts.Template,
		skipFetch: opts.SkipFetch,
		ensurer:   cipd.NewClient(cmdRunner, opts.Quiet),
		renderer: &reproxy.Renderer{
			CfgsDir: cfgsDir,
			SrcRoot: cfg.SrcRoot,
			Profile: profile,
		},
		toolchains: []toolchain{
			{name: "chromium-browser-clang", source: &revision.ClangSource{SrcRoot: cfg.SrcRoot}},
			{name: "nacl", source: &revision.NaClSource{SrcRoot: cfg.SrcRoot, Runner: cmdRunner}},
			{name: "python", source: revision.Fixed(pythonRevision)},
		},
		listProcs: ps.Processes,
		out:       os.Stdout,
	}, nil
}

// resolveConfig layers flag values over the optional YAML defaults file,
// applies defaults and validates the result.
func resolveConfig(opts *Options) (*config.Config, error) {
	cfg := &config.Config{}

	if opts.ConfigPath != "" {
		loaded, err := config.Load(opts.ConfigPath)
		if err != nil {
			return nil, err
		}

		cfg = loaded
	}

	// Flags win over file values.
	if opts.Instance != "" {
		cfg.RBEInstance = opts.Instance
	}

	if opts.Project != "" {
		cfg.RewrapperProject = opts.Project
	}

	if opts.CIPDPrefix != "" {
		cfg.CIPDPrefix = opts.CIPDPrefix
	}

	if opts.SrcRoot != "" {
		cfg.SrcRoot = opts.SrcRoot
	}

	config.ApplyDefaults(cfg)

	if err := config.Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// run walks the linear decision gates of a single execution.
func (r *runner) run(ctx context.Context) error {
	r.warnIfReclientRunning(ctx)

	if r.template != "" {
		if r.cfg.RBEInstance == "" {
			return errInstanceRequiredForTemplate
		}

		if err := r.renderer.Render(ctx, reproxy.Values{
			Instance:     r.cfg.RBEInstance,
			Project:      r.project,
			TemplateName: r.template,
		}); err != nil {
			return fmt.Errorf("generate %s: %w", reproxy.OutputFilename, err)
		}
	}

	if r.skipFetch {
		logger.Info(ctx, "Skipping remoteexec config fetch")
		return nil
	}

	return r.fetchToolchains(ctx)
}

// fetchToolchains resolves and fetches every toolchain in order. A toolchain
// without a resolvable revision is skipped; the first fetch error ends the run.
func (r *runner) fetchToolchains(ctx context.Context) error {
	if r.project == "" {
		return errProjectUndefined
	}

	logger.Infof(ctx, "Fetching reclient cfgs for RBE project %s", r.project)

	prefix := path.Join(r.cfg.CIPDPrefix, r.project)

	for _, tc := range r.toolchains {
		rev, err := tc.source.Resolve(ctx)
		if err != nil {
			return fmt.Errorf("resolve %s revision: %w", tc.name, err)
		}

		if rev == "" {
			logger.Infof(ctx, "Failed to detect %s revision, skipping", tc.name)
			continue
		}

		var (
			pkg  = path.Join(prefix, tc.name)
			ref  = "revision/" + rev
			root = filepath.Join(r.cfgsDir, tc.name)
		)

		logger.Infof(ctx, "Ensure %s %s in %s", pkg, ref, root)

		if err = r.ensurer.Ensure(ctx, pkg, ref, root); err != nil {
			return r.reportFetchFailure(ctx, err)
		}

		if err = r.copyWinCrossCfgs(ctx, tc.name); err != nil {
			return fmt.Errorf("copy win-cross cfgs for %s: %w", tc.name, err)
		}
	}

	return nil
}

// reportFetchFailure prints remediation instructions for auth failures and
// logs captured output for everything else. The run always ends here.
func (r *runner) reportFetchFailure(ctx context.Context, err error) error {
	var authErr *cipd.AuthError
	if errors.As(err, &authErr) {
		_, _ = fmt.Fprint(r.out, authInstructions)
		return err
	}

	var fetchErr *cipd.FetchError
	if errors.As(err, &fetchErr) {
		logger.Error(ctx, fetchErr.Output)
	}

	return err
}

// reclientExecutables are the binaries whose running instances keep using the
// previous configs until restarted.
var reclientExecutables = map[string]struct{}{
	"reproxy":             {},
	"reproxy.exe":         {},
	"scandeps_server":     {},
	"scandeps_server.exe": {},
}

// warnIfReclientRunning scans the process table and warns when a reclient
// process is alive: freshly written configs only apply after it restarts.
// Scan failures are not fatal; this is advisory.
func (r *runner) warnIfReclientRunning(ctx context.Context) {
	processes, err := r.listProcs()
	if err != nil {
		logger.DebugKV(ctx, "Process scan failed", "error", err)
		return
	}

	for _, process := range processes {
		if _, found := reclientExecutables[process.Executable()]; !found {
			continue
		}

		logger.WarnKV(ctx, "Reclient process is running; new configs apply after it restarts",
			"executable", process.Executable(), "pid", process.Pid())
	}
}
