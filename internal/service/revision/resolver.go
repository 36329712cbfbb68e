package revision

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/oshokin/reclient-cfgs/internal/command"
	"github.com/oshokin/reclient-cfgs/internal/logger"
)

// Source resolves the revision of a single toolchain.
// An empty revision with a nil error means the revision could not be
// determined and the toolchain should be skipped, not that the run failed.
type Source interface {
	Resolve(ctx context.Context) (string, error)
}

var (
	// packageVersionPattern matches the version constant declared by the
	// clang update helper, e.g. PACKAGE_VERSION = 'llvmorg-18-init-1-g123abc-2'.
	packageVersionPattern = regexp.MustCompile(`(?m)^PACKAGE_VERSION\s*=\s*['"]([^'"]+)['"]`)

	// commitPattern accepts full git commit hashes only.
	commitPattern = regexp.MustCompile(`^[0-9a-f]{40,}$`)
)

// ClangSource reads the package version declared by the clang update helper
// under the build tree.
type ClangSource struct {
	// SrcRoot is the build tree root.
	SrcRoot string
}

// Resolve extracts the PACKAGE_VERSION constant from the update helper.
func (s *ClangSource) Resolve(ctx context.Context) (string, error) {
	helper := filepath.Join(s.SrcRoot, "tools", "clang", "scripts", "update.py")

	contents, err := os.ReadFile(helper)
	if err != nil {
		logger.WarnKV(ctx, "Could not read clang update helper", "path", helper, "error", err)
		return "", nil
	}

	m := packageVersionPattern.FindSubmatch(contents)
	if m == nil {
		logger.WarnKV(ctx, "Clang update helper declares no package version", "path", helper)
		return "", nil
	}

	return string(m[1]), nil
}

// NaClSource resolves the revision of the embedded native_client
// sub-repository, via git when repository metadata is available and via
// `gclient revinfo` otherwise.
type NaClSource struct {
	// SrcRoot is the build tree root containing native_client/.
	SrcRoot string
	// Runner executes git and gclient.
	Runner command.Runner
}

// Resolve determines the native_client revision.
// With git submodules the directory always exists regardless of whether it
// is cloned, so README.md is used as the cloned-ness marker.
func (s *NaClSource) Resolve(ctx context.Context) (string, error) {
	naclDir := filepath.Join(s.SrcRoot, "native_client")

	if _, err := os.Stat(filepath.Join(naclDir, "README.md")); err != nil {
		logger.Info(ctx, "native_client is not cloned, skipping")
		return "", nil
	}

	if info, err := os.Stat(filepath.Join(naclDir, ".git")); err == nil && info.IsDir() {
		return s.gitRevision(ctx, naclDir)
	}

	// A work tree without .git directories, e.g. a detached export.
	// Fall back to the slower gclient revinfo lookup.
	return s.revinfoRevision(ctx)
}

// gitRevision asks git for the latest commit hash of the checkout.
func (s *NaClSource) gitRevision(ctx context.Context, dir string) (string, error) {
	result, err := s.Runner.Run(ctx, command.Request{
		Name: "git",
		Args: []string{"log", "-1", "--format=%H"},
		Dir:  dir,
	})
	if err != nil {
		logger.WarnKV(ctx, "Could not query native_client git revision",
			"error", err, "output", result.Output)
		return "", nil
	}

	return strings.TrimSpace(result.Output), nil
}

// revinfoRevision queries `gclient revinfo` filtered to the sub-repository
// path and parses the expected "src/native_client: {url}@{commit}" line.
func (s *NaClSource) revinfoRevision(ctx context.Context) (string, error) {
	result, err := s.Runner.Run(ctx, command.Request{
		Name: "gclient",
		Args: []string{"revinfo", "--filter=src/native_client"},
		Env:  []string{"DEPOT_TOOLS_UPDATE=0"},
	})
	if err != nil {
		logger.WarnKV(ctx, "gclient revinfo failed", "error", err, "output", result.Output)
		return "", nil
	}

	commit, ok := parseRevinfo(result.Output)
	if !ok {
		output := strings.TrimSpace(result.Output)
		if output == "" {
			output = "<empty>"
		}

		logger.Warnf(ctx, "Could not parse output of 'gclient revinfo --filter=src/native_client': %s", output)
		logger.Warn(ctx, "native_client seems present, but neither Git nor gclient know its revision?")

		return "", nil
	}

	return commit, nil
}

// parseRevinfo extracts the commit from a single "path: url@commit" line.
// Multiple lines or alternate formats are treated as unresolved.
func parseRevinfo(output string) (string, bool) {
	output = strings.TrimSpace(output)
	if output == "" || strings.ContainsRune(output, '\n') {
		return "", false
	}

	parts := strings.Split(output, "@")
	if len(parts) < 2 {
		return "", false
	}

	commit := parts[1]
	if !commitPattern.MatchString(commit) {
		return "", false
	}

	return commit, true
}

// Fixed is a Source whose revision is a constant literal.
type Fixed string

// Resolve returns the literal revision.
func (f Fixed) Resolve(context.Context) (string, error) {
	return string(f), nil
}
