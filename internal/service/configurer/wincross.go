package configurer

import (
	"bytes"
	"context"
	"crypto"
	"crypto/sha512"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	goupdate "github.com/doitdistributed/go-update"

	"github.com/oshokin/reclient-cfgs/internal/logger"
)

// winCrossDirName is the platform-specific subdirectory fetched packages may
// carry for the Windows cross-compile target.
const winCrossDirName = "win-cross"

// copyWinCrossCfgs mirrors <toolchain>/win-cross/*.cfg from a fetched package
// into <cfgs_dir>/win-cross/<toolchain>/. Copies are used instead of symlinks
// as Windows may not support them.
func (r *runner) copyWinCrossCfgs(ctx context.Context, toolchainName string) error {
	destDir := filepath.Join(r.cfgsDir, winCrossDirName, toolchainName)
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", destDir, err)
	}

	srcDir := filepath.Join(r.cfgsDir, toolchainName, winCrossDirName)
	if _, err := os.Stat(srcDir); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}

		return fmt.Errorf("stat %s: %w", srcDir, err)
	}

	cfgs, err := filepath.Glob(filepath.Join(srcDir, "*.cfg"))
	if err != nil {
		return fmt.Errorf("list %s: %w", srcDir, err)
	}

	for _, cfg := range cfgs {
		dest := filepath.Join(destDir, filepath.Base(cfg))

		logger.Infof(ctx, "Copy from %s to %s", cfg, dest)

		if err = replaceFile(cfg, dest); err != nil {
			return fmt.Errorf("copy %s: %w", cfg, err)
		}
	}

	return nil
}

// replaceFile applies src's contents over dest with a verified checksum and a
// known mode. A pre-existing destination may have been fetched read-only, so
// its permissions are widened first to not block the replacement.
func replaceFile(src, dest string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}

	if _, err = os.Stat(dest); err == nil {
		if err = os.Chmod(dest, 0o777); err != nil {
			return err
		}
	} else if errors.Is(err, os.ErrNotExist) {
		// go-update replaces an existing target; seed an empty one.
		var f *os.File

		if f, err = os.Create(dest); err != nil {
			return err
		}

		if err = f.Close(); err != nil {
			return err
		}
	} else {
		return err
	}

	checksum := sha512.Sum512(data)

	options := goupdate.Options{
		TargetPath: dest,
		TargetMode: 0o644,
		Checksum:   checksum[:],
		Hash:       crypto.SHA512,
	}
	if err = goupdate.Apply(bytes.NewReader(data), options); err != nil {
		return err
	}

	oldFile := dest + ".old"
	if _, err = os.Stat(oldFile); err == nil {
		_ = os.Remove(oldFile)
	}

	return nil
}
