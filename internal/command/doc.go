// Package command provides a narrow abstraction over running external tools
// (git, gclient, cipd) with captured output, so services can substitute fakes
// returning canned output and exit codes in tests.
package command
