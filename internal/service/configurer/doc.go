// Package configurer orchestrates a single run: it merges settings, renders
// reproxy.cfg when a template was requested, then resolves a revision per
// toolchain and fetches the matching reclient config package from CIPD,
// copying the win-cross config subtree into place after each fetch.
package configurer
