// Package cipd wraps the CIPD command line client. Ensure materializes a
// versioned package into a local directory with integrity checking; failures
// are classified into authentication errors (detected by probing
// `cipd auth-info`) and generic fetch errors, both carrying captured output.
package cipd
