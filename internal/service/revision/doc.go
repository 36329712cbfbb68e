// Package revision resolves the checked-out revision of each toolchain whose
// remote-execution configs are fetched. Resolution failures are non-fatal by
// contract: a source that cannot determine a revision returns an empty string
// and the toolchain is skipped by the caller.
package revision
