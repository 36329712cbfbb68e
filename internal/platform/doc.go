// Package platform resolves the platform-conditional pieces of the
// configuration (executable suffix, reproxy auth-flags block) into a single
// profile value computed once at startup.
package platform
