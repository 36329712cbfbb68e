package platform

import "runtime"

// Profile captures the platform-dependent configuration choices.
type Profile struct {
	// OS is the GOOS value the profile was resolved for.
	OS string
	// ExecutableSuffix is appended to tool paths (".exe" on Windows).
	ExecutableSuffix string
	// AuthFlags is the auth-flags block substituted into reproxy.cfg.
	AuthFlags string
}

// autoAuthFlags is used where interactive gcert-based auth is available.
const autoAuthFlags = `
# Googler auth flags
automatic_auth=true
gcert_refresh_timeout=20
`

// adcAuthFlags falls back to application default credentials.
const adcAuthFlags = `
# ADC auth flags
use_application_default_credentials=true
`

// Current resolves the profile for the running operating system.
func Current() Profile {
	return ForOS(runtime.GOOS)
}

// ForOS resolves the profile for the given GOOS value.
func ForOS(goos string) Profile {
	if goos == "windows" {
		return Profile{
			OS:               goos,
			ExecutableSuffix: ".exe",
			AuthFlags:        adcAuthFlags,
		}
	}

	return Profile{
		OS:        goos,
		AuthFlags: autoAuthFlags,
	}
}
