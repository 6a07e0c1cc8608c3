package params

import "sync/atomic"

// moduleBundleDisallowed gates the legacy ModuleBundle payload kind
// process-wide: true by default, overridable only in test builds (spec.md §5
// "MODULE_BUNDLE_DISALLOWED: a process-wide atomic boolean, true by default,
// overridable only in test builds").
var moduleBundleDisallowed atomic.Bool

func init() {
	moduleBundleDisallowed.Store(true)
}

// AllowModuleBundleForTests flips the gate off. Production callers must
// never reach for this; it exists solely for the ModuleBundle-path test
// coverage spec.md §9 asks implementations to "keep the code path" for.
func AllowModuleBundleForTests() {
	moduleBundleDisallowed.Store(false)
}

// ModuleBundleDisallowed reports whether ModuleBundle payloads are rejected.
func ModuleBundleDisallowed() bool {
	return moduleBundleDisallowed.Load()
}
