// Package config loads process settings for the chartkit commands.
//
// Settings come from three layers, later ones winning:
//
//   - Default values
//   - A settings file, either YAML (.yaml, .yml) or CUE (.cue)
//   - CHARTKIT_* environment variables such as CHARTKIT_LOG_LEVEL or
//     CHARTKIT_CONTROLLER_DIRS (comma separated)
//
// A CUE settings file may use constraints and references:
//
//	cache_size: 256
//	http: {
//	    retry_max: 3
//	    timeout:   "45s"
//	}
//	controller_dirs: ["controllers"]
//	policy_dirs: [for d in controller_dirs {d + "/policies"}]
//
// Unknown keys are rejected so that typos do not silently fall back to
// defaults.
package config
