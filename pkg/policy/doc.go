// Package policy lints resolved chart configurations with Open Policy Agent.
//
// Every policy is a Rego module defining a deny set. Each entry is either a
// message string or an object with message, path and severity fields:
//
//	package chartkit.custom.dpi
//
//	import rego.v1
//
//	deny contains violation if {
//	    input.chart.dpi < 150
//	    violation := {
//	        "message": "dpi is too low for print",
//	        "path": "chart.dpi",
//	        "severity": "error",
//	    }
//	}
//
// The input document carries the chart type, the resolved chart block, the
// classified data source and the series count. Entries without a severity
// take the policy's default.
//
// # Built-in Policies
//
//  1. output-naming - output names must be plain file names
//  2. title-length - titles and subtitles should fit on one line
//  3. series-count - charts should not plot more series than colors can distinguish
//  4. source-attribution - remote and computed data should be credited
//
// # Custom Policies
//
// Custom policies are loaded from .rego or .json files:
//
//	eng, err := policy.NewEngine(logger)
//	if err != nil {
//	    return err
//	}
//	if err := eng.LoadPolicies(ctx, []string{"policies/"}); err != nil {
//	    return err
//	}
//
// Leading comments of a .rego file become its description; `# severity:` and
// `# tags:` comment lines set those fields. Engine.Watch reloads custom
// policies when their files change.
package policy
