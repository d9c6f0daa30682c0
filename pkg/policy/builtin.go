package policy

// BuiltinPolicies returns the lint policies shipped with chartkit.
func BuiltinPolicies() []Policy {
	return []Policy{
		outputNamingPolicy(),
		titleLengthPolicy(),
		seriesCountPolicy(),
		sourceAttributionPolicy(),
	}
}

// outputNamingPolicy keeps output names usable as file names.
func outputNamingPolicy() Policy {
	return Policy{
		Name:        "output-naming",
		Description: "Output names must be plain file names without directories or extensions",
		Severity:    SeverityError,
		Enabled:     true,
		Builtin:     true,
		Tags:        []string{"naming", "output"},
		Rego: `package chartkit.lint.output

import rego.v1

deny contains violation if {
	output := input.chart.output
	is_string(output)
	not regex.match("^[A-Za-z0-9][A-Za-z0-9_-]*$", output)
	violation := {
		"message": sprintf("output name '%s' must contain only letters, digits, underscores and hyphens", [output]),
		"path": "chart.output",
		"severity": "error",
	}
}

deny contains violation if {
	output := input.chart.output
	is_string(output)
	count(output) > 100
	violation := {
		"message": sprintf("output name is %d characters long; keep it under 100", [count(output)]),
		"path": "chart.output",
		"severity": "warning",
	}
}
`,
	}
}

// titleLengthPolicy flags titles too long to fit above a chart.
func titleLengthPolicy() Policy {
	return Policy{
		Name:        "title-length",
		Description: "Titles and subtitles should fit on one line",
		Severity:    SeverityWarning,
		Enabled:     true,
		Builtin:     true,
		Tags:        []string{"annotation"},
		Rego: `package chartkit.lint.title

import rego.v1

max_title := 80

max_subtitle := 120

deny contains violation if {
	title := input.chart.title
	is_string(title)
	count(title) > max_title
	violation := {
		"message": sprintf("title is %d characters long; titles over %d characters wrap", [count(title), max_title]),
		"path": "chart.title",
	}
}

deny contains violation if {
	title := input.chart.title
	is_string(title)
	trim_space(title) == ""
	violation := {
		"message": "title is blank",
		"path": "chart.title",
	}
}

deny contains violation if {
	subtitle := input.chart.subtitle
	is_string(subtitle)
	count(subtitle) > max_subtitle
	violation := {
		"message": sprintf("subtitle is %d characters long; subtitles over %d characters wrap", [count(subtitle), max_subtitle]),
		"path": "chart.subtitle",
	}
}
`,
	}
}

// seriesCountPolicy flags charts with more series than a palette can tell apart.
func seriesCountPolicy() Policy {
	return Policy{
		Name:        "series-count",
		Description: "Charts should not plot more series than colors can distinguish",
		Severity:    SeverityWarning,
		Enabled:     true,
		Builtin:     true,
		Tags:        []string{"series", "readability"},
		Rego: `package chartkit.lint.series

import rego.v1

max_series := 8

deny contains violation if {
	input.series > max_series
	violation := {
		"message": sprintf("chart plots %d series; more than %d are hard to tell apart", [input.series, max_series]),
		"path": "chart",
	}
}

deny contains violation if {
	input.chart_type == "line"
	input.series > 1
	input.chart.legend == false
	violation := {
		"message": "line chart with several series has its legend disabled",
		"path": "chart.legend",
	}
}
`,
	}
}

// sourceAttributionPolicy asks for attribution when data comes from outside the repository.
func sourceAttributionPolicy() Policy {
	return Policy{
		Name:        "source-attribution",
		Description: "Charts drawn from remote or computed data should credit their source",
		Severity:    SeverityInfo,
		Enabled:     true,
		Builtin:     true,
		Tags:        []string{"annotation", "attribution"},
		Rego: `package chartkit.lint.attribution

import rego.v1

external_kinds := {"remote_csv", "controller_method", "custom_controller_file"}

deny contains violation if {
	external_kinds[input.source.kind]
	not attributed
	violation := {
		"message": sprintf("data comes from %s but chart.source is not set", [input.source.kind]),
		"path": "chart.source",
	}
}

attributed if {
	is_string(input.chart.source)
	trim_space(input.chart.source) != ""
}
`,
	}
}
