package schema

import "github.com/chartkit/chartkit/pkg/engine"

var (
	scaleType    = OneOf("billions", "millions", "thousands", "percentage") + " | string"
	axisType     = OneOf("x", "y", "both")
	fraction     = Between(0, 1)
	positiveInt  = "int & >0"
	nonNegNumber = "number & >=0"
)

// baseFields are shared by every chart type.
var baseFields = []Field{
	{Name: "output", Type: TypeString, Required: true, Step: engine.StepAnnotationOutput, Description: "Base filename for chart outputs"},
	{Name: "title", Type: TypeString, Required: true, Prose: true, Description: "Chart title"},
	{Name: "subtitle", Type: TypeString, Prose: true, Description: "Chart subtitle"},
	{Name: "source", Type: TypeString, Prose: true, Description: "Data source attribution"},
	{Name: "figsize", Type: ListOf(TypeNumber), Description: "Figure size as [width, height] in inches"},
	{Name: "dpi", Type: positiveInt, Description: "Dots per inch for output resolution"},
	{Name: "export_data", Step: engine.StepAnnotationOutput, Description: "Data exported alongside the chart"},
	{Name: "matplotlib_config", Opaque: true, Description: "Raw renderer arguments passed through unchanged"},
}

var axisFields = []Field{
	{Name: "xlim", Type: TypeLimits, Description: "X-axis limits as [min, max] or {left, right}"},
	{Name: "ylim", Type: TypeLimits, Description: "Y-axis limits as [min, max] or {bottom, top}"},
	{Name: "xlabel", Type: TypeString, Prose: true, Description: "X-axis label text"},
	{Name: "ylabel", Type: TypeString, Prose: true, Description: "Y-axis label text"},
	{Name: "tick_rotation", Type: Between(-360, 360), Description: "Rotation of x-axis tick labels in degrees"},
	{Name: "tick_size", Type: nonNegNumber, Description: "Font size of tick labels"},
	{Name: "label_size", Type: nonNegNumber, Description: "Font size of axis labels"},
}

var gridFields = []Field{
	{Name: "grid", Type: TypeToggle, Default: true, Description: "Grid display or grid arguments"},
	{Name: "grid_axis", Type: axisType, Default: "y", Description: "Axis the grid lines follow"},
}

var legendFields = []Field{
	{Name: "legend", Type: TypeToggle, Description: "Legend display or legend arguments"},
}

var tickFormatFields = []Field{
	{Name: "x_tick_format", Type: TypeString, Description: "Format spec for x-axis tick labels"},
	{Name: "y_tick_format", Type: TypeString, Description: "Format spec for y-axis tick labels"},
	{Name: "fiscal_year_ticks", Type: TypeBool, Description: "Format x-axis ticks as fiscal years"},
	{Name: "max_xticks", Type: positiveInt, Description: "Maximum number of x-axis ticks"},
}

var scaleFields = []Field{
	{Name: "scale", Type: scaleType, Description: "Scale applied to value labels"},
	{Name: "axis_scale", Type: axisType, Default: "y", Description: "Axis the scale applies to"},
}

var sortFields = []Field{
	{Name: "sort_by", Type: TypeString, Description: "Sort criterion"},
	{Name: "sort_ascending", Type: TypeBool, Default: false, Description: "Sort direction"},
}

var valueDisplayFields = []Field{
	{Name: "show_values", Type: TypeBool, Default: false, Description: "Draw value labels on bars"},
	{Name: "value_format", Type: TypeString, Description: "Format spec for value labels"},
	{Name: "value_suffix", Type: TypeString, Prose: true, Description: "Text appended to value labels"},
	{Name: "value_offset", Type: TypeNumber, Description: "Offset of value labels from bar ends"},
	{Name: "value_fontsize", Type: "number | string", Description: "Font size of value labels"},
	{Name: "value_color", Type: TypeString, Color: true, Description: "Color of value labels"},
	{Name: "value_weight", Type: OneOf("normal", "bold") + " | string", Description: "Font weight of value labels"},
}

var barStylingFields = []Field{
	{Name: "width", Type: fraction, Default: 0.8, Description: "Bar width as a fraction of category spacing"},
	{Name: "height", Type: fraction, Default: 0.8, Description: "Bar height for horizontal bars"},
	{Name: "alpha", Type: fraction, Default: 1.0, Description: "Bar opacity"},
	{Name: "edgecolor", Type: TypeString, Color: true, Description: "Bar border color"},
	{Name: "linewidth", Type: nonNegNumber, Default: 0.5, Description: "Bar border width in points"},
	{Name: "orientation", Type: OneOf("vertical", "horizontal"), Default: "vertical", Description: "Bar direction"},
	{Name: "show_category_ticks", Type: TypeBool, Default: false, Description: "Show category tick marks"},
	{Name: "baseline", Type: TypeNumber, Default: 0, Description: "Value bars grow from"},
}

// lineStyleFields are the per-series styling fields of line charts.
var lineStyleFields = []Field{
	{Name: "color", Type: TypeStrings, Color: true, Description: "Line color or per-series colors"},
	{Name: "linestyle", Type: TypeStrings, Description: "Line style or per-series styles"},
	{Name: "linewidth", Type: TypeNumbers, Description: "Line width or per-series widths"},
	{Name: "marker", Type: TypeStrings, Description: "Marker style or per-series markers"},
	{Name: "markersize", Type: TypeNumbers, Description: "Marker size or per-series sizes"},
	{Name: "alpha", Type: "number & >=0 & <=1 | [...(number & >=0 & <=1 | null)]", Description: "Opacity or per-series opacity"},
	{Name: "labels", Type: TypeStrings, Prose: true, Step: engine.StepVisualDesign, Description: "Legend label or per-series labels"},
}

// SeriesStyleFields are correlated with the number of line series.
var SeriesStyleFields = []string{"color", "linestyle", "linewidth", "marker", "markersize", "alpha", "labels"}

func lineFields() []Field {
	return []Field{
		{Name: "x", Required: true, Binding: true, Description: "X-axis values"},
		{Name: "y", Required: true, Binding: true, Description: "Y-axis values or a list of series"},
		{Name: "data", Binding: true, Description: "Data frame reference"},
		{Name: "y_right", Binding: true, Description: "Series drawn against a right-hand y-axis"},
		{Name: "ylim_right", Type: TypeLimits, Description: "Right y-axis limits"},
		{Name: "ylabel_right", Type: TypeString, Prose: true, Description: "Right y-axis label"},
		{Name: "y_tick_format_right", Type: TypeString, Description: "Format spec for right y-axis ticks"},
		{Name: "scale_right", Type: scaleType, Description: "Scale for right y-axis values"},
		{Name: "series_types", Type: ListOf(TypeString), Description: "Semantic series types"},
		{Name: "direct_line_labels", Type: TypeToggle, Default: false, Description: "Label line ends instead of using a legend"},
		{Name: "hlines", Type: "number | [..._] | {[string]: _}", Description: "Y-values of horizontal reference lines"},
		{Name: "hline_colors", Type: TypeStrings, Color: true, Description: "Colors of horizontal lines"},
		{Name: "hline_styles", Type: TypeStrings, Description: "Styles of horizontal lines"},
		{Name: "hline_widths", Type: TypeNumbers, Description: "Widths of horizontal lines"},
		{Name: "hline_labels", Type: TypeStrings, Prose: true, Description: "Labels of horizontal lines"},
		{Name: "hline_alpha", Type: TypeNumbers, Default: 0.7, Description: "Opacity of horizontal lines"},
		{Name: "hline_label_position", Type: OneOf("right", "left", "center"), Default: "right", Description: "Placement of horizontal line labels"},
		{Name: "hline_label_offset", Type: TypeNumber, Default: 0.02, Description: "Inset of horizontal line labels"},
		{Name: "hline_label_fontsize", Type: nonNegNumber, Description: "Font size of horizontal line labels"},
		{Name: "hline_label_bbox", Type: TypeBool, Default: true, Description: "Draw a box behind horizontal line labels"},
		{Name: "xticks", Type: TypeList, Description: "Custom x-axis tick positions"},
		{Name: "xticklabels", Type: ListOf(TypeString), Description: "Custom x-axis tick labels"},
		{Name: "series_overrides", Type: TypeMap, Description: "Per-series style overrides keyed by series index"},
	}
}

func lineSchema(chartType, description string) *ChartSchema {
	s := NewChartSchema(chartType, description,
		baseFields, axisFields, gridFields, legendFields, tickFormatFields, scaleFields,
		lineFields(), lineStyleFields,
	)
	s.SeriesOverrides = true
	return s.WithSeries([]string{"y", "y_right"}, SeriesStyleFields)
}

// Builtin returns the built-in chart schemas.
func Builtin() []*ChartSchema {
	scatter := lineSchema("scatter", "Points without connecting lines")
	for i, f := range scatter.Fields {
		switch f.Name {
		case "marker":
			scatter.Fields[i].Default = "o"
		case "linestyle":
			scatter.Fields[i].Default = "None"
		}
	}

	return []*ChartSchema{
		lineSchema("line", "Line chart with one or more series"),
		scatter,

		NewChartSchema("bar", "Single series bar chart",
			baseFields, axisFields, gridFields, legendFields, tickFormatFields, scaleFields,
			valueDisplayFields, barStylingFields, sortFields,
			[]Field{
				{Name: "categories", Required: true, Binding: true, Description: "Category labels"},
				{Name: "values", Required: true, Binding: true, Description: "Bar values"},
				{Name: "colors", Type: TypeStrings, Color: true, Description: "Bar color or per-bar colors"},
				{Name: "positive_color", Type: TypeString, Color: true, Description: "Color of positive values"},
				{Name: "negative_color", Type: TypeString, Color: true, Description: "Color of negative values"},
			},
		),

		NewChartSchema("stacked_bar", "Bars stacked from several series",
			baseFields, axisFields, gridFields, legendFields, tickFormatFields, scaleFields,
			valueDisplayFields, barStylingFields, sortFields,
			[]Field{
				{Name: "categories", Required: true, Binding: true, Description: "Category labels"},
				{Name: "values", Required: true, Binding: true, Description: "One list of values per stack layer"},
				{Name: "labels", Type: TypeStrings, Prose: true, Step: engine.StepVisualDesign, Description: "Layer labels"},
				{Name: "colors", Type: TypeStrings, Color: true, Description: "Layer colors"},
				{Name: "value_threshold", Type: nonNegNumber, Description: "Smallest value that gets a label"},
				{Name: "stack_labels", Type: TypeBool, Default: false, Description: "Label stack totals"},
				{Name: "stack_label_format", Type: TypeString, Description: "Format spec for stack totals"},
				{Name: "stack_label_suffix", Type: TypeString, Description: "Text appended to stack totals"},
				{Name: "bottom_values", Type: TypeList, Description: "Values the first layer starts from"},
			},
		).WithSeries([]string{"values"}, []string{"labels", "colors"}),

		NewChartSchema("grouped_bar", "Side by side bars per category",
			baseFields, axisFields, gridFields, legendFields, tickFormatFields, scaleFields,
			valueDisplayFields,
			[]Field{
				{Name: "categories", Required: true, Binding: true, Description: "Category labels"},
				{Name: "groups", Type: ListOf(TypeMap), Required: true, Binding: true, Description: "Groups with label, values and color"},
				{Name: "colors", Type: TypeStrings, Color: true, Description: "Group colors"},
				{Name: "labels", Type: TypeStrings, Prose: true, Step: engine.StepVisualDesign, Description: "Group labels"},
				{Name: "width", Type: fraction, Description: "Total width of a category's bars"},
				{Name: "bar_width", Type: fraction, Description: "Width of a single bar"},
				{Name: "alpha", Type: fraction, Description: "Bar opacity"},
				{Name: "edgecolor", Type: TypeString, Color: true, Description: "Bar border color"},
				{Name: "linewidth", Type: nonNegNumber, Description: "Bar border width"},
				{Name: "show_yticks", Type: TypeBool, Description: "Show y-axis ticks"},
				{Name: "value_prefix", Type: TypeString, Description: "Text prepended to value labels"},
				{Name: "x_axis_format", Type: TypeString, Description: "Format of x-axis values"},
				{Name: "y_axis_format", Type: TypeString, Description: "Format of y-axis values"},
			},
		),

		NewChartSchema("lollipop", "Ranges drawn as stems between two markers",
			baseFields, axisFields, gridFields, tickFormatFields, scaleFields, sortFields,
			[]Field{
				{Name: "categories", Required: true, Binding: true, Description: "Category labels"},
				{Name: "start_values", Required: true, Binding: true, Description: "Range starts"},
				{Name: "end_values", Required: true, Binding: true, Description: "Range ends"},
				{Name: "colors", Type: TypeStrings, Color: true, Description: "Stem colors"},
				{Name: "marker_size", Type: nonNegNumber, Description: "Marker size"},
				{Name: "line_width", Type: nonNegNumber, Description: "Stem width"},
				{Name: "marker_style", Type: TypeString, Description: "Marker style"},
				{Name: "linestyle", Type: TypeStrings, Description: "Stem style"},
				{Name: "alpha", Type: fraction, Description: "Opacity"},
				{Name: "start_marker_color", Type: TypeStrings, Color: true, Description: "Start marker colors"},
				{Name: "end_marker_color", Type: TypeStrings, Color: true, Description: "End marker colors"},
				{Name: "value_labels", Type: TypeBool, Description: "Label range ends"},
				{Name: "range_labels", Type: TypeBool, Description: "Label range durations"},
				{Name: "value_format", Type: TypeString, Description: "Format spec of value labels"},
				{Name: "value_suffix", Type: TypeString, Description: "Text appended to value labels"},
				{Name: "range_format", Type: TypeString, Description: "Format spec of range labels"},
				{Name: "range_suffix", Type: TypeString, Description: "Text appended to range labels"},
				{Name: "category_wrap_length", Type: positiveInt, Description: "Wrap width of category labels"},
				{Name: "y_axis_position", Type: OneOf("left", "right"), Default: "left", Description: "Side of the category axis"},
				{Name: "hide_y_spine", Type: TypeBool, Description: "Hide the category axis line"},
			},
		),

		NewChartSchema("donut", "Proportions drawn as a ring",
			baseFields,
			[]Field{
				{Name: "values", Required: true, Binding: true, Description: "Segment values"},
				{Name: "labels", Binding: true, Description: "Segment labels"},
				{Name: "colors", Type: ListOf(TypeString), Color: true, Description: "Segment colors"},
				{Name: "hole_size", Type: "number & >=0 & <1", Default: 0.7, Description: "Radius of the hole as a fraction"},
				{Name: "center_text", Type: TypeString, Prose: true, Description: "Text in the hole"},
				{Name: "center_color", Type: TypeString, Color: true, Description: "Color of the hole"},
				{Name: "show_percentages", Type: TypeBool, Default: true, Description: "Label segments with percentages"},
				{Name: "label_wrap_length", Type: positiveInt, Description: "Wrap width of segment labels"},
				{Name: "label_distance", Type: nonNegNumber, Default: 1.4, Description: "Distance of labels from the center"},
				{Name: "wedgeprops", Type: TypeMap, Description: "Wedge drawing arguments"},
			},
		),

		NewChartSchema("waffle", "Proportions drawn as a grid of blocks",
			baseFields, legendFields,
			[]Field{
				{Name: "values", Required: true, Binding: true, Description: "Block counts per category"},
				{Name: "labels", Type: TypeStrings, Prose: true, Step: engine.StepVisualDesign, Description: "Category labels"},
				{Name: "rows", Type: positiveInt, Description: "Grid rows"},
				{Name: "columns", Type: positiveInt, Description: "Grid columns"},
				{Name: "colors", Type: ListOf(TypeString), Color: true, Description: "Category colors"},
				{Name: "vertical", Type: TypeBool, Default: false, Description: "Fill columns first"},
				{Name: "starting_location", Type: OneOf("NW", "NE", "SW", "SE"), Default: "SW", Description: "Corner filling starts from"},
				{Name: "interval_ratio_x", Type: nonNegNumber, Description: "Horizontal block spacing"},
				{Name: "interval_ratio_y", Type: nonNegNumber, Description: "Vertical block spacing"},
				{Name: "pywaffle_config", Opaque: true, Description: "Raw waffle renderer arguments"},
			},
		),

		NewChartSchema("us_map_pie", "Pie charts placed on a map of states",
			baseFields,
			[]Field{
				{Name: "pie_data", Type: TypeMap, Required: true, Binding: true, Description: "Pie values keyed by location"},
				{Name: "pie_size_column", Type: TypeString, Description: "Column scaling pie size"},
				{Name: "base_pie_size", Type: nonNegNumber, Description: "Default pie radius"},
				{Name: "max_pie_size", Type: nonNegNumber, Description: "Largest pie radius"},
				{Name: "min_pie_size", Type: nonNegNumber, Description: "Smallest pie radius"},
				{Name: "custom_locations", Type: TypeMap, Description: "Extra named locations"},
				{Name: "show_state_boundaries", Type: TypeBool, Default: true, Description: "Draw state outlines"},
				{Name: "show_pie_labels", Type: TypeBool, Description: "Label pies"},
				{Name: "show_percentages", Type: "bool | [...bool]", Description: "Label slices with percentages"},
				{Name: "legend_location", Type: TypeString, Description: "Legend placement"},
				{Name: "pie_edge_color", Type: TypeString, Color: true, Description: "Pie border color"},
				{Name: "pie_edge_width", Type: nonNegNumber, Description: "Pie border width"},
				{Name: "offset_line_color", Type: TypeString, Color: true, Description: "Color of lines to offset pies"},
				{Name: "offset_line_style", Type: TypeString, Description: "Style of lines to offset pies"},
				{Name: "offset_line_width", Type: nonNegNumber, Description: "Width of lines to offset pies"},
				{Name: "auto_expand_bounds", Type: TypeBool, Description: "Grow the map to fit offset pies"},
				{Name: "padding_factor", Type: nonNegNumber, Description: "Padding around expanded bounds"},
			},
		),

		NewChartSchema("line_subplots", "Grid of small line charts",
			baseFields, axisFields, gridFields, legendFields, tickFormatFields, scaleFields,
			[]Field{
				{Name: "subplot_data", Type: ListOf(TypeMap), Required: true, Binding: true, Description: "One mapping per subplot"},
				{Name: "grid_shape", Type: ListOf(positiveInt), Description: "Rows and columns of the grid"},
				{Name: "shared_x", Type: TypeBool, Default: true, Description: "Share the x-axis"},
				{Name: "shared_y", Type: TypeBool, Default: true, Description: "Share the y-axis"},
				{Name: "shared_legend", Type: TypeBool, Default: false, Description: "Draw one legend for all subplots"},
				{Name: "legend_position", Type: ListOf(TypeNumber), Description: "Figure position of the shared legend"},
				{Name: "subplot_title_size", Type: nonNegNumber, Description: "Font size of subplot titles"},
				{Name: "x_axis_format", Type: TypeString, Description: "Format of x-axis values"},
				{Name: "y_axis_format", Type: TypeString, Description: "Format of y-axis values"},
				{Name: "xticks", Type: TypeList, Description: "Custom x-axis tick positions"},
				{Name: "xticklabels", Type: ListOf(TypeString), Description: "Custom x-axis tick labels"},
			},
		),
	}
}
