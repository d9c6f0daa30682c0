// Package frame provides the small columnar table used to carry loaded data
// through resolution.
//
// A Frame holds ordered, equal-length columns. Each column has a dtype
// (int64, float64, bool, object or datetime64[ns]) inferred from its values,
// and nil marks a missing cell. Frames are mutable while a loader prepares
// them; once placed in a resolved context they are treated as read-only.
package frame
