// Package stores persists chart generation runs in SQLite. Each run keeps
// the outcome of every document it processed, for `chartkit history`.
package stores
