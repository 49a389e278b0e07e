// Package shared holds code used across packages that belongs to no
// pipeline stage. Its testutil subpackage provides a buffered slog handler
// for log assertions and helpers that write xlsx fixtures with excelize.
package shared
