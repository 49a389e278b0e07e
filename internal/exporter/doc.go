// Package exporter reads and writes the firm-year CSV tables.
//
// Files are UTF-8 with a byte order mark, written atomically through
// files.Manager. The first two columns are always Stkcd and Year; numbers
// use the shortest round-trip representation and missing values are empty
// cells.
package exporter
