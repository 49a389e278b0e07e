// Package store keeps regression results in a SQLite database so runs can
// be compared after the text report has been overwritten.
package store
