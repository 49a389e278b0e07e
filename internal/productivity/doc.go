// Package productivity builds the production panel from the factor sources
// and estimates firm-level total factor productivity.
package productivity
