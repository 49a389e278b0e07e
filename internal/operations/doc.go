// Package operations records pipeline runs. A RunManifest lists the stages
// an invocation ran with their status and timing, the source files it read
// and the files it produced, and is saved as JSON next to the outputs.
package operations
