// Package app wires configuration, logging, telemetry and the pipeline
// stages together.
//
// Each stage (clean, tfp, regress, archive) runs inside an OpenTelemetry
// span, is timed into the stage duration histogram and logs its start and
// outcome with the run id carried by the context. Stages materialize their
// output on disk before the next one reads it, so they can also be run one
// at a time from the command line.
package app
