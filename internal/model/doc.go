// Package model holds the values shared by every pdevtools command.
//
// A pipeline (PipelineKind) is an ordered list of Stages, one per tool
// invocation. Running it yields one StageResult per stage, collected in an
// Outcome whose exit code becomes the process exit status.
//
// Failures that must end the process with a specific status are returned
// as *CLIError, which pairs an ExitCode with a message and a cause.
package model
