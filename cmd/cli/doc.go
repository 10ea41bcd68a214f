// Package cli constructs the gitcollect command-line interface. It wires the Cobra command hierarchy to the
// Viper configuration loader, the zap logger and the collect, records and agent commands, connecting the collect
// command to its record store, changelog notifiers and remote agents.
package cli
