// Package main hosts the vodrive CLI entrypoint and command graph.
//
// The Cobra-based command tree translates terminal invocations into IPC calls
// against the daemon, trajectory database queries, and configuration
// scaffolding. Config resolution and socket discovery live in commandContext
// so subcommands only deal with presentation.
package main
