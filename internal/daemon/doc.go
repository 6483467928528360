// Package daemon coordinates the long-running vodrive process.
//
// It wires the controller, the optional trajectory recorder, the websocket
// event hub and the HTTP listener into a single lifecycle with flock-based
// locking to prevent multiple instances. Frame ingestion and reset policy
// live in the controller; the daemon focuses on startup, shutdown and
// exposing controller state to the IPC and HTTP surfaces.
package daemon
