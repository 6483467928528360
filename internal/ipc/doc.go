// Package ipc exposes the daemon over JSON-RPC Unix sockets and ships the
// matching client used by the CLI.
//
// It owns socket lifecycle management and the request/response DTOs. Frames
// cross the socket as raw 8-bit grayscale buffers; poses and keyframes use
// the engine types directly so the wire format tracks the engine contract.
package ipc
