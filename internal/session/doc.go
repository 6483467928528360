// Package session owns the single live engine instance and its health state
// machine.
//
// A Session holds one engine slot, the output registry bound to it, and a
// pending reset flag. Every engine call happens with the session mutex held:
// feeds from the playback goroutine and the live path serialize, and a reset
// destroys the old engine and constructs the new one before any later feed
// proceeds. Outputs keep their identity across resets and receive exactly
// one Reset call per reset transition.
package session
