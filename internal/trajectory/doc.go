// Package trajectory persists engine output to SQLite.
//
// A Store holds runs, the poses and keyframes published during each run, and
// the engine resets that split a run into generations. The Recorder is an
// engine output that queues events for a single writer goroutine so the
// feeding goroutine never waits on the database; when the queue is full,
// events are dropped and counted. ExportTUM writes a run's poses in the TUM
// RGB-D trajectory format.
package trajectory
