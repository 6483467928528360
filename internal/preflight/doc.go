// Package preflight provides readiness checks for the files and endpoints
// the daemon depends on.
//
// These checks run in two contexts:
//   - The daemon logs a startup snapshot and warns about failed required checks.
//   - The CLI "vodrive status" and "vodrive config validate" commands render the
//     report when the daemon is offline.
//
// Optional checks cover features that degrade gracefully, such as a missing
// image sequence making the controller live-only.
package preflight
