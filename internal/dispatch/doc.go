// Package dispatch runs a session: one tree of units rooted at a single
// root unit, driven by the events its host reports.
//
// The Session owns the process table, waiter registry and foreground
// router. Every host event, resize and keystroke is applied by one
// handler at a time, so those structures see a single writer.
//
// Key features:
//   - spawn/wait/setfg requests answered with exactly one reply per request id
//   - blocking waits suspended as queued replies, never as blocked handlers
//   - zombies kept until collected, orphans reparented on reap
//   - foreground handed back to the nearest live ancestor on exit
//   - per-unit output buffering until the unit has loaded
//
// Lifecycle per unit:
//   - load     → answer the spawner with {pid}, flush buffered output
//   - error    → answer the spawner with {pid:-ENOENT}, parent takes the foreground
//   - exit     → answer waiters or keep a zombie, retarget the foreground
//   - root exit → print the final status and finish the session
package dispatch
