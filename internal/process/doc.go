// Package process implements the user-space process model: the unit handle
// arena, the process table with pid allocation and zombie bookkeeping, the
// waiter registry behind waitpid, and the foreground router.
//
// Nothing in this package blocks or locks. A "blocking" wait is represented
// by a queued Waiter that is resolved later by RecordExit; callers own all
// synchronization (see dispatch.Session).
//
// Pids are allocated from 1 and never reused within a table. A pid is
// Running from spawn acceptance until its exit is recorded; it then either
// reaps immediately into a queued waiter or stays Exited (a zombie) until a
// wait call collects it. Reaped entries are forgotten.
package process
