// Package store provides the SQLite database that holds table contents for
// the coordinator's writes and the dataflow engine's peeks.
//
// # Built-in functions
//
// Every connection registers three scalar functions:
//   - mz_now(): the timestamp of the running peek (the logical clock
//     otherwise)
//   - mz_upper(path): the upper of the object named "db.schema.item" as the
//     coordinator knew it when the peek was issued, NULL if unknown
//   - read_file(path): the contents of a file as text
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// Connections are opened through a per-Store driver, so several stores in
// one process each see their own clock and peek context.
package store
