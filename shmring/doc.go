// Package shmring is the status channel core: a lock-free shared-memory
// ring broadcasting the most recent desktop snapshots from one window
// manager process to any number of status bar processes, plus a small
// reverse ring carrying bar commands back.
//
// The snapshot ring uses the seqlock pattern: each slot carries a sequence
// number that is odd while the producer is writing and even when stable, so
// readers detect torn reads and retry instead of taking a process-shared
// lock that a crash could leave held. The producer never blocks and never
// waits for consumers; publishing overwrites the oldest slot when the ring
// is full, and each consumer tracks its own cursor, reporting overwritten
// publishes as a skipped count rather than an error.
package shmring
