// Package segment manages the named shared-memory region backing a status
// channel: creation with exclusive-create semantics, attachment with header
// validation, and unlinking. A segment holds a fixed header, a wake-backend
// scratch area, a ring of snapshot slots and a small command ring; the
// layout is defined here and interpreted by package shmring.
package segment
