// Package snapshot defines the desktop state payload exchanged between the
// window manager and status bar processes, along with its fixed-layout
// binary codec. Values are immutable once published; the codec guarantees
// that encode followed by decode is the identity for any in-range payload.
package snapshot
