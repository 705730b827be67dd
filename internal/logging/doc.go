// Package logging provides structured logging for the barlink daemons.
//
// Built on zap for structured, leveled output. Production mode emits JSON;
// development mode emits colored console lines with caller information. All
// output goes to stderr so daemons piping data through stdout stay clean.
package logging
