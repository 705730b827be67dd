// Package bridge exposes a shared-memory status channel over WebSocket for
// renderers that cannot map the segment themselves, such as browser or
// webview based bars.
//
// The bridge attaches to a channel as one consumer, fans snapshots out to
// every connected client, and forwards command messages from clients back to
// the window manager through the channel's command ring.
//
// Endpoints:
//   - GET /         service status
//   - GET /healthz  producer liveness
//   - GET /metrics  Prometheus metrics
//   - GET /stream   WebSocket snapshot stream
package bridge
