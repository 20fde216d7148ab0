package realtime

import "time"

// Security/performance limits for the sync channel.
const (
	// Max bytes per websocket frame read (hard limit). The channel is
	// server-push only, so inbound frames are small or hostile.
	maxFrameBytes = 8 << 10 // 8 KiB

	// Heartbeat defaults (can be overridden by env in gateway.go).
	heartbeatInterval = 25 * time.Second
	heartbeatTimeout  = 5 * time.Second

	// Per-connection inbound rate limits (events per window).
	rateLimitEvents = 30
	rateLimitWindow = 10 * time.Second
)
