package gateway

import "time"

const (
	// Max bytes per websocket frame read (hard limit).
	maxFrameBytes = 16 << 10 // 16 KiB

	defaultSendQueueSize = 64
	minSendQueueSize     = 8

	defaultWriteTimeout = 5 * time.Second
	closeGrace          = 1 * time.Second
)

const (
	// Liveness defaults (overridable via Config).
	defaultLivenessInterval = 5 * time.Second
	defaultLivenessTimeout  = 10 * time.Second

	// Extra slack on top of the probe interval when deciding whether a
	// token would lapse before the next probe.
	defaultRenewalMargin = 2 * time.Second
)
