// Package helper carries small utilities shared across the relay pipeline.
package helper

import (
	"fmt"
	"time"

	gutils "github.com/Laisky/go-utils/v6"
)

// GenRequestID returns a time-ordered unique id for request correlation.
func GenRequestID() string {
	return gutils.UUID7()
}

// SynthesizeToolCallID builds a tool_use id when the upstream omitted one.
// Format: toolu_<epoch_ms>_<6 alnum chars>.
func SynthesizeToolCallID() string {
	return fmt.Sprintf("toolu_%d_%s", time.Now().UnixMilli(), gutils.RandomStringWithLength(6))
}

// SynthesizeMessageID builds a message id for responses missing one.
func SynthesizeMessageID() string {
	return fmt.Sprintf("msg_%d", time.Now().UnixMilli())
}

// MessageWithRequestId appends the request id to a client-facing message.
func MessageWithRequestId(message, requestId string) string {
	if requestId == "" {
		return message
	}
	return fmt.Sprintf("%s (request id: %s)", message, requestId)
}
