package idl

import (
	sha256 "github.com/minio/sha256-simd"
)

// Discriminator computes the Anchor event discriminator: the first 8 bytes
// of SHA-256("event:<name>"). Anchor programs prepend this to every
// serialized event's log payload so a listener can identify the event type
// without parsing the rest of the payload.
func Discriminator(eventName string) [8]byte {
	sum := sha256.Sum256([]byte("event:" + eventName))
	var out [8]byte
	copy(out[:], sum[:8])
	return out
}
