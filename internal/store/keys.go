package store

import "sync"

// keyPool provides reusable byte slices for building database keys,
// reducing allocations on the hot path of store operations.
var keyPool = sync.Pool{
	New: func() any {
		// 256 bytes covers a prefix, an owner identity (64-char hex), and a
		// composite annotation key with room to spare.
		return make([]byte, 0, 256)
	},
}

// buildKey joins segments with ':' into a pooled buffer.
// Callers MUST call releaseKey when done with the key.
//
// Usage:
//
//	key := buildKey("bin", owner, localID)
//	defer releaseKey(key)
//	item, err := txn.Get(key)
func buildKey(segments ...string) []byte {
	buf, _ := keyPool.Get().([]byte)
	buf = buf[:0] // Reset length, keep capacity
	for i, seg := range segments {
		if i > 0 {
			buf = append(buf, ':')
		}
		buf = append(buf, seg...)
	}
	return buf
}

// releaseKey returns a key buffer to the pool for reuse.
// After calling this, the key slice must not be used.
func releaseKey(key []byte) {
	// Only pool buffers with reasonable capacity to avoid keeping
	// oversized buffers alive.
	if cap(key) <= 512 {
		keyPool.Put(key[:0])
	}
}
