package rediskey

import "fmt"

// Key prefixes shared by every process that touches redis, so the
// sweeper and the API server never collide on naming.
const (
	SequencePrefix = "seq"
	SweepLockKey   = "sweep:lock"
)

func NamespaceKey(namespace, key string) string {
	return fmt.Sprintf("%s:%s", namespace, key)
}

// BuildSequenceKey returns "seq:{prefix}:{scope}:{day}", the daily
// counter behind human-readable campaign and pledge codes.
func BuildSequenceKey(prefix, scope, day string) string {
	return fmt.Sprintf("%s:%s:%s:%s", SequencePrefix, prefix, scope, day)
}
