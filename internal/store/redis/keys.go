package redis

const (
	// KeyPrefixSnapshot is the prefix for per-owner snapshot keys.
	KeyPrefixSnapshot = "shelf:snapshot:"
)

// SnapshotKey returns the Redis key for an owner's cached snapshot.
func SnapshotKey(owner string) string {
	return KeyPrefixSnapshot + owner
}
