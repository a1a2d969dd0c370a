package cache

import (
	"fmt"

	"github.com/centaurhq/centaur/pkg/models"
)

// ErrorLookupKey fronts the error store's dedup lookups. One key per dedup
// triple; the line number keeps distinct origins on the same call chain
// apart.
func ErrorLookupKey(k models.DedupKey) string {
	return fmt.Sprintf("error:lookup:%s:%s:%d", k.ExceptionKind, k.Hash, k.LineNumber)
}

func RateLimitKey(keyPrefix string) string {
	return fmt.Sprintf("ratelimit:%s", keyPrefix)
}

func SweepLockKey(queueName string) string {
	return fmt.Sprintf("sweep:lock:%s", queueName)
}
