package util

import (
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid"
)

// The monotonic entropy source is not safe for concurrent use, hence the lock.
var (
	ulidMutex   sync.Mutex
	ulidEntropy = ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0)
)

// NewULID returns a fresh lowercase ULID. Ids sort by creation time, which
// keeps request logs greppable in order.
func NewULID() string {
	ulidMutex.Lock()
	defer ulidMutex.Unlock()
	return strings.ToLower(ulid.MustNew(ulid.Now(), ulidEntropy).String())
}
