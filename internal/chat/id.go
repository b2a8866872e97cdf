package chat

import (
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
)

// newRandomID is swapped in tests to exercise the fallback.
var newRandomID = uuid.NewRandom

// NewLocalID returns a session-unique message id. It prefers a
// crypto/rand-backed UUID and falls back to wall clock plus randomness.
func NewLocalID() string {
	id, err := newRandomID()
	if err == nil {
		return id.String()
	}
	return fmt.Sprintf("%d-%016x", time.Now().UnixMilli(), rand.Uint64())
}
