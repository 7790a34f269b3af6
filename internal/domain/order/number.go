package order

import (
	"fmt"
	"math/rand/v2"
	"time"
)

// NewNumber generates a human-readable order number:
// "ORD" + YYYYMMDD + last six digits of unix-millis + three random digits.
// Uniqueness is probabilistic; the orders table enforces it with a unique
// constraint and creation retries with a fresh number on collision.
func NewNumber(now time.Time) string {
	frag := now.UnixMilli() % 1_000_000
	return fmt.Sprintf("ORD%s%06d%03d", now.Format("20060102"), frag, rand.IntN(1000))
}
