package a

import (
	"crypto/rand"
	mrand "math/rand" // want `use crypto/rand instead of math/rand`
)

func generate() int {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)

	return mrand.Int()
}
