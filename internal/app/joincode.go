package app

import (
	"crypto/rand"
	"math/big"
)

// Join codes omit 0/O and 1/I/L.
const (
	joinCodeAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"
	joinCodeLength   = 6
)

func newJoinCode() string {
	max := big.NewInt(int64(len(joinCodeAlphabet)))
	code := make([]byte, joinCodeLength)
	for i := range code {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			panic(err)
		}
		code[i] = joinCodeAlphabet[n.Int64()]
	}
	return string(code)
}
