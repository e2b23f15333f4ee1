package random

import (
	"crypto/rand"
	"math/big"
)

// codeAlphabet leaves out 0/O and 1/I so join codes survive being read aloud.
const codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

var alphabetSize = big.NewInt(int64(len(codeAlphabet)))

// Code returns an upper-case join code of the given length.
func Code(length int) string {
	if length <= 0 {
		return ""
	}
	out := make([]byte, length)
	for i := range out {
		n, err := rand.Int(rand.Reader, alphabetSize)
		if err != nil {
			panic(err)
		}
		out[i] = codeAlphabet[n.Int64()]
	}
	return string(out)
}
