/*
Package randx generates cryptographically secure random strings.

It backs generated display names for accounts that sign up without one.
*/
package randx

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
)

const (
	Base62Chars = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

	// NicknamePrefix starts every generated display name.
	NicknamePrefix = "User_"
	// NicknameSuffixLength keeps generated names inside the 3 to 15 character rule.
	NicknameSuffixLength = 6
)

var base62Size = big.NewInt(int64(len(Base62Chars)))

// Base62 returns n random Base62 characters drawn from crypto/rand.
func Base62(n int) (string, error) {
	out := make([]byte, n)
	for i := range out {
		idx, err := rand.Int(rand.Reader, base62Size)
		if err != nil {
			return "", fmt.Errorf("randx: read random index: %w", err)
		}
		out[i] = Base62Chars[idx.Int64()]
	}
	return string(out), nil
}

// UserNickname returns NicknamePrefix followed by random Base62 characters, e.g. "User_a8Zk03".
func UserNickname() (string, error) {
	suffix, err := Base62(NicknameSuffixLength)
	if err != nil {
		return "", err
	}
	return NicknamePrefix + suffix, nil
}

// IsBase62 reports whether every character of s belongs to the Base62 set.
func IsBase62(s string) bool {
	return s != "" && strings.Trim(s, Base62Chars) == ""
}
