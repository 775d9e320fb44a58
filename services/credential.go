package services

import (
	"crypto/rand"
	"fmt"
	"io"
	"math/big"
)

const (
	passwordAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	passwordLength   = 16
	usernameDigits   = 4
)

type CredentialGenerator struct {
	prefix string
	random io.Reader
}

func NewCredentialGenerator(prefix string) *CredentialGenerator {
	if prefix == "" {
		prefix = "user"
	}
	return &CredentialGenerator{prefix: prefix, random: rand.Reader}
}

/**
 * Generate proxy client credentials
 * @returns {(string, string, error)} username (prefix + 4 digits) and 16 char alphanumeric password
 * @description
 * - Usernames are not checked for uniqueness
 * - Callers must not log the password
 */
func (g *CredentialGenerator) Generate() (string, string, error) {
	n, err := rand.Int(g.random, big.NewInt(10000))
	if err != nil {
		return "", "", fmt.Errorf("generate username: %w", err)
	}
	username := fmt.Sprintf("%s%0*d", g.prefix, usernameDigits, n.Int64())

	password, err := g.randomString(passwordAlphabet, passwordLength)
	if err != nil {
		return "", "", fmt.Errorf("generate password: %w", err)
	}
	return username, password, nil
}

func (g *CredentialGenerator) randomString(alphabet string, length int) (string, error) {
	n := big.NewInt(int64(len(alphabet)))
	buf := make([]byte, length)
	for i := range buf {
		// rand.Int 内部拒绝采样, 无取模偏差
		idx, err := rand.Int(g.random, n)
		if err != nil {
			return "", err
		}
		buf[i] = alphabet[idx.Int64()]
	}
	return string(buf), nil
}
