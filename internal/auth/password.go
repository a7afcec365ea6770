package auth

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"regexp"

	"docutalk-backend/pkg/logger"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const (
	passwordSymbols   = "!@#$%&*?"
	passwordUppers    = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	passwordLowers    = "abcdefghijklmnopqrstuvwxyz"
	passwordDigits    = "0123456789"
	passwordAlphabet  = passwordSymbols + passwordUppers + passwordLowers + passwordDigits
	minPasswordLength = 4
)

var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9_.+-]+@[a-zA-Z0-9-]+\.[a-zA-Z0-9-.]+$`)

// IsValidEmail reports whether email looks like an address we can mail.
func IsValidEmail(email string) bool {
	return emailPattern.MatchString(email)
}

// HashPassword generates a bcrypt hash for the given password.
func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(bytes), nil
}

// CheckPasswordHash compares a plaintext password with a stored bcrypt hash.
func CheckPasswordHash(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	if err != nil {
		if !errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			logger.Warn("[auth] comparing password hash failed", zap.Error(err))
		}
		return false
	}
	return true
}

// GeneratePassword returns a random password of length characters holding
// at least one symbol, one uppercase letter, one lowercase letter and one digit.
func GeneratePassword(length int) (string, error) {
	if length < minPasswordLength {
		return "", fmt.Errorf("password length must be at least %d", minPasswordLength)
	}
	out := make([]byte, 0, length)
	for _, set := range []string{passwordSymbols, passwordUppers, passwordLowers, passwordDigits} {
		c, err := randomChar(set)
		if err != nil {
			return "", err
		}
		out = append(out, c)
	}
	for len(out) < length {
		c, err := randomChar(passwordAlphabet)
		if err != nil {
			return "", err
		}
		out = append(out, c)
	}

	// Fisher-Yates so the required classes are not always first.
	for i := len(out) - 1; i > 0; i-- {
		j, err := rand.Int(rand.Reader, big.NewInt(int64(i+1)))
		if err != nil {
			return "", fmt.Errorf("shuffling password: %w", err)
		}
		out[i], out[j.Int64()] = out[j.Int64()], out[i]
	}
	return string(out), nil
}

func randomChar(set string) (byte, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(len(set))))
	if err != nil {
		return 0, fmt.Errorf("generating password: %w", err)
	}
	return set[n.Int64()], nil
}
