package security

import "golang.org/x/crypto/bcrypt"

// DefaultBcryptCost is used when the configured cost is out of bcrypt's
// accepted range.
const DefaultBcryptCost = bcrypt.DefaultCost

// HashPassword derives a one-way bcrypt hash from the plaintext password.
func HashPassword(password string, cost int) (string, error) {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = DefaultBcryptCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// VerifyPassword reports whether the plaintext password matches the stored
// hash. Any comparison error counts as a mismatch.
func VerifyPassword(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
