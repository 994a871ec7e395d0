// AngelaMos | 2026
// security.go

package core

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/crypto/argon2"
)

var ErrMalformedHash = errors.New("malformed password hash")

// PasswordParams are the argon2id costs encoded into every stored hash.
type PasswordParams struct {
	Memory     uint32
	Iterations uint32
	Threads    uint8
	KeyLen     uint32
	SaltLen    uint32
}

var DefaultPasswordParams = PasswordParams{
	Memory:     64 * 1024,
	Iterations: 1,
	Threads:    4,
	KeyLen:     32,
	SaltLen:    16,
}

const hashPrefix = "$argon2id$"

func HashPassword(password string) (string, error) {
	return hashPassword(password, DefaultPasswordParams)
}

func hashPassword(password string, p PasswordParams) (string, error) {
	salt := make([]byte, p.SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}

	key := argon2.IDKey([]byte(password), salt, p.Iterations, p.Memory, p.Threads, p.KeyLen)

	return fmt.Sprintf("%sv=%d$m=%d,t=%d,p=%d$%s$%s",
		hashPrefix,
		argon2.Version,
		p.Memory, p.Iterations, p.Threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

type storedHash struct {
	params PasswordParams
	salt   []byte
	key    []byte
}

func parseHash(encoded string) (*storedHash, error) {
	if !strings.HasPrefix(encoded, hashPrefix) {
		return nil, ErrMalformedHash
	}

	parts := strings.Split(strings.TrimPrefix(encoded, hashPrefix), "$")
	if len(parts) != 4 {
		return nil, ErrMalformedHash
	}

	var version int
	if _, err := fmt.Sscanf(parts[0], "v=%d", &version); err != nil {
		return nil, fmt.Errorf("%w: version", ErrMalformedHash)
	}
	if version != argon2.Version {
		return nil, fmt.Errorf("%w: argon2 version %d", ErrMalformedHash, version)
	}

	var h storedHash
	if _, err := fmt.Sscanf(parts[1], "m=%d,t=%d,p=%d",
		&h.params.Memory, &h.params.Iterations, &h.params.Threads,
	); err != nil {
		return nil, fmt.Errorf("%w: params", ErrMalformedHash)
	}

	var err error
	if h.salt, err = base64.RawStdEncoding.DecodeString(parts[2]); err != nil {
		return nil, fmt.Errorf("%w: salt", ErrMalformedHash)
	}
	if h.key, err = base64.RawStdEncoding.DecodeString(parts[3]); err != nil {
		return nil, fmt.Errorf("%w: key", ErrMalformedHash)
	}

	//nolint:gosec // G115: argon2 keys are a few dozen bytes
	h.params.KeyLen = uint32(len(h.key))
	//nolint:gosec // G115: same as above
	h.params.SaltLen = uint32(len(h.salt))

	return &h, nil
}

func (h *storedHash) outdated() bool {
	d := DefaultPasswordParams
	return h.params.Memory != d.Memory ||
		h.params.Iterations != d.Iterations ||
		h.params.Threads != d.Threads ||
		h.params.KeyLen != d.KeyLen
}

// CheckPassword reports whether password matches encoded. When it matches a
// hash made with outdated costs, rehash holds a replacement for the caller
// to store.
func CheckPassword(password, encoded string) (ok bool, rehash string, err error) {
	h, err := parseHash(encoded)
	if err != nil {
		return false, "", err
	}

	key := argon2.IDKey(
		[]byte(password),
		h.salt,
		h.params.Iterations,
		h.params.Memory,
		h.params.Threads,
		h.params.KeyLen,
	)
	if subtle.ConstantTimeCompare(h.key, key) != 1 {
		return false, "", nil
	}

	if h.outdated() {
		if fresh, hashErr := HashPassword(password); hashErr == nil {
			rehash = fresh
		}
	}

	return true, rehash, nil
}

var dummyHash = sync.OnceValue(func() string {
	//nolint:errcheck // an empty dummy still burns a parse attempt
	h, _ := HashPassword("placeholder password for unknown accounts")
	return h
})

// CheckPasswordConstantTime behaves like CheckPassword but still spends a
// full argon2 derivation when encoded is empty, so unknown accounts cannot
// be told apart by response time.
func CheckPasswordConstantTime(password, encoded string) (bool, string, error) {
	if encoded == "" {
		//nolint:errcheck // result is discarded on purpose
		_, _, _ = CheckPassword(password, dummyHash())
		return false, "", nil
	}
	return CheckPassword(password, encoded)
}

// NewOpaqueToken returns n random bytes encoded as unpadded URL-safe base64.
func NewOpaqueToken(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func TokenMatches(token, hash string) bool {
	return subtle.ConstantTimeCompare([]byte(HashToken(token)), []byte(hash)) == 1
}
