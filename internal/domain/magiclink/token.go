package magiclink

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"io"
	"strings"

	"golang.org/x/crypto/blake2b"
)

const (
	secretBytes = 32
	saltBytes   = 16
	separator   = "."
)

var (
	ErrMalformedToken = errors.New("malformed magic link token")
	ErrDigestFailed   = errors.New("magic link digest failed")
)

// Minted is the result of issuing a token. Token leaves the process once;
// only SaltHex and DigestHex are persisted.
type Minted struct {
	Token     string
	SaltHex   string
	DigestHex string
}

var randReader io.Reader = rand.Reader

// Mint builds "<linkID>.<secret>" with a 256-bit random secret and its
// salted digest.
func Mint(linkID string) (Minted, error) {
	linkID = strings.TrimSpace(linkID)
	if linkID == "" || strings.Contains(linkID, separator) {
		return Minted{}, ErrMalformedToken
	}

	secret := make([]byte, secretBytes)
	if _, err := io.ReadFull(randReader, secret); err != nil {
		return Minted{}, err
	}
	salt := make([]byte, saltBytes)
	if _, err := io.ReadFull(randReader, salt); err != nil {
		return Minted{}, err
	}

	encodedSecret := base64.RawURLEncoding.EncodeToString(secret)
	digest, err := digestSecret(salt, encodedSecret)
	if err != nil {
		return Minted{}, err
	}

	return Minted{
		Token:     linkID + separator + encodedSecret,
		SaltHex:   hex.EncodeToString(salt),
		DigestHex: hex.EncodeToString(digest),
	}, nil
}

// Parse splits a token into its public link id and secret half.
func Parse(token string) (linkID string, secret string, err error) {
	trimmed := strings.TrimSpace(token)
	idx := strings.Index(trimmed, separator)
	if idx <= 0 || idx == len(trimmed)-1 {
		return "", "", ErrMalformedToken
	}
	linkID = trimmed[:idx]
	secret = trimmed[idx+1:]
	raw, decodeErr := base64.RawURLEncoding.DecodeString(secret)
	if decodeErr != nil || len(raw) != secretBytes {
		return "", "", ErrMalformedToken
	}
	return linkID, secret, nil
}

// Verify recomputes the salted digest of secret and compares it in
// constant time against the stored digest.
func Verify(saltHex string, digestHex string, secret string) bool {
	salt, err := hex.DecodeString(saltHex)
	if err != nil || len(salt) != saltBytes {
		return false
	}
	want, err := hex.DecodeString(digestHex)
	if err != nil {
		return false
	}
	got, err := digestSecret(salt, secret)
	if err != nil {
		return false
	}
	return subtle.ConstantTimeCompare(got, want) == 1
}

// BurnVerify spends the same work as Verify for lookups that found nothing,
// so unknown link ids cost as much as wrong secrets.
func BurnVerify(secret string) {
	var salt [saltBytes]byte
	_, _ = digestSecret(salt[:], secret)
}

func digestSecret(salt []byte, secret string) ([]byte, error) {
	h, err := blake2b.New256(salt)
	if err != nil {
		return nil, errors.Join(ErrDigestFailed, err)
	}
	if _, err := h.Write([]byte(secret)); err != nil {
		return nil, errors.Join(ErrDigestFailed, err)
	}
	return h.Sum(nil), nil
}
