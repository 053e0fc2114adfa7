package crypto

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/ed25519"
)

const (
	PublicKeySize = ed25519.PublicKeySize
	SecretKeySize = ed25519.PrivateKeySize
	SignatureSize = ed25519.SignatureSize
	SeedSize      = ed25519.SeedSize
)

type (
	PublicKey [PublicKeySize]byte
	SecretKey [SecretKeySize]byte
	Signature [SignatureSize]byte
	Seed      [SeedSize]byte
)

// GenKeyPair generates a random Ed25519 key pair.
func GenKeyPair() (PublicKey, SecretKey, error) {
	var pk PublicKey
	var sk SecretKey
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return pk, sk, fmt.Errorf("crypto: generating key pair: %w", err)
	}
	copy(pk[:], pub)
	copy(sk[:], priv)
	return pk, sk, nil
}

// KeyPairFromSeed deterministically derives a key pair from a seed.
func KeyPairFromSeed(seed Seed) (PublicKey, SecretKey) {
	var pk PublicKey
	var sk SecretKey
	priv := ed25519.NewKeyFromSeed(seed[:])
	copy(sk[:], priv)
	copy(pk[:], priv.Public().(ed25519.PublicKey))
	return pk, sk
}

// Sign signs data with the secret key.
func Sign(data []byte, sk SecretKey) Signature {
	var sig Signature
	copy(sig[:], ed25519.Sign(ed25519.PrivateKey(sk[:]), data))
	return sig
}

// Verify reports whether sig is a valid signature of data by pk.
func Verify(sig Signature, data []byte, pk PublicKey) bool {
	return ed25519.Verify(ed25519.PublicKey(pk[:]), data, sig[:])
}

// PublicKey returns the public half of the secret key.
func (sk SecretKey) PublicKey() PublicKey {
	var pk PublicKey
	copy(pk[:], sk[SecretKeySize-PublicKeySize:])
	return pk
}

func (pk PublicKey) String() string {
	return hex.EncodeToString(pk[:])
}

func (sig Signature) String() string {
	return hex.EncodeToString(sig[:])
}

// GoString hides the key material.
func (sk SecretKey) GoString() string {
	return "SecretKey(...)"
}
