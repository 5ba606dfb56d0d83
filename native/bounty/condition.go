package bounty

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// PreimageSize is the byte length of the escrow release secret. The ledger's
// PREIMAGE-SHA-256 crypto-condition encoding below is fixed to this size.
const PreimageSize = 32

const secretAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// developerSecretLength is the length of the human-pasteable key the accepted
// developer must embed in the merge request.
const developerSecretLength = 32

// Condition is the hash-preimage triple backing every escrow of one bounty.
// The condition commits to the preimage without revealing it; the fulfillment
// is derived purely from the preimage and never stored.
type Condition struct {
	PreimageHex  string
	ConditionHex string
}

// GenerateCondition draws a fresh high-entropy preimage and returns the
// ledger-encoded commitment for it.
func GenerateCondition() (*Condition, error) {
	preimage := make([]byte, PreimageSize)
	if _, err := rand.Read(preimage); err != nil {
		return nil, fmt.Errorf("bounty engine: generate preimage: %w", err)
	}
	return &Condition{
		PreimageHex:  strings.ToUpper(hex.EncodeToString(preimage)),
		ConditionHex: EncodeCondition(preimage),
	}, nil
}

// EncodeCondition produces the PREIMAGE-SHA-256 condition binary for a
// 32-byte preimage in the ledger's uppercase hex form. The framing is the
// DER prefix for a preimage condition with fingerprint sha256(preimage) and
// cost equal to the preimage length.
func EncodeCondition(preimage []byte) string {
	digest := sha256.Sum256(preimage)
	buf := make([]byte, 0, 4+sha256.Size+3)
	buf = append(buf, 0xA0, 0x25, 0x80, 0x20)
	buf = append(buf, digest[:]...)
	buf = append(buf, 0x81, 0x01, 0x20)
	return strings.ToUpper(hex.EncodeToString(buf))
}

// Fulfillment reproduces the ledger-encoded proof from a stored preimage hex.
// It is deterministic so the proof never needs to be persisted alongside the
// secret.
func Fulfillment(preimageHex string) (string, error) {
	preimage, err := hex.DecodeString(strings.TrimSpace(preimageHex))
	if err != nil {
		return "", fmt.Errorf("bounty engine: decode preimage: %w", err)
	}
	if len(preimage) != PreimageSize {
		return "", fmt.Errorf("bounty engine: preimage must be %d bytes, got %d", PreimageSize, len(preimage))
	}
	buf := make([]byte, 0, 4+PreimageSize)
	buf = append(buf, 0xA0, 0x22, 0x80, 0x20)
	buf = append(buf, preimage...)
	return strings.ToUpper(hex.EncodeToString(buf)), nil
}

// GenerateDeveloperSecret returns the one-time alphanumeric key issued to the
// accepting developer at accept time.
func GenerateDeveloperSecret() (string, error) {
	raw := make([]byte, developerSecretLength)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("bounty engine: generate developer secret: %w", err)
	}
	out := make([]byte, developerSecretLength)
	for i, b := range raw {
		out[i] = secretAlphabet[int(b)%len(secretAlphabet)]
	}
	return string(out), nil
}
