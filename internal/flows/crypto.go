// Package flows implements the encrypted WhatsApp Flow data-exchange
// protocol: envelope crypto, flow tokens, the per-kind form handlers, and
// the launcher that starts a Flow from the conversation engine.
package flows

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
)

// GCMTagSize is the length of the authentication tag trailing the
// encrypted flow data.
const GCMTagSize = 16

var (
	// ErrKeyMismatch signals that the envelope could not be decrypted with
	// our private key. The endpoint maps it to HTTP 421 so the Flow client
	// refreshes its cached public key.
	ErrKeyMismatch = errors.New("flow envelope key mismatch")
	// ErrMalformedEnvelope signals a structurally invalid envelope (bad
	// base64, missing fields). Mapped to HTTP 400.
	ErrMalformedEnvelope = errors.New("malformed flow envelope")
)

// Envelope is the wire format of an encrypted Flow request.
type Envelope struct {
	EncryptedFlowData string `json:"encrypted_flow_data"`
	EncryptedAESKey   string `json:"encrypted_aes_key"`
	InitialVector     string `json:"initial_vector"`
}

// IsEncrypted reports whether the body carries the three envelope fields, as
// opposed to a plaintext dev payload.
func (e Envelope) IsEncrypted() bool {
	return e.EncryptedFlowData != "" && e.EncryptedAESKey != "" && e.InitialVector != ""
}

// DecryptEnvelope unwraps the AES key with RSA-OAEP(SHA-256) and opens the
// GCM ciphertext. It returns the plaintext payload plus the key and IV the
// response must be encrypted with.
func DecryptEnvelope(env Envelope, priv *rsa.PrivateKey) (payload, key, iv []byte, err error) {
	data, err := base64.StdEncoding.DecodeString(env.EncryptedFlowData)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("%w: encrypted_flow_data: %v", ErrMalformedEnvelope, err)
	}
	wrappedKey, err := base64.StdEncoding.DecodeString(env.EncryptedAESKey)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("%w: encrypted_aes_key: %v", ErrMalformedEnvelope, err)
	}
	iv, err = base64.StdEncoding.DecodeString(env.InitialVector)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("%w: initial_vector: %v", ErrMalformedEnvelope, err)
	}
	if len(data) < GCMTagSize {
		return nil, nil, nil, fmt.Errorf("%w: flow data shorter than auth tag", ErrMalformedEnvelope)
	}

	key, err = rsa.DecryptOAEP(sha256.New(), nil, priv, wrappedKey, nil)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("%w: %v", ErrKeyMismatch, err)
	}
	// Key length selects AES-128 or AES-256; anything else means the client
	// encrypted against a different key pair.
	if len(key) != 16 && len(key) != 32 {
		return nil, nil, nil, fmt.Errorf("%w: unexpected AES key length %d", ErrKeyMismatch, len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("%w: %v", ErrKeyMismatch, err)
	}
	gcm, err := cipher.NewGCMWithNonceSize(block, len(iv))
	if err != nil {
		return nil, nil, nil, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	payload, err = gcm.Open(nil, iv, data, nil)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("%w: %v", ErrKeyMismatch, err)
	}
	return payload, key, iv, nil
}

// EncryptResponse seals the response payload with the request key and the
// flipped request IV, returning the bare base64 body the Flow client expects.
func EncryptResponse(payload, key, iv []byte) (string, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("creating response cipher: %w", err)
	}
	gcm, err := cipher.NewGCMWithNonceSize(block, len(iv))
	if err != nil {
		return "", fmt.Errorf("creating response GCM: %w", err)
	}
	sealed := gcm.Seal(nil, flipIV(iv), payload, nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// flipIV inverts every bit of the request IV. The Flow protocol requires the
// response nonce to be the bitwise complement of the request nonce so the
// same key never reuses a nonce across the request/response pair.
func flipIV(iv []byte) []byte {
	flipped := make([]byte, len(iv))
	for i, b := range iv {
		flipped[i] = b ^ 0xFF
	}
	return flipped
}

// LoadPrivateKey parses a PEM-encoded RSA private key in PKCS#1 or PKCS#8
// form.
func LoadPrivateKey(pemBytes []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, errors.New("no PEM block found in private key")
	}
	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parsing private key: %w", err)
	}
	rsaKey, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("private key is %T, not RSA", parsed)
	}
	return rsaKey, nil
}

// LoadPrivateKeyFile reads and parses the PEM key at path.
func LoadPrivateKeyFile(path string) (*rsa.PrivateKey, error) {
	pemBytes, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading private key file: %w", err)
	}
	return LoadPrivateKey(pemBytes)
}
