package signing

import (
	"encoding/hex"
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
)

// Signature is an ECDSA (r, s) pair, hex-encoded with a "0x" prefix when
// rendered on the wire.
type Signature struct {
	R []byte
	S []byte
}

// Hex renders the signature as "0x" + hex(r) + hex(s).
func (s Signature) Hex() string {
	return "0x" + hex.EncodeToString(s.R) + hex.EncodeToString(s.S)
}

// Signer is the process-wide, read-only Pragma signing key. It is
// installed once at startup and shared by every subscription actor;
// nothing may mutate it after construction.
type Signer struct {
	priv *secp256k1.PrivateKey
	pub  *secp256k1.PublicKey
}

// NewSignerFromHex constructs a Signer from a hex-encoded private scalar.
func NewSignerFromHex(privHex string) (*Signer, error) {
	raw, err := hex.DecodeString(trimHexPrefix(privHex))
	if err != nil {
		return nil, fmt.Errorf("decode signer private key: %w", err)
	}
	priv := secp256k1.PrivKeyFromBytes(raw)
	return &Signer{priv: priv, pub: priv.PubKey()}, nil
}

// Sign signs a structured hash with the process-wide key.
func (s *Signer) Sign(h Hash) Signature {
	sig := ecdsa.Sign(s.priv, h.Bytes())
	return Signature{R: sig.R().Bytes(), S: sig.S().Bytes()}
}

// PublicKeyHex returns the signer's public key, hex-encoded, for
// publishing/registration purposes.
func (s *Signer) PublicKeyHex() string {
	return "0x" + hex.EncodeToString(s.pub.SerializeCompressed())
}

// VerifyHex verifies an ECDSA signature (given as separate hex r, s
// components, as publisher keys are registered) against a structured
// hash and a publisher's registered public key.
func VerifyHex(pubKeyHex string, h Hash, rHex, sHex string) (bool, error) {
	pubBytes, err := hex.DecodeString(trimHexPrefix(pubKeyHex))
	if err != nil {
		return false, fmt.Errorf("decode public key: %w", err)
	}
	pubKey, err := secp256k1.ParsePubKey(pubBytes)
	if err != nil {
		return false, fmt.Errorf("parse public key: %w", err)
	}
	rBytes, err := hex.DecodeString(trimHexPrefix(rHex))
	if err != nil {
		return false, fmt.Errorf("decode signature r: %w", err)
	}
	sBytes, err := hex.DecodeString(trimHexPrefix(sHex))
	if err != nil {
		return false, fmt.Errorf("decode signature s: %w", err)
	}

	var rScalar, sScalar secp256k1.ModNScalar
	rScalar.SetByteSlice(rBytes)
	sScalar.SetByteSlice(sBytes)
	sig := ecdsa.NewSignature(&rScalar, &sScalar)
	return sig.Verify(h.Bytes(), pubKey), nil
}

func trimHexPrefix(s string) string {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return s[2:]
	}
	return s
}
