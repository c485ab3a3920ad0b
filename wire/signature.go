package wire

import (
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
)

// ecdsaSignature wraps the library's r, s scalars directly rather than the
// opaque ecdsa.Signature, so that the BOLT wire format (64-byte raw r||s,
// not DER) round-trips exactly without having to parse DER back apart.
type ecdsaSignature struct {
	r, s btcec.ModNScalar
}

func parseCompactSig(raw []byte) (*ecdsaSignature, error) {
	if len(raw) != 64 {
		return nil, fmt.Errorf("signature must be 64 bytes, got %d", len(raw))
	}

	var rBytes, sBytes [32]byte
	copy(rBytes[:], raw[:32])
	copy(sBytes[:], raw[32:])

	sig := &ecdsaSignature{}
	sig.r.SetBytes(&rBytes)
	sig.s.SetBytes(&sBytes)
	return sig, nil
}

func (e *ecdsaSignature) serializeCompact() [64]byte {
	var out [64]byte
	rBytes := e.r.Bytes()
	sBytes := e.s.Bytes()
	copy(out[:32], rBytes[:])
	copy(out[32:], sBytes[:])
	return out
}

func (e *ecdsaSignature) Verify(hash []byte, pub *btcec.PublicKey) bool {
	sig := ecdsa.NewSignature(&e.r, &e.s)
	return sig.Verify(hash, pub)
}

// NewSignatureFromCompact builds a Signature from a 64-byte compact (r||s)
// encoding — the form the signer (fd3) returns and the form cached/sent on
// the wire. It is the way to wrap a raw signing reply into the type the
// rest of this package expects; the tests use it to build signed messages.
func NewSignatureFromCompact(raw []byte) (*ecdsaSignature, error) {
	return parseCompactSig(raw)
}
