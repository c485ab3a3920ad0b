package wire

import (
	"fmt"
	"io"

	"github.com/btcsuite/btcd/btcec/v2"
)

// readPubKey reads a 33-byte compressed secp256k1 public key.
func readPubKey(r io.Reader) (*btcec.PublicKey, error) {
	var raw [33]byte
	if _, err := io.ReadFull(r, raw[:]); err != nil {
		return nil, err
	}
	pub, err := btcec.ParsePubKey(raw[:])
	if err != nil {
		return nil, fmt.Errorf("invalid pubkey: %w", err)
	}
	return pub, nil
}

func writePubKey(w io.Writer, pub *btcec.PublicKey) error {
	_, err := w.Write(pub.SerializeCompressed())
	return err
}

// readSignature reads a 64-byte compact (r||s) signature, the format BOLT
// messages use rather than DER.
func readSignature(r io.Reader) (*ecdsaSignature, error) {
	var raw [64]byte
	if _, err := io.ReadFull(r, raw[:]); err != nil {
		return nil, err
	}
	return parseCompactSig(raw[:])
}

func writeSignature(w io.Writer, sig *ecdsaSignature) error {
	raw := sig.serializeCompact()
	_, err := w.Write(raw[:])
	return err
}
