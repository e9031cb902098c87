package txbuilder

import (
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
)

// SigningContext carries the key material for one publish operation. It is
// supplied by the caller per call and never retained by the builder, so no
// ambient wallet state exists inside the engine.
type SigningContext struct {
	// PrivKey signs the selected input. The corresponding p2wpkh
	// address both owns the spent outputs and receives the change.
	PrivKey *btcec.PrivateKey

	// Params selects the network the address is encoded for.
	Params *chaincfg.Params
}

// NewSigningContext wraps a private key for the given network.
func NewSigningContext(privKey *btcec.PrivateKey,
	params *chaincfg.Params) (*SigningContext, error) {

	if privKey == nil {
		return nil, fmt.Errorf("txbuilder: nil private key")
	}
	if params == nil {
		return nil, fmt.Errorf("txbuilder: nil chain params")
	}

	return &SigningContext{PrivKey: privKey, Params: params}, nil
}

// Address returns the signer's p2wpkh address.
func (s *SigningContext) Address() (btcutil.Address, error) {
	pubKeyHash := btcutil.Hash160(s.PrivKey.PubKey().SerializeCompressed())

	return btcutil.NewAddressWitnessPubKeyHash(pubKeyHash, s.Params)
}

// PkScript returns the p2wpkh output script of the signer's address. It is
// both the script of the outputs being spent and the change destination.
func (s *SigningContext) PkScript() ([]byte, error) {
	addr, err := s.Address()
	if err != nil {
		return nil, err
	}

	return txscript.PayToAddrScript(addr)
}
