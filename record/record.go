// Package record implements the compact audit record that anchors a
// project-state transition inside a transaction's data-carrier output.
//
// Three kinds of records exist on the wire:
//
//   - Creation: the raw content identifier of the initial project
//     document, stored as ASCII bytes with no prefix.
//   - Update:   "UPDATE:" followed by the hex encoded digest binding the
//     superseded and the new content identifier.
//   - Payment:  "PAY:" followed by the same digest construction.
//
// The digest is a single SHA-256 over the string "prevCid:newCid". It is
// one-way: verifiers re-derive it from a candidate CID pair instead of
// recovering the CIDs from the record itself.
package record

import (
	"bytes"
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
)

// Kind identifies the role of an audit record within a project's chain of
// state transitions.
type Kind uint8

const (
	// KindCreation anchors the first revision of a project document.
	KindCreation Kind = iota

	// KindUpdate anchors a revision that supersedes an earlier one.
	KindUpdate

	// KindPayment anchors a revision whose transaction also pays the
	// project's counterparty.
	KindPayment
)

// String returns a human readable identifier for the record kind.
func (k Kind) String() string {
	switch k {
	case KindCreation:
		return "creation"
	case KindUpdate:
		return "update"
	case KindPayment:
		return "payment"
	default:
		return fmt.Sprintf("unknown<%d>", k)
	}
}

var (
	// updatePrefix tags the payload of an update record.
	updatePrefix = []byte("UPDATE:")

	// paymentPrefix tags the payload of a payment record.
	paymentPrefix = []byte("PAY:")
)

// MaxPayloadSize is the largest encoded record the data-carrier output of
// the underlying chain accepts. Oversized records are rejected outright,
// never truncated.
const MaxPayloadSize = txscript.MaxDataCarrierSize

// Record is a decoded audit record. For KindCreation only CID is set; for
// the other kinds only Digest is set.
type Record struct {
	// Kind is the decoded role of the record.
	Kind Kind

	// CID is the raw content identifier carried by a creation record.
	CID string

	// Digest binds the previous and new content identifiers of an
	// update or payment record.
	Digest [chainhash.HashSize]byte
}

// Digest computes the transition digest binding prevCid to newCid. Both the
// publisher and every verifier must use this exact construction.
func Digest(prevCid, newCid string) [chainhash.HashSize]byte {
	var digest [chainhash.HashSize]byte
	copy(digest[:], chainhash.HashB([]byte(prevCid+":"+newCid)))
	return digest
}

// New builds a record of the given kind. Creation records ignore prevCid
// and carry newCid verbatim; update and payment records carry the
// transition digest instead.
func New(kind Kind, prevCid, newCid string) (*Record, error) {
	if newCid == "" {
		return nil, fmt.Errorf("record: empty content identifier")
	}

	switch kind {
	case KindCreation:
		if len(newCid) > MaxPayloadSize {
			return nil, &DecodeError{
				Reason: ReasonSizeExceeded,
				Detail: fmt.Sprintf("cid length %d exceeds "+
					"carrier limit %d", len(newCid),
					MaxPayloadSize),
			}
		}

		return &Record{Kind: KindCreation, CID: newCid}, nil

	case KindUpdate, KindPayment:
		if prevCid == "" {
			return nil, fmt.Errorf("record: %v requires a "+
				"previous content identifier", kind)
		}

		return &Record{
			Kind:   kind,
			Digest: Digest(prevCid, newCid),
		}, nil

	default:
		return nil, &DecodeError{
			Reason: ReasonUnknownKind,
			Detail: fmt.Sprintf("kind %d", kind),
		}
	}
}

// Encode serializes the record into the exact bytes embedded in the
// data-carrier output.
func (r *Record) Encode() ([]byte, error) {
	var payload []byte
	switch r.Kind {
	case KindCreation:
		payload = []byte(r.CID)

	case KindUpdate:
		payload = append(payload, updatePrefix...)
		payload = appendDigest(payload, r.Digest)

	case KindPayment:
		payload = append(payload, paymentPrefix...)
		payload = appendDigest(payload, r.Digest)

	default:
		return nil, &DecodeError{
			Reason: ReasonUnknownKind,
			Detail: fmt.Sprintf("kind %d", r.Kind),
		}
	}

	if len(payload) > MaxPayloadSize {
		return nil, &DecodeError{
			Reason: ReasonSizeExceeded,
			Detail: fmt.Sprintf("payload length %d exceeds "+
				"carrier limit %d", len(payload),
				MaxPayloadSize),
		}
	}

	return payload, nil
}

func appendDigest(b []byte, digest [chainhash.HashSize]byte) []byte {
	encoded := make([]byte, hex.EncodedLen(len(digest)))
	hex.Encode(encoded, digest[:])
	return append(b, encoded...)
}

// Decode parses the payload of a data-carrier output back into a Record.
// A payload without a colon is a creation record carrying a raw content
// identifier; a tagged payload must carry a well formed hex digest.
func Decode(payload []byte) (*Record, error) {
	if len(payload) == 0 {
		return nil, &DecodeError{
			Reason: ReasonMalformedPrefix,
			Detail: "empty payload",
		}
	}
	if len(payload) > MaxPayloadSize {
		return nil, &DecodeError{
			Reason: ReasonSizeExceeded,
			Detail: fmt.Sprintf("payload length %d exceeds "+
				"carrier limit %d", len(payload),
				MaxPayloadSize),
		}
	}

	sep := bytes.IndexByte(payload, ':')
	if sep < 0 {
		// Raw content identifier, no tag.
		return &Record{Kind: KindCreation, CID: string(payload)}, nil
	}

	var kind Kind
	switch {
	case bytes.HasPrefix(payload, updatePrefix):
		kind = KindUpdate
		payload = payload[len(updatePrefix):]

	case bytes.HasPrefix(payload, paymentPrefix):
		kind = KindPayment
		payload = payload[len(paymentPrefix):]

	default:
		return nil, &DecodeError{
			Reason: ReasonUnknownKind,
			Detail: fmt.Sprintf("unrecognized tag %q",
				payload[:sep]),
		}
	}

	if len(payload) != hex.EncodedLen(chainhash.HashSize) {
		return nil, &DecodeError{
			Reason: ReasonMalformedPrefix,
			Detail: fmt.Sprintf("digest length %d, want %d",
				len(payload),
				hex.EncodedLen(chainhash.HashSize)),
		}
	}

	rec := &Record{Kind: kind}
	if _, err := hex.Decode(rec.Digest[:], payload); err != nil {
		return nil, &DecodeError{
			Reason: ReasonMalformedPrefix,
			Detail: fmt.Sprintf("invalid digest hex: %v", err),
		}
	}

	return rec, nil
}

// Matches reports whether the record anchors the transition from prevCid to
// newCid. Creation records match when they carry newCid (or prevCid, for
// the project's very first revision) verbatim.
func (r *Record) Matches(prevCid, newCid string) bool {
	switch r.Kind {
	case KindCreation:
		return r.CID == newCid || r.CID == prevCid

	case KindUpdate, KindPayment:
		return r.Digest == Digest(prevCid, newCid)

	default:
		return false
	}
}
