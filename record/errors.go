package record

import "fmt"

// DecodeReason enumerates the ways a record payload can fail to parse.
type DecodeReason uint8

const (
	// ReasonMalformedPrefix means the payload carried a recognized tag
	// but the digest that followed it was not well formed.
	ReasonMalformedPrefix DecodeReason = iota

	// ReasonUnknownKind means the payload carried a tag that does not
	// correspond to any record kind.
	ReasonUnknownKind

	// ReasonSizeExceeded means the payload does not fit inside the
	// chain's data-carrier output.
	ReasonSizeExceeded
)

// String returns a human readable identifier for the decode failure.
func (r DecodeReason) String() string {
	switch r {
	case ReasonMalformedPrefix:
		return "malformed prefix"
	case ReasonUnknownKind:
		return "unknown kind"
	case ReasonSizeExceeded:
		return "size exceeded"
	default:
		return fmt.Sprintf("unknown<%d>", r)
	}
}

// DecodeError describes a record payload that could not be encoded or
// decoded. Callers match on Reason with errors.As.
type DecodeError struct {
	// Reason classifies the failure.
	Reason DecodeReason

	// Detail carries the offending value for diagnostics.
	Detail string
}

// Error returns a human readable description of the failure.
func (e *DecodeError) Error() string {
	return fmt.Sprintf("record: %v: %s", e.Reason, e.Detail)
}
