// SPDX-License-Identifier: GPL-3.0-or-later

package dnssteal

import "errors"

// Errors emitted by [*Decoder] while decoding a query name. A query
// failing with one of these errors does not mutate the [*Store].
var (
	// ErrMalformedID means the transfer ID label is missing or is not valid UTF-8.
	ErrMalformedID = errors.New("malformed transfer id")

	// ErrMalformedSequenceNumber means the sequence number label is
	// missing or is not a non-negative 32-bit integer.
	ErrMalformedSequenceNumber = errors.New("malformed sequence number")

	// ErrMalformedFragment means a fragment label is not valid UTF-8.
	ErrMalformedFragment = errors.New("malformed fragment")

	// ErrNotInZone means the query name is not below the configured zone.
	ErrNotInZone = errors.New("name not in zone")
)

// Errors emitted by [Assemble]. A transfer failing with one of these
// errors is discarded: the sender went idle and cannot be asked again.
var (
	// ErrIncompleteTransfer means the sequence numbers are not exactly 0..N-1.
	ErrIncompleteTransfer = errors.New("incomplete transfer")

	// ErrMissingTerminator means the payload still ends with the
	// continuation marker, i.e., the last fragment never arrived.
	ErrMissingTerminator = errors.New("missing terminator")

	// ErrPayloadDecode means the normalized payload is not valid base64.
	ErrPayloadDecode = errors.New("cannot decode payload")

	// ErrMalformedEnvelope means the decoded payload does not contain
	// the filename and content type separators.
	ErrMalformedEnvelope = errors.New("malformed envelope")

	// ErrUnsupportedContentType means the envelope uses a content type
	// other than the empty (plain) one.
	ErrUnsupportedContentType = errors.New("unsupported content type")

	// ErrChecksumMismatch means the transfer ID does not match the
	// checksum prefix of the reconstructed content.
	ErrChecksumMismatch = errors.New("checksum mismatch")
)

// ErrorReason maps an error returned by [*Decoder] or [Assemble] to a
// short string suitable as a metric label. Unknown errors map to "other".
func ErrorReason(err error) string {
	switch {
	case errors.Is(err, ErrMalformedID):
		return "malformed_id"
	case errors.Is(err, ErrMalformedSequenceNumber):
		return "malformed_sequence_number"
	case errors.Is(err, ErrMalformedFragment):
		return "malformed_fragment"
	case errors.Is(err, ErrNotInZone):
		return "not_in_zone"
	case errors.Is(err, ErrIncompleteTransfer):
		return "incomplete_transfer"
	case errors.Is(err, ErrMissingTerminator):
		return "missing_terminator"
	case errors.Is(err, ErrPayloadDecode):
		return "payload_decode"
	case errors.Is(err, ErrMalformedEnvelope):
		return "malformed_envelope"
	case errors.Is(err, ErrUnsupportedContentType):
		return "unsupported_content_type"
	case errors.Is(err, ErrChecksumMismatch):
		return "checksum_mismatch"
	default:
		return "other"
	}
}
