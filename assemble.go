// SPDX-License-Identifier: GPL-3.0-or-later

package dnssteal

import (
	"bytes"
	"crypto/md5"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	// ContinuationMarker terminates every fragment except the last one.
	ContinuationMarker = '-'

	// PlusSubstitute stands in for '+' in the transmitted alphabet.
	PlusSubstitute = '*'

	// ChecksumPrefixLen is the number of hex digits of the checksum
	// used as the transfer ID.
	ChecksumPrefixLen = 4
)

// Content types carried by the envelope.
const (
	// ContentTypePlain means the content is carried as is.
	ContentTypePlain = ""

	// ContentTypeGzip is reserved for gzip compressed content.
	ContentTypeGzip = "z"
)

// CompletedFile is a successfully reassembled file.
type CompletedFile struct {
	// Filename is the name the sender gave to the file.
	Filename string

	// Content is the file content.
	Content string

	// ChecksumHex is the lowercase hex MD5 digest of Content.
	ChecksumHex string

	// CompletedAt is when the file was assembled.
	CompletedAt time.Time
}

// MarshalJSON implements [json.Marshaler]. The time is encoded
// as seconds since the epoch.
func (f CompletedFile) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Filename string `json:"filename"`
		Content  string `json:"content"`
		MD5      string `json:"md5"`
		Time     int64  `json:"time"`
	}{
		Filename: f.Filename,
		Content:  f.Content,
		MD5:      f.ChecksumHex,
		Time:     f.CompletedAt.Unix(),
	})
}

// Assemble reconstructs the file carried by the given fragments.
//
// The envelope, once decoded, is:
//
//	filename \0 content-type \0 content
//
// The returned error wraps one of [ErrIncompleteTransfer],
// [ErrMissingTerminator], [ErrPayloadDecode], [ErrMalformedEnvelope],
// [ErrUnsupportedContentType] and [ErrChecksumMismatch].
func Assemble(id string, fragments map[uint32]string, now time.Time) (CompletedFile, error) {
	tx := &Transfer{ID: id, Fragments: fragments}

	// 1. make sure the sequence numbers are exactly 0..N-1
	keys := tx.SortedKeys()
	if len(keys) < 1 {
		return CompletedFile{}, fmt.Errorf("%w: no fragments", ErrIncompleteTransfer)
	}
	if last := keys[len(keys)-1]; int(last) != len(keys)-1 {
		return CompletedFile{}, fmt.Errorf(
			"%w: %d fragments but highest sequence number is %d", ErrIncompleteTransfer, len(keys), last)
	}

	// 2. concatenate and make sure we have seen the last fragment
	payload := tx.Payload()
	if strings.HasSuffix(payload, string(ContinuationMarker)) {
		return CompletedFile{}, ErrMissingTerminator
	}

	// 3. undo the transmission alphabet and decode
	payload = strings.ReplaceAll(payload, string(PlusSubstitute), "+")
	payload = strings.ReplaceAll(payload, string(ContinuationMarker), "")
	decoded, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return CompletedFile{}, fmt.Errorf("%w: %s", ErrPayloadDecode, err.Error())
	}

	// 4. split the envelope
	parts := bytes.SplitN(decoded, []byte{0}, 3)
	if len(parts) < 3 {
		return CompletedFile{}, fmt.Errorf("%w: %d parts", ErrMalformedEnvelope, len(parts))
	}
	if ctype := string(parts[1]); ctype != ContentTypePlain {
		return CompletedFile{}, fmt.Errorf("%w: %q", ErrUnsupportedContentType, ctype)
	}
	filename := assembleLossyString(parts[0])
	content := assembleLossyString(parts[2])

	// 5. make sure the content matches the transfer ID
	checksum := assembleChecksum(content)
	if checksum[:ChecksumPrefixLen] != id {
		return CompletedFile{}, fmt.Errorf("%w: id %q, md5 %s", ErrChecksumMismatch, id, checksum)
	}

	file := CompletedFile{
		Filename:    filename,
		Content:     content,
		ChecksumHex: checksum,
		CompletedAt: now,
	}
	return file, nil
}

// assembleLossyString converts data to a string replacing each maximal
// subpart of an ill-formed UTF-8 sequence with U+FFFD, so "\xff\xfe"
// becomes two replacement characters while a truncated "\xe2\x82"
// becomes one.
func assembleLossyString(data []byte) string {
	if utf8.Valid(data) {
		return string(data)
	}
	var sb strings.Builder
	for len(data) > 0 {
		r, size := utf8.DecodeRune(data)
		if r != utf8.RuneError || size > 1 {
			sb.Write(data[:size])
			data = data[size:]
			continue
		}
		sb.WriteRune(utf8.RuneError)
		data = data[assembleInvalidPrefixLen(data):]
	}
	return sb.String()
}

// assembleInvalidPrefixLen returns the length of the maximal subpart
// at the beginning of data, which does not start with a valid rune.
func assembleInvalidPrefixLen(data []byte) int {
	var need int
	lo, hi := byte(0x80), byte(0xbf)
	switch lead := data[0]; {
	case lead >= 0xc2 && lead <= 0xdf:
		need = 1
	case lead == 0xe0:
		need, lo = 2, 0xa0
	case lead == 0xed:
		need, hi = 2, 0x9f
	case lead >= 0xe1 && lead <= 0xef:
		need = 2
	case lead == 0xf0:
		need, lo = 3, 0x90
	case lead == 0xf4:
		need, hi = 3, 0x8f
	case lead >= 0xf1 && lead <= 0xf3:
		need = 3
	default:
		return 1
	}
	if len(data) < 2 || data[1] < lo || data[1] > hi {
		return 1
	}
	size := 2
	for size <= need && size < len(data) && data[size] >= 0x80 && data[size] <= 0xbf {
		size++
	}
	return size
}

func assembleChecksum(content string) string {
	sum := md5.Sum([]byte(content))
	return hex.EncodeToString(sum[:])
}
