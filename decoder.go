// SPDX-License-Identifier: GPL-3.0-or-later

package dnssteal

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/miekg/dns"
)

// Fragment is a piece of a transfer carried by a single query.
type Fragment struct {
	// ID is the transfer ID.
	ID string

	// Seq is the sequence number of this fragment within the transfer.
	Seq uint32

	// Text is the fragment payload, labels joined in transmission order.
	Text string
}

// Decoder extracts a [Fragment] from a query name.
//
// The name layout, leftmost label first, is:
//
//	<data-label>...<data-label>.<seq>.<id>.<zone>
//
// Construct using [NewDecoder] or by filling the struct.
type Decoder struct {
	// Zone is the OPTIONAL zone the listener is authoritative for.
	//
	// When empty, the decoder drops exactly one trailing label, which
	// is what you want when the sender uses a single-label suffix. The
	// root zone "." drops no labels.
	Zone string
}

// NewDecoder returns a [*Decoder] for the given zone.
func NewDecoder(zone string) *Decoder {
	return &Decoder{Zone: zone}
}

// Decode decodes the given query name into a [Fragment].
//
// The returned error wraps one of [ErrNotInZone], [ErrMalformedID],
// [ErrMalformedSequenceNumber] and [ErrMalformedFragment].
func (d *Decoder) Decode(name string) (Fragment, error) {
	// 1. obtain the raw wire labels, so that escapes are resolved
	labels, err := decoderWireLabels(name)
	if err != nil {
		return Fragment{}, fmt.Errorf("%w: %s", ErrMalformedID, err.Error())
	}

	// 2. remove the zone labels
	labels, err = d.stripZone(name, labels)
	if err != nil {
		return Fragment{}, err
	}

	// 3. the label closest to the zone is the transfer ID
	if len(labels) < 1 {
		return Fragment{}, fmt.Errorf("%w: no labels", ErrMalformedID)
	}
	rawID := labels[len(labels)-1]
	if !utf8.Valid(rawID) {
		return Fragment{}, fmt.Errorf("%w: invalid UTF-8", ErrMalformedID)
	}

	// 4. the next one is the sequence number
	if len(labels) < 2 {
		return Fragment{}, fmt.Errorf("%w: no label", ErrMalformedSequenceNumber)
	}
	seq, err := strconv.ParseUint(string(labels[len(labels)-2]), 10, 32)
	if err != nil {
		return Fragment{}, fmt.Errorf("%w: %s", ErrMalformedSequenceNumber, err.Error())
	}

	// 5. the remaining labels, leftmost first, are the fragment text
	var text strings.Builder
	for _, label := range labels[:len(labels)-2] {
		if !utf8.Valid(label) {
			return Fragment{}, fmt.Errorf("%w: invalid UTF-8", ErrMalformedFragment)
		}
		text.Write(label)
	}

	frag := Fragment{
		ID:   string(rawID),
		Seq:  uint32(seq),
		Text: text.String(),
	}
	return frag, nil
}

func (d *Decoder) stripZone(name string, labels [][]byte) ([][]byte, error) {
	if d.Zone == "" {
		if len(labels) < 1 {
			return labels, nil
		}
		return labels[:len(labels)-1], nil
	}
	zone := dns.Fqdn(d.Zone)
	if !dns.IsSubDomain(zone, dns.Fqdn(name)) {
		return nil, fmt.Errorf("%w: %s", ErrNotInZone, name)
	}
	return labels[:len(labels)-dns.CountLabel(zone)], nil
}

// decoderWireLabels returns the labels of name as raw bytes, excluding
// the root label, leftmost label first.
func decoderWireLabels(name string) ([][]byte, error) {
	buf := make([]byte, 256)
	off, err := dns.PackDomainName(dns.Fqdn(name), buf, 0, nil, false)
	if err != nil {
		return nil, err
	}
	var labels [][]byte
	for idx := 0; idx < off; {
		size := int(buf[idx])
		idx++
		if size == 0 || idx+size > off {
			break
		}
		labels = append(labels, buf[idx:idx+size])
		idx += size
	}
	return labels, nil
}
