//
// SPDX-License-Identifier: BSD-3-Clause
//
// Adapted from: https://github.com/ooni/probe-engine/blob/v0.23.0/netx/resolver/encoder.go
// Adapted from: https://github.com/rbmk-project/rbmk/blob/v0.17.0/pkg/dns/dnscore/query.go
//

package dnssteal

import (
	"errors"
	"fmt"

	"github.com/miekg/dns"
)

const (
	// QueryFlagBlockLengthPadding enables using RFC8467 block length padding.
	QueryFlagBlockLengthPadding = 1 << iota

	// QueryFlagNoRecursion clears the recursion desired bit, which is
	// useful when talking directly with the listener.
	QueryFlagNoRecursion
)

// QueryMaxResponseSizeUDP is the maximum response size when using UDP
// and is consistent with what the standard library uses.
const QueryMaxResponseSizeUDP = 1232

// ErrInvalidName indicates that a query name is not a valid domain name.
var ErrInvalidName = errors.New("invalid domain name")

// Query is a DNS query sent by the [*Sender].
//
// Unlike names typed by humans, the name is used verbatim: we do not
// apply IDNA mapping because it would lowercase the fragment labels,
// which are case sensitive.
//
// Construct using [NewQuery] or set the MANDATORY fields.
type Query struct {
	// Flags OPTIONALLY modify the query flags.
	//
	// Use [QueryFlagBlockLengthPadding] and [QueryFlagNoRecursion].
	Flags uint16

	// ID is the OPTIONAL query ID.
	ID uint16

	// MaxSize is the OPTIONAL maximum response size
	// to include in the query using EDNS(0).
	MaxSize uint16

	// Name is the MANDATORY domain name to query.
	Name string

	// Type is the query type.
	Type uint16
}

// NewQuery constructs a new [*Query] with safe defaults.
//
// By default, the query uses a randomized ID, requests recursion, and uses
// [QueryMaxResponseSizeUDP] as the EDNS(0) maximum response size.
func NewQuery(name string, qtype uint16) *Query {
	return &Query{
		Name:    name,
		Type:    qtype,
		Flags:   0,
		ID:      dns.Id(),
		MaxSize: QueryMaxResponseSizeUDP,
	}
}

// NewMsg creates a new [*dns.Msg] from the [*Query].
func (q *Query) NewMsg() (*dns.Msg, error) {
	// Ensure the domain name is fully qualified and valid.
	name := dns.Fqdn(q.Name)
	if _, ok := dns.IsDomainName(name); !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidName, q.Name)
	}

	// Create the query message.
	question := dns.Question{
		Name:   name,
		Qtype:  q.Type,
		Qclass: dns.ClassINET,
	}
	msg := new(dns.Msg)
	msg.Id = q.ID
	msg.RecursionDesired = q.Flags&QueryFlagNoRecursion == 0
	msg.Question = make([]dns.Question, 1)
	msg.Question[0] = question

	// Set the EDNS(0) query options
	if q.MaxSize > 0 {
		msg.SetEdns0(q.MaxSize, false)
	}

	// Clients SHOULD pad queries to the closest multiple of
	// 128 octets RFC8467#section-4.1. We inflate the query
	// length by the size of the option (i.e. 4 octets). The
	// cast to uint is necessary to make the modulus operation
	// work as intended when the desiredBlockSize is smaller
	// than (query.Len()+4) ¯\_(ツ)_/¯.
	if q.Flags&QueryFlagBlockLengthPadding != 0 && msg.IsEdns0() != nil {
		const desiredSize = 128
		remainder := (desiredSize - uint16(msg.Len()+4)) % desiredSize
		opt := new(dns.EDNS0_PADDING)
		opt.Padding = make([]byte, remainder)
		msg.IsEdns0().Option = append(msg.IsEdns0().Option, opt)
	}

	return msg, nil
}
