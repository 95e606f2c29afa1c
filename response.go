//
// SPDX-License-Identifier: BSD-3-Clause
//
// Adapted from: https://github.com/ooni/probe-engine/blob/v0.23.0/netx/resolver/decoder.go
// Adapted from: https://github.com/golang/go/blob/go1.21.10/src/net/dnsclient_unix.go
// Adapted from: https://github.com/rbmk-project/rbmk/blob/v0.17.0/pkg/dns/dnscore/response.go
//

package dnssteal

import (
	"errors"
	"strings"

	"github.com/miekg/dns"
)

// Additional errors emitted by [ValidateResponseForQuery].
var (
	// ErrInvalidQuery means that the query does not contain a single question.
	ErrInvalidQuery = errors.New("invalid query")
)

// ValidateResponseForQuery validates a DNS response for a given query.
// On success it returns the single validated question from the query.
//
// The comparison of names is case sensitive: the listener echoes the
// question verbatim and fragment labels are case sensitive, so a reply
// with a different case means something in the path mangled the query.
func ValidateResponseForQuery(query, resp *dns.Msg) (dns.Question, error) {
	// 1. make sure the message is actually a response
	if !resp.Response {
		return dns.Question{}, ErrInvalidResponse
	}

	// 2. make sure the response ID matches the query ID
	if resp.Id != query.Id {
		return dns.Question{}, ErrInvalidResponse
	}

	// 3. make sure the query and the response contains a question
	if len(query.Question) != 1 {
		return dns.Question{}, ErrInvalidQuery
	}
	if len(resp.Question) != 1 {
		return dns.Question{}, ErrInvalidResponse
	}
	resp0 := resp.Question[0]
	query0 := query.Question[0]

	// 4. make sure the question is the one we asked
	if resp0.Name != query0.Name {
		return dns.Question{}, ErrInvalidResponse
	}
	if resp0.Qclass != query0.Qclass {
		return dns.Question{}, ErrInvalidResponse
	}
	if resp0.Qtype != query0.Qtype {
		return dns.Question{}, ErrInvalidResponse
	}
	return query0, nil
}

// These error messages use the same suffixes used by the Go standard library.
var (
	// ErrInvalidResponse means that the response is not a response message
	// or does not contain a single question matching the query.
	ErrInvalidResponse = errors.New("invalid DNS response")

	// ErrNoName indicates that the server response code is NXDOMAIN.
	ErrNoName = errors.New("no such host")

	// ErrRefused indicates that the server response code is REFUSED,
	// which the listener uses for names outside of its zone.
	ErrRefused = errors.New("query refused")

	// ErrServerMisbehaving indicates that the server response code is
	// neither 0, nor NXDOMAIN, nor REFUSED, nor SERVFAIL.
	ErrServerMisbehaving = errors.New("server misbehaving")

	// ErrServerTemporarilyMisbehaving indicates that the server answer is SERVFAIL,
	// which the listener uses for data queries it cannot decode.
	ErrServerTemporarilyMisbehaving = errors.New("server misbehaving")

	// ErrNoData indicates that there is no pertinent answer in the response.
	ErrNoData = errors.New("no answer from DNS server")
)

// ResponseErrorFromRCODE maps an RCODE inside a valid DNS response
// to an error. If the RCODE is zero, this function returns nil.
//
// The listener answers data queries with an empty authoritative
// response, which is not a lame referral and hence not an error.
//
// Before invoking this function, make sure the response is valid
// for the request by calling [ValidateResponseForQuery].
func ResponseErrorFromRCODE(resp *dns.Msg) error {
	// 1. handle NXDOMAIN case by mapping it to EAI_NONAME
	if resp.Rcode == dns.RcodeNameError {
		return ErrNoName
	}

	// 2. handle the case of lame referral by mapping it to EAI_NODATA
	if resp.Rcode == dns.RcodeSuccess &&
		!resp.Authoritative &&
		!resp.RecursionAvailable &&
		len(resp.Answer) == 0 {
		return ErrNoData
	}

	// 3. handle any other error
	switch resp.Rcode {
	case dns.RcodeSuccess:
		return nil
	case dns.RcodeServerFailure:
		return ErrServerTemporarilyMisbehaving
	case dns.RcodeRefused:
		return ErrRefused
	default:
		return ErrServerMisbehaving
	}
}

// ResponseExtractValidAnswers extracts the RRs whose name, class and type
// match the question. The listener never emits CNAMEs, so we do not need
// to follow any chain.
//
// Before invoking this function, make sure the response is valid using
// [ValidateResponseForQuery] and it does not contain errors using
// [ResponseErrorFromRCODE]. If there are no valid RRs, this function
// returns [ErrNoData].
func ResponseExtractValidAnswers(q0 dns.Question, resp *dns.Msg) ([]dns.RR, error) {
	valid := []dns.RR{}
	for _, answer := range resp.Answer {
		header := answer.Header()
		if !strings.EqualFold(header.Name, q0.Name) {
			continue
		}
		if header.Class != q0.Qclass || header.Rrtype != q0.Qtype {
			continue
		}
		valid = append(valid, answer)
	}
	if len(valid) < 1 {
		return nil, ErrNoData
	}
	return valid, nil
}

// Response is a validated response to a control query.
//
// Construct a new instance using [ParseResponse].
type Response struct {
	// Query is the original query message.
	Query *dns.Msg

	// Response is the response message.
	Response *dns.Msg

	// ValidRRs contains the valid RRs for the query.
	ValidRRs []dns.RR
}

// ParseResponse returns a [*Response] given a query and response messages or an
// error if the response message is not valid for the query or has no answers.
func ParseResponse(query *dns.Msg, resp *dns.Msg) (*Response, error) {
	q0, err := ValidateResponseForQuery(query, resp)
	if err != nil {
		return nil, err
	}

	if err := ResponseErrorFromRCODE(resp); err != nil {
		return nil, err
	}

	rrs, err := ResponseExtractValidAnswers(q0, resp)
	if err != nil {
		return nil, err
	}

	rp := &Response{
		Query:    query,
		Response: resp,
		ValidRRs: rrs,
	}
	return rp, nil
}

// RecordsTXT returns the content of each TXT record in the response,
// with the character-strings of each record concatenated.
func (r *Response) RecordsTXT() ([]string, error) {
	out := make([]string, 0, len(r.ValidRRs))
	for _, rr := range r.ValidRRs {
		switch rr := rr.(type) {
		case *dns.TXT:
			out = append(out, strings.Join(rr.Txt, ""))
		}
	}
	if len(out) < 1 {
		return nil, ErrNoData
	}
	return out, nil
}
