// SPDX-License-Identifier: GPL-3.0-or-later

package dnssteal

import (
	"errors"
	"log/slog"
	"strings"

	"github.com/miekg/dns"
)

const (
	// ControlTTL is the TTL of the TXT records answering control queries.
	ControlTTL = 5

	// DefaultFileText is the default answer to the "file" control query.
	DefaultFileText = "dnssteal: send a file as A queries for <data>.<seq>.<id>.<zone>"

	// DefaultHelpText is the default answer to the "help" control query.
	DefaultHelpText = "usage: base64(filename NUL NUL content), replace '+' with '*', " +
		"split into fragments and append '-' to all but the last; " +
		"query <fragment labels>.<seq>.<id>.<zone> for seq = 0..N-1, " +
		"where id is the first 4 hex digits of md5(content); " +
		"the file is assembled 5 seconds after the last query"
)

// Responder computes the response to each DNS query.
//
// TXT queries are control queries, discriminated by their leftmost
// label ("file" or "help"). Any other query type carries a fragment.
//
// Construct using [NewResponder].
type Responder struct {
	// Decoder decodes data query names.
	Decoder *Decoder

	// FileText is the text served for the "file" control query.
	FileText string

	// HelpText is the text served for the "help" control query.
	HelpText string

	// Logger is the logger to use.
	Logger *slog.Logger

	// Observer is notified about accepted and rejected fragments.
	Observer Observer

	// Store receives the decoded fragments.
	Store *Store
}

// NewResponder creates a [*Responder] with default settings.
func NewResponder(decoder *Decoder, store *Store) *Responder {
	return &Responder{
		Decoder:  decoder,
		FileText: DefaultFileText,
		HelpText: DefaultHelpText,
		Logger:   slog.Default(),
		Observer: NopObserver{},
		Store:    store,
	}
}

// Respond returns the response to the given query. It always returns
// a non-nil response message, which is authoritative, not recursive
// and not truncated, and mirrors the ID, opcode and question of req.
// The RD bit is always cleared.
func (r *Responder) Respond(req *dns.Msg) *dns.Msg {
	resp := new(dns.Msg)
	resp.SetReply(req)
	resp.Authoritative = true
	resp.RecursionDesired = false
	resp.RecursionAvailable = false
	resp.Truncated = false

	// 1. we need exactly one question to do anything useful
	if len(req.Question) < 1 {
		resp.Rcode = dns.RcodeFormatError
		return resp
	}
	q0 := req.Question[0]

	// 2. TXT queries are control queries
	if q0.Qtype == dns.TypeTXT {
		r.control(q0, resp)
		return resp
	}

	// 3. anything else carries a fragment
	frag, err := r.Decoder.Decode(q0.Name)
	if err != nil {
		r.Logger.Warn("cannot decode query name", slog.String("name", q0.Name), slog.Any("err", err))
		r.Observer.FragmentRejected(err)
		resp.Rcode = dns.RcodeServerFailure
		if errors.Is(err, ErrNotInZone) {
			resp.Rcode = dns.RcodeRefused
		}
		return resp
	}
	r.Store.Upsert(frag.ID, frag.Seq, frag.Text)
	r.Observer.FragmentAccepted(frag)
	r.Logger.Debug("stored fragment", slog.String("id", frag.ID), slog.Uint64("seq", uint64(frag.Seq)))
	return resp
}

func (r *Responder) control(q0 dns.Question, resp *dns.Msg) {
	var text string
	switch labels := dns.SplitDomainName(q0.Name); {
	case len(labels) > 0 && strings.EqualFold(labels[0], "file"):
		text = r.FileText
	case len(labels) > 0 && strings.EqualFold(labels[0], "help"):
		text = r.HelpText
	default:
		resp.Rcode = dns.RcodeNameError
		return
	}
	resp.Answer = append(resp.Answer, &dns.TXT{
		Hdr: dns.RR_Header{
			Name:   q0.Name,
			Rrtype: dns.TypeTXT,
			Class:  q0.Qclass,
			Ttl:    ControlTTL,
		},
		Txt: responderSplitTXT(text),
	})
}

// responderSplitTXT splits text into character-strings of at most
// 255 bytes, which is the limit of a single TXT string.
func responderSplitTXT(text string) []string {
	const maxlen = 255
	var out []string
	for len(text) > maxlen {
		out = append(out, text[:maxlen])
		text = text[maxlen:]
	}
	return append(out, text)
}
