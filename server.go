// SPDX-License-Identifier: GPL-3.0-or-later

package dnssteal

import (
	"context"
	"errors"
	"log/slog"
	"net"

	"github.com/miekg/dns"
)

// ServerMaxQuerySize is the size of the buffer used to read queries.
const ServerMaxQuerySize = 4096

// Server reads DNS queries from a packet connection and writes back the
// responses computed by a [*Responder], one query at a time.
//
// Construct using [NewServer].
type Server struct {
	// Logger is the logger to use.
	Logger *slog.Logger

	// Responder computes the responses.
	Responder *Responder
}

// NewServer creates a new [*Server].
func NewServer(responder *Responder) *Server {
	return &Server{
		Logger:    slog.Default(),
		Responder: responder,
	}
}

// ListenAndServe binds a UDP socket to address and calls [*Server.Serve].
func (s *Server) ListenAndServe(ctx context.Context, address string) error {
	var lc net.ListenConfig
	conn, err := lc.ListenPacket(ctx, "udp", address)
	if err != nil {
		return err
	}
	s.Logger.Info("listening", slog.String("addr", conn.LocalAddr().String()))
	return s.Serve(ctx, conn)
}

// Serve handles queries arriving on conn until the context is done, in
// which case it closes conn and returns nil, or reading fails, in which
// case it returns the error.
//
// Each well-formed query receives exactly one response. Datagrams that
// cannot be parsed as DNS messages are dropped.
func (s *Server) Serve(ctx context.Context, conn net.PacketConn) error {
	stop := context.AfterFunc(ctx, func() {
		conn.Close()
	})
	defer stop()

	buf := make([]byte, ServerMaxQuerySize)
	for {
		count, addr, err := conn.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			var neterr net.Error
			if errors.As(err, &neterr) && neterr.Timeout() {
				continue
			}
			return err
		}
		s.serveOne(conn, addr, buf[:count])
	}
}

func (s *Server) serveOne(conn net.PacketConn, addr net.Addr, rawQuery []byte) {
	// 1. parse the query
	query := new(dns.Msg)
	if err := query.Unpack(rawQuery); err != nil {
		s.Logger.Warn("cannot unpack query", slog.String("remote", addr.String()), slog.Any("err", err))
		return
	}

	// 2. compute and serialize the response
	resp := s.Responder.Respond(query)
	rawResp, err := resp.Pack()
	if err != nil {
		s.Logger.Warn("cannot pack response", slog.String("remote", addr.String()), slog.Any("err", err))
		return
	}

	// 3. send the response
	if _, err := conn.WriteTo(rawResp, addr); err != nil {
		s.Logger.Warn("cannot send response", slog.String("remote", addr.String()), slog.Any("err", err))
	}
}
