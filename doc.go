// SPDX-License-Identifier: GPL-3.0-or-later

// Package dnssteal reassembles files smuggled through DNS queries.
//
// A sender encodes a file into fragments and embeds each fragment, along
// with a transfer ID and a sequence number, into the labels of a query
// name. The listener side of this package works as follows:
//
//   - [*Server] reads one datagram at a time and hands it to [*Responder];
//   - [*Responder] answers control queries and feeds data queries to
//     [*Decoder] and [*Store];
//   - [*Sweeper] periodically drains idle transfers from the [*Store],
//     calls [Assemble] and forwards each [CompletedFile] to a [Sink].
//
// The sender side lives in this package as well: [*Encoder] turns a file
// into query names, [NewQuery] and [*Query] turn names into messages, and
// [*Sender] exchanges them with the listener, validating each reply with
// [ParseResponse] or [ValidateResponseForQuery].
//
// This package does not implement a DNS parser/serializer. We use and
// expose [github.com/miekg/dns] types.
package dnssteal
