// SPDX-License-Identifier: GPL-3.0-or-later

package dnssteal

import (
	"strings"
	"testing"

	"github.com/miekg/dns"
	"github.com/stretchr/testify/require"
)

func TestTransferID(t *testing.T) {
	require.Equal(t, "bea8", TransferID([]byte("Hello, World!\n")))
	require.Equal(t, "d41d", TransferID(nil))
}

func TestEncoderEncodeFile(t *testing.T) {
	encoder := NewEncoder("example.com")
	encoder.FragmentSize = 5

	id, fragments := encoder.EncodeFile("hello.txt", []byte("Hello, World!\n"))
	require.Equal(t, "bea8", id)
	require.Greater(t, len(fragments), 1)

	for idx, fragment := range fragments {
		if idx == len(fragments)-1 {
			require.False(t, strings.HasSuffix(fragment, "-"))
			require.LessOrEqual(t, len(fragment), 5)
			continue
		}
		require.True(t, strings.HasSuffix(fragment, "-"))
		require.Len(t, fragment, 6)
	}
}

func TestEncoderEncodeFileDefaultSize(t *testing.T) {
	encoder := &Encoder{Zone: "example.com"}
	_, fragments := encoder.EncodeFile("big", []byte(strings.Repeat("x", 1000)))
	require.Len(t, fragments[0], DefaultFragmentSize+1)
}

func TestEncoderNames(t *testing.T) {
	encoder := NewEncoder("example.com.")
	fragment := strings.Repeat("A", DefaultFragmentSize) + "-"

	names, err := encoder.Names("ab12", []string{fragment, "Zm9v"})
	require.NoError(t, err)
	require.Len(t, names, 2)

	labels := dns.SplitDomainName(names[0])
	require.Equal(t, []string{
		strings.Repeat("A", 63),
		strings.Repeat("A", 57) + "-",
		"0", "ab12", "example", "com",
	}, labels)
	require.Equal(t, "Zm9v.1.ab12.example.com.", names[1])
}

func TestEncoderNamesEmptyFragment(t *testing.T) {
	encoder := NewEncoder("example.com")
	names, err := encoder.Names("ab12", []string{""})
	require.NoError(t, err)
	require.Equal(t, []string{"0.ab12.example.com."}, names)
}

func TestEncoderNamesSmallLabels(t *testing.T) {
	encoder := NewEncoder("example.com")
	encoder.LabelSize = 2
	names, err := encoder.Names("ab12", []string{"abcde"})
	require.NoError(t, err)
	require.Equal(t, []string{"ab.cd.e.0.ab12.example.com."}, names)
}

func TestEncoderNamesIDN(t *testing.T) {
	encoder := NewEncoder("bücher.example")
	names, err := encoder.Names("ab12", []string{"Zm9v"})
	require.NoError(t, err)
	require.Equal(t, []string{"Zm9v.0.ab12.xn--bcher-kva.example."}, names)
}

func TestEncoderNamesErrors(t *testing.T) {
	tests := []struct {
		name     string
		zone     string
		fragment string
	}{
		{name: "EmptyZone", zone: "", fragment: "Zm9v"},
		{name: "RootZone", zone: ".", fragment: "Zm9v"},
		{name: "NameTooLong", zone: "example.com", fragment: strings.Repeat("A", 300)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			encoder := NewEncoder(tt.zone)
			names, err := encoder.Names("ab12", []string{tt.fragment})
			require.ErrorIs(t, err, ErrInvalidName)
			require.Nil(t, names)
		})
	}
}

func TestEncoderDecoderRoundTrip(t *testing.T) {
	encoder := NewEncoder("x.example.com")
	encoder.FragmentSize = 100
	decoder := NewDecoder("x.example.com")

	content := []byte(strings.Repeat("round trip through query names\n", 20))
	id, fragments := encoder.EncodeFile("rt.txt", content)
	names, err := encoder.Names(id, fragments)
	require.NoError(t, err)

	for seq, name := range names {
		frag, err := decoder.Decode(name)
		require.NoError(t, err)
		require.Equal(t, Fragment{ID: id, Seq: uint32(seq), Text: fragments[seq]}, frag)
	}
}
