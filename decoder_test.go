// SPDX-License-Identifier: GPL-3.0-or-later

package dnssteal

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecoderDecode(t *testing.T) {
	tests := []struct {
		name     string
		zone     string
		qname    string
		expected Fragment
		err      error
	}{
		{
			name:     "SingleLabelSuffix",
			zone:     "",
			qname:    "aGVsbG8-.0.bea8.x.",
			expected: Fragment{ID: "bea8", Seq: 0, Text: "aGVsbG8-"},
		},

		{
			name:     "RootZone",
			zone:     ".",
			qname:    "abc.0.ab12.",
			expected: Fragment{ID: "ab12", Seq: 0, Text: "abc"},
		},

		{
			name:     "MultipleDataLabels",
			zone:     "example.com",
			qname:    "first.second.third.12.bea8.example.com.",
			expected: Fragment{ID: "bea8", Seq: 12, Text: "firstsecondthird"},
		},

		{
			name:     "ZoneIsCaseInsensitive",
			zone:     "Example.COM.",
			qname:    "AbC.1.bea8.example.com.",
			expected: Fragment{ID: "bea8", Seq: 1, Text: "AbC"},
		},

		{
			name:     "Base64Alphabet",
			zone:     "example.com",
			qname:    "a*b/c=.3.bea8.example.com.",
			expected: Fragment{ID: "bea8", Seq: 3, Text: "a*b/c="},
		},

		{
			name:     "EmptyFragment",
			zone:     "example.com",
			qname:    "0.bea8.example.com.",
			expected: Fragment{ID: "bea8", Seq: 0, Text: ""},
		},

		{
			name:     "EscapedBytes",
			zone:     "example.com",
			qname:    `a\.b.0.bea8.example.com.`,
			expected: Fragment{ID: "bea8", Seq: 0, Text: "a.b"},
		},

		{
			name:  "NotInZone",
			zone:  "example.com",
			qname: "abc.0.bea8.example.org.",
			err:   ErrNotInZone,
		},

		{
			name:  "NoLabels",
			zone:  "example.com",
			qname: "example.com.",
			err:   ErrMalformedID,
		},

		{
			name:  "InvalidUTF8ID",
			zone:  "example.com",
			qname: `abc.0.\255\254.example.com.`,
			err:   ErrMalformedID,
		},

		{
			name:  "MissingSequenceNumber",
			zone:  "example.com",
			qname: "bea8.example.com.",
			err:   ErrMalformedSequenceNumber,
		},

		{
			name:  "NonNumericSequenceNumber",
			zone:  "example.com",
			qname: "abc.one.bea8.example.com.",
			err:   ErrMalformedSequenceNumber,
		},

		{
			name:  "NegativeSequenceNumber",
			zone:  "example.com",
			qname: "abc.-1.bea8.example.com.",
			err:   ErrMalformedSequenceNumber,
		},

		{
			name:  "SequenceNumberOverflow",
			zone:  "example.com",
			qname: "abc.4294967296.bea8.example.com.",
			err:   ErrMalformedSequenceNumber,
		},

		{
			name:  "InvalidUTF8Fragment",
			zone:  "example.com",
			qname: `ok.\255.0.bea8.example.com.`,
			err:   ErrMalformedFragment,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frag, err := NewDecoder(tt.zone).Decode(tt.qname)
			if tt.err != nil {
				require.ErrorIs(t, err, tt.err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.expected, frag)
		})
	}
}

func TestDecoderWireLabels(t *testing.T) {
	labels, err := decoderWireLabels(`a\046b.c\255.example.com`)
	require.NoError(t, err)
	require.Equal(t, [][]byte{
		[]byte("a.b"),
		{'c', 0xff},
		[]byte("example"),
		[]byte("com"),
	}, labels)

	labels, err = decoderWireLabels(".")
	require.NoError(t, err)
	require.Empty(t, labels)
}
