// SPDX-License-Identifier: GPL-3.0-or-later

package dnssteal

import (
	"encoding/base64"
	"encoding/json"
	"math/rand/v2"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// testEnvelope returns the transmitted payload of the given envelope
// as a single fragment.
func testEnvelope(filename, ctype, content string) map[uint32]string {
	raw := filename + "\x00" + ctype + "\x00" + content
	payload := base64.StdEncoding.EncodeToString([]byte(raw))
	payload = strings.ReplaceAll(payload, "+", "*")
	return map[uint32]string{0: payload}
}

// testFragments encodes a file and returns its ID and fragments.
func testFragments(filename, content string, size int) (string, map[uint32]string) {
	encoder := NewEncoder("example.com")
	encoder.FragmentSize = size
	id, fragments := encoder.EncodeFile(filename, []byte(content))
	out := make(map[uint32]string)
	for seq, fragment := range fragments {
		out[uint32(seq)] = fragment
	}
	return id, out
}

func TestAssembleRoundTrip(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		content  string
		size     int
	}{
		{name: "SingleFragment", filename: "a.txt", content: "short", size: 120},
		{name: "ManyFragments", filename: "hello.txt", content: "Hello, World!\n", size: 4},
		{name: "EmptyContent", filename: "empty", content: "", size: 16},
		{name: "EmptyFilename", filename: "", content: "anonymous", size: 16},
		{name: "PlusInAlphabet", filename: "f", content: "~~~~~~", size: 3},
		{name: "Unicode", filename: "ünïcødé.md", content: "日本語のテキスト\n", size: 7},
		{name: "Large", filename: "big.bin", content: strings.Repeat("0123456789abcdef", 512), size: 120},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, fragments := testFragments(tt.filename, tt.content, tt.size)
			now := time.Unix(1700000000, 0)

			file, err := Assemble(id, fragments, now)
			require.NoError(t, err)
			require.Equal(t, tt.filename, file.Filename)
			require.Equal(t, tt.content, file.Content)
			require.Equal(t, id, file.ChecksumHex[:ChecksumPrefixLen])
			require.Len(t, file.ChecksumHex, 32)
			require.Equal(t, now, file.CompletedAt)
		})
	}
}

func TestAssemblePlusSubstitute(t *testing.T) {
	_, fragments := testFragments("f", "~~~~~~", 1024)
	require.Contains(t, fragments[0], "*")
	require.NotContains(t, fragments[0], "+")
}

func TestAssembleShuffledInsertion(t *testing.T) {
	id, fragments := testFragments("shuffle.txt", strings.Repeat("shuffled content ", 64), 10)

	seqs := make([]uint32, 0, len(fragments))
	for seq := range fragments {
		seqs = append(seqs, seq)
	}
	rand.Shuffle(len(seqs), func(i, j int) {
		seqs[i], seqs[j] = seqs[j], seqs[i]
	})

	store := NewStore()
	for _, seq := range seqs {
		store.Upsert(id, seq, fragments[seq])
	}
	drained := store.DrainIdle(-time.Second, time.Now())
	require.Len(t, drained, 1)

	file, err := Assemble(drained[0].ID, drained[0].Fragments, time.Now())
	require.NoError(t, err)
	require.Equal(t, strings.Repeat("shuffled content ", 64), file.Content)
}

func TestAssembleLossyDecoding(t *testing.T) {
	fragments := testEnvelope("bad\xffname", "", "bad\xffcontent")
	id := TransferID([]byte("bad\uFFFDcontent"))

	file, err := Assemble(id, fragments, time.Now())
	require.NoError(t, err)
	require.Equal(t, "bad\uFFFDname", file.Filename)
	require.Equal(t, "bad\uFFFDcontent", file.Content)
}

func TestAssembleLossyString(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "Valid", input: "h\u00e9llo \u65e5\u672c", expected: "h\u00e9llo \u65e5\u672c"},
		{name: "ValidReplacementChar", input: "a\uFFFDb", expected: "a\uFFFDb"},
		{name: "TwoInvalidBytes", input: "\xff\xfe", expected: "\uFFFD\uFFFD"},
		{name: "TruncatedSequence", input: "\xe2\x82", expected: "\uFFFD"},
		{name: "TruncatedThenASCII", input: "\xe2\x82x", expected: "\uFFFDx"},
		{name: "TruncatedFourBytes", input: "\xf0\x9f\x98", expected: "\uFFFD"},
		{name: "Surrogate", input: "\xed\xa0\x80", expected: "\uFFFD\uFFFD\uFFFD"},
		{name: "Overlong", input: "\xc0\xaf", expected: "\uFFFD\uFFFD"},
		{name: "LoneContinuation", input: "a\x80b", expected: "a\uFFFDb"},
		{name: "PNGHeader", input: "\x89PNG\xff\xfe\x00\x01", expected: "\uFFFDPNG\uFFFD\uFFFD\x00\x01"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.expected, assembleLossyString([]byte(tt.input)))
		})
	}
}

func TestAssembleErrors(t *testing.T) {
	id, fragments := testFragments("hello.txt", "Hello, World!\n", 4)
	require.Greater(t, len(fragments), 3)

	tests := []struct {
		name      string
		id        string
		fragments map[uint32]string
		err       error
	}{
		{
			name:      "NoFragments",
			id:        id,
			fragments: map[uint32]string{},
			err:       ErrIncompleteTransfer,
		},

		{
			name:      "Gap",
			id:        id,
			fragments: map[uint32]string{0: fragments[0], 2: fragments[2]},
			err:       ErrIncompleteTransfer,
		},

		{
			name:      "MissingFirst",
			id:        id,
			fragments: map[uint32]string{1: fragments[1], 2: fragments[2]},
			err:       ErrIncompleteTransfer,
		},

		{
			name:      "MissingLast",
			id:        id,
			fragments: map[uint32]string{0: fragments[0], 1: fragments[1]},
			err:       ErrMissingTerminator,
		},

		{
			name:      "NotBase64",
			id:        id,
			fragments: map[uint32]string{0: "!!!!"},
			err:       ErrPayloadDecode,
		},

		{
			name:      "BadPadding",
			id:        id,
			fragments: map[uint32]string{0: "aGVsbG8"},
			err:       ErrPayloadDecode,
		},

		{
			name:      "NoSeparators",
			id:        id,
			fragments: map[uint32]string{0: base64.StdEncoding.EncodeToString([]byte("nonull"))},
			err:       ErrMalformedEnvelope,
		},

		{
			name:      "OneSeparator",
			id:        id,
			fragments: map[uint32]string{0: base64.StdEncoding.EncodeToString([]byte("name\x00content"))},
			err:       ErrMalformedEnvelope,
		},

		{
			name:      "EmptyPayload",
			id:        id,
			fragments: map[uint32]string{0: ""},
			err:       ErrMalformedEnvelope,
		},

		{
			name:      "GzipContentType",
			id:        id,
			fragments: testEnvelope("hello.txt", ContentTypeGzip, "Hello, World!\n"),
			err:       ErrUnsupportedContentType,
		},

		{
			name:      "ChecksumMismatch",
			id:        "0000",
			fragments: testEnvelope("hello.txt", "", "Hello, World!\n"),
			err:       ErrChecksumMismatch,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			file, err := Assemble(tt.id, tt.fragments, time.Now())
			require.ErrorIs(t, err, tt.err)
			require.Equal(t, CompletedFile{}, file)
		})
	}
}

func TestAssembleContentMayContainNUL(t *testing.T) {
	content := "before\x00after"
	fragments := testEnvelope("nul.bin", "", content)

	file, err := Assemble(TransferID([]byte(content)), fragments, time.Now())
	require.NoError(t, err)
	require.Equal(t, content, file.Content)
}

func TestCompletedFileMarshalJSON(t *testing.T) {
	file := CompletedFile{
		Filename:    "hello.txt",
		Content:     "Hello, World!\n",
		ChecksumHex: "bea8252ff4e80f41719ea13cdf007273",
		CompletedAt: time.Unix(1700000000, 0),
	}

	data, err := json.Marshal(file)
	require.NoError(t, err)
	require.JSONEq(t, `{
		"filename": "hello.txt",
		"content": "Hello, World!\n",
		"md5": "bea8252ff4e80f41719ea13cdf007273",
		"time": 1700000000
	}`, string(data))
}
