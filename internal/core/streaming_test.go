package core

import (
	"bytes"
	"io"
	"strings"
	"testing"
	"testing/iotest"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readAllString(t *testing.T, r io.Reader) string {
	t.Helper()
	b, err := io.ReadAll(r)
	require.NoError(t, err)
	return string(b)
}

func TestBOMDecoder(t *testing.T) {
	tests := []struct {
		name  string
		input []byte
		want  string
	}{
		{"utf-8 bom", []byte("\xEF\xBB\xBFname,phone"), "name,phone"},
		{"no bom", []byte("name,phone"), "name,phone"},
		{"empty", nil, ""},
		{"bom only", []byte{0xEF, 0xBB, 0xBF}, ""},
		{"partial bom kept", []byte{0xEF, 0xBB, 'x'}, string([]byte{0xEF, 0xBB, 'x'})},
		{"utf-16le", []byte{0xFF, 0xFE, 'a', 0, ',', 0, 'b', 0}, "a,b"},
		{"utf-16be", []byte{0xFE, 0xFF, 0, 'a', 0, ',', 0, 'b'}, "a,b"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, readAllString(t, NewBOMDecoder(bytes.NewReader(tt.input))))
		})
	}
}

func TestUTF8Sanitizer(t *testing.T) {
	t.Run("valid input unchanged", func(t *testing.T) {
		in := "Müller,+61 400 000 000,€12.50"
		assert.Equal(t, in, readAllString(t, NewUTF8Sanitizer(strings.NewReader(in))))
	})

	t.Run("invalid byte replaced", func(t *testing.T) {
		got := readAllString(t, NewUTF8Sanitizer(strings.NewReader("he\xfflo")))
		assert.Equal(t, "he�lo", got)
	})

	t.Run("runes split across reads", func(t *testing.T) {
		in := "Zoë,São Paulo,€"
		got := readAllString(t, NewUTF8Sanitizer(iotest.OneByteReader(strings.NewReader(in))))
		assert.Equal(t, in, got)
	})

	t.Run("truncated rune at eof", func(t *testing.T) {
		got := readAllString(t, NewUTF8Sanitizer(strings.NewReader("abc\xe2\x82")))
		assert.True(t, strings.HasPrefix(got, "abc"))
		assert.True(t, utf8.ValidString(got))
	})
}

func TestStreamingCountingReader(t *testing.T) {
	input := strings.Repeat("row,1\n", 50)
	r := NewStreamingCountingReader(iotest.HalfReader(strings.NewReader(input)))

	buf := make([]byte, 7)
	_, err := r.Read(buf)
	require.NoError(t, err)
	assert.LessOrEqual(t, r.BytesRead, int64(7))
	assert.Positive(t, r.BytesRead)

	_, err = io.Copy(io.Discard, r)
	require.NoError(t, err)
	assert.Equal(t, int64(len(input)), r.BytesRead)
}

func TestWrapForStreaming(t *testing.T) {
	tests := []struct {
		name  string
		input []byte
		want  string
	}{
		{"plain", []byte("a,b\n1,2\n"), "a,b\n1,2\n"},
		{"bom stripped", []byte("\xEF\xBB\xBFa,b\n"), "a,b\n"},
		{"invalid without bom", []byte("he\xfflo"), "he�lo"},
		{"invalid after bom", []byte("\xEF\xBB\xBFhe\xfflo"), "he�lo"},
		{"utf-16le transcoded", []byte{0xFF, 0xFE, 'x', 0, '\n', 0}, "x\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, readAllString(t, WrapForStreaming(bytes.NewReader(tt.input))))
		})
	}
}
