package core

// streaming.go holds the readers a delimited file passes through before the
// CSV reader sees it. Each works on a fixed buffer, so memory stays flat
// whatever the file size.
//
//   - NewBOMDecoder: drops a UTF-8 BOM, transcodes UTF-16 with a BOM
//   - NewUTF8Sanitizer: replaces invalid UTF-8 with U+FFFD
//   - StreamingCountingReader: counts bytes for logging and metrics
//
// Use WrapForStreaming to apply the decoding transforms in the correct order.

import (
	"io"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
)

// StreamingCountingReader wraps an io.Reader to track bytes read.
type StreamingCountingReader struct {
	reader    io.Reader
	BytesRead int64
}

// NewStreamingCountingReader creates a counting reader.
func NewStreamingCountingReader(r io.Reader) *StreamingCountingReader {
	return &StreamingCountingReader{reader: r}
}

// Read implements io.Reader.
func (r *StreamingCountingReader) Read(p []byte) (int, error) {
	n, err := r.reader.Read(p)
	r.BytesRead += int64(n)
	return n, err
}

// NewBOMDecoder returns a reader that drops a UTF-8 BOM and transcodes
// UTF-16 input that starts with a BOM. Input without a BOM passes through.
func NewBOMDecoder(r io.Reader) io.Reader {
	return transform.NewReader(r, unicode.BOMOverride(transform.Nop))
}

// NewUTF8Sanitizer returns a reader that replaces each invalid UTF-8
// sequence with U+FFFD.
func NewUTF8Sanitizer(r io.Reader) io.Reader {
	return transform.NewReader(r, runes.ReplaceIllFormed())
}

// WrapForStreaming wraps a reader with BOM decoding and UTF-8 sanitization.
// The BOM decides the encoding, so it is handled first.
func WrapForStreaming(r io.Reader) io.Reader {
	return NewUTF8Sanitizer(NewBOMDecoder(r))
}
