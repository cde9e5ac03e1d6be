// Package json provides goccy/go-json backed encoding helpers for reports.
package json

import (
	"io"

	gojson "github.com/goccy/go-json"
)

// NewEncoder returns an encoder that does not escape HTML.
func NewEncoder(w io.Writer) *gojson.Encoder {
	enc := gojson.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return enc
}

// NewDecoder returns a decoder that rejects unknown fields when strict is set.
func NewDecoder(r io.Reader, strict bool) *gojson.Decoder {
	dec := gojson.NewDecoder(r)
	if strict {
		dec.DisallowUnknownFields()
	}
	return dec
}

// StreamingEncoder writes values one at a time as a JSON array or as
// line-delimited JSON.
type StreamingEncoder struct {
	writer  io.Writer
	encoder *gojson.Encoder
	count   int
	isArray bool
	pretty  bool
	err     error
}

// NewStreamingEncoder creates a new streaming encoder
func NewStreamingEncoder(w io.Writer, isArray bool) *StreamingEncoder {
	return &StreamingEncoder{
		writer:  w,
		encoder: NewEncoder(w),
		isArray: isArray,
	}
}

// SetPretty indents each value
func (se *StreamingEncoder) SetPretty(indent string) {
	se.pretty = indent != ""
	se.encoder.SetIndent("", indent)
}

// Count returns the number of values encoded so far.
func (se *StreamingEncoder) Count() int {
	return se.count
}

// Encode encodes a single value
func (se *StreamingEncoder) Encode(v interface{}) error {
	if se.err != nil {
		return se.err
	}
	if se.isArray {
		sep := []byte{','}
		if se.count == 0 {
			sep = []byte{'['}
		}
		if se.pretty {
			sep = append(sep, '\n')
		}
		if _, err := se.writer.Write(sep); err != nil {
			se.err = err
			return err
		}
	}
	if err := se.encoder.Encode(v); err != nil {
		se.err = err
		return err
	}
	se.count++
	return nil
}

// Close terminates the array. It does not close the underlying writer.
func (se *StreamingEncoder) Close() error {
	if se.err != nil || !se.isArray {
		return se.err
	}
	end := []byte{']', '\n'}
	if se.count == 0 {
		end = []byte("[]\n")
	}
	_, err := se.writer.Write(end)
	return err
}
