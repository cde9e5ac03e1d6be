package json

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
	Note  string  `json:"note,omitempty"`
}

func TestNewEncoderDoesNotEscapeHTML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewEncoder(&buf).Encode(sample{Name: "<a&b>"}))
	assert.Equal(t, `{"name":"<a&b>","value":0}`+"\n", buf.String())
}

func TestNewDecoderStrict(t *testing.T) {
	var v sample
	err := NewDecoder(bytes.NewBufferString(`{"name":"x","extra":1}`), true).Decode(&v)
	assert.Error(t, err)

	err = NewDecoder(bytes.NewBufferString(`{"name":"x","extra":1}`), false).Decode(&v)
	require.NoError(t, err)
	assert.Equal(t, "x", v.Name)
}

func TestStreamingEncoderArray(t *testing.T) {
	var buf bytes.Buffer
	se := NewStreamingEncoder(&buf, true)
	require.NoError(t, se.Encode(sample{Name: "a", Value: 1}))
	require.NoError(t, se.Encode(sample{Name: "b", Value: 2}))
	require.NoError(t, se.Close())
	assert.Equal(t, 2, se.Count())

	var got []sample
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, []sample{{Name: "a", Value: 1}, {Name: "b", Value: 2}}, got)
}

func TestStreamingEncoderPrettyArray(t *testing.T) {
	var buf bytes.Buffer
	se := NewStreamingEncoder(&buf, true)
	se.SetPretty("  ")
	require.NoError(t, se.Encode(sample{Name: "a"}))
	require.NoError(t, se.Encode(sample{Name: "b"}))
	require.NoError(t, se.Close())

	var got []sample
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Len(t, got, 2)
	assert.Contains(t, buf.String(), "\n  \"name\": \"a\"")
}

func TestStreamingEncoderEmptyArray(t *testing.T) {
	var buf bytes.Buffer
	se := NewStreamingEncoder(&buf, true)
	require.NoError(t, se.Close())
	assert.Equal(t, "[]\n", buf.String())
}

func TestStreamingEncoderLines(t *testing.T) {
	var buf bytes.Buffer
	se := NewStreamingEncoder(&buf, false)
	require.NoError(t, se.Encode(sample{Name: "a"}))
	require.NoError(t, se.Encode(sample{Name: "b"}))
	require.NoError(t, se.Close())
	assert.Equal(t, "{\"name\":\"a\",\"value\":0}\n{\"name\":\"b\",\"value\":0}\n", buf.String())
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestStreamingEncoderStickyError(t *testing.T) {
	se := NewStreamingEncoder(failingWriter{}, true)
	err := se.Encode(sample{Name: "a"})
	require.Error(t, err)
	assert.Equal(t, err, se.Encode(sample{Name: "b"}))
	assert.Equal(t, err, se.Close())
	assert.Zero(t, se.Count())
}
