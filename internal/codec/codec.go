// Package codec stores captured payloads of unknown shape as text without
// losing the original bytes.
//
// Headers and bodies are kept in a two-level envelope: an outer JSON object
// keyed by a label ("headers", "body") whose value is the inner payload as a
// string. The inner payload is usually itself JSON, so reads attempt a second
// parse and fall back to the raw inner text.
package codec

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"
)

const (
	LabelHeaders = "headers"
	LabelBody    = "body"

	encodingKey    = "encoding"
	encodingBase64 = "base64"
)

// Wrap encodes v into an envelope tagged with label. Strings and byte slices
// are stored as-is, anything else is JSON encoded first. Values that cannot be
// encoded produce an envelope holding a descriptive error string.
func Wrap(label string, v any) string {
	inner, err := innerText(v)
	if err != nil {
		return WrapError(label, fmt.Sprintf("encode %s failed: %v", label, err))
	}
	return envelope(label, inner)
}

// WrapError stores a capture failure message in place of the payload.
func WrapError(label, msg string) string {
	return envelope(label, msg)
}

// Unwrap reverses Wrap. It never fails: a malformed envelope is returned
// verbatim, and an inner payload that is not JSON is returned as a string.
func Unwrap(envelope string) any {
	if envelope == "" {
		return nil
	}

	var outer map[string]any
	if err := decode(envelope, &outer); err != nil || outer == nil {
		return envelope
	}

	label, ok := labelOf(outer)
	if !ok {
		return envelope
	}

	switch inner := outer[label].(type) {
	case nil:
		return nil
	case string:
		if enc, _ := outer[encodingKey].(string); enc == encodingBase64 {
			raw, err := base64.StdEncoding.DecodeString(inner)
			if err != nil {
				return envelope
			}
			return Parse(string(raw))
		}
		return Parse(inner)
	default:
		return inner
	}
}

// Marshal is the single-level encoding used for query parameters.
func Marshal(v any) string {
	b, err := encode(v)
	if err != nil {
		b, _ = encode(fmt.Sprintf("encode failed: %v", err))
	}
	return string(b)
}

// Parse decodes s as JSON, returning s itself when it is not valid JSON.
// Numbers are kept as json.Number so their textual form survives.
func Parse(s string) any {
	if strings.TrimSpace(s) == "" {
		return s
	}
	var v any
	if err := decode(s, &v); err != nil {
		return s
	}
	return v
}

func innerText(v any) (string, error) {
	switch val := v.(type) {
	case nil:
		return "", nil
	case string:
		return val, nil
	case []byte:
		return string(val), nil
	}
	b, err := encode(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func envelope(label, inner string) string {
	m := map[string]string{label: inner}
	if !utf8.ValidString(inner) {
		m[label] = base64.StdEncoding.EncodeToString([]byte(inner))
		m[encodingKey] = encodingBase64
	}
	// map[string]string always encodes
	b, _ := encode(m)
	return string(b)
}

func labelOf(outer map[string]any) (string, bool) {
	label := ""
	for k := range outer {
		if k == encodingKey {
			continue
		}
		if label != "" {
			return "", false
		}
		label = k
	}
	return label, label != ""
}

func encode(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

func decode(s string, v any) error {
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return errors.New("trailing data after JSON value")
	}
	return nil
}
