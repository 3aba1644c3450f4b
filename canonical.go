package pqlog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
)

// Canonicalize deterministically serializes payload as JSON: object keys
// sorted lexicographically at every level, arrays left in encounter order,
// no insignificant whitespace, numbers printed without a forced trailing
// fraction, and time.Time values as RFC 3339 in the form encoding/json
// emits. A UTC time ends in a literal "Z"; a time in another location keeps
// its numeric offset and is not converted to UTC.
//
// No canonical-JSON library turned up anywhere in the retrieved corpus
// (see DESIGN.md); this is a small, fully-specified algorithm that gains
// nothing from an external dependency whose own rules might not agree
// byte-for-byte with the ones this format requires.
func Canonicalize(payload any) ([]byte, error) {
	normalized, err := normalize(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: canonicalize payload: %v", ErrInvalidInput, err)
	}
	var buf bytes.Buffer
	if err := writeCanonical(&buf, normalized); err != nil {
		return nil, fmt.Errorf("%w: canonicalize payload: %v", ErrInvalidInput, err)
	}
	return buf.Bytes(), nil
}

// normalize round-trips payload through encoding/json with UseNumber so
// that subsequent re-encoding has exact control over number formatting,
// and so struct values (not just maps) participate in canonicalization.
func normalize(payload any) (any, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

func writeCanonical(buf *bytes.Buffer, v any) error {
	switch t := v.(type) {
	case nil:
		buf.WriteString("null")
	case bool:
		if t {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case json.Number:
		return writeCanonicalNumber(buf, t)
	case string:
		return writeCanonicalString(buf, t)
	case []any:
		buf.WriteByte('[')
		for i, elem := range t {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeCanonical(buf, elem); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeCanonicalString(buf, k); err != nil {
				return err
			}
			buf.WriteByte(':')
			if err := writeCanonical(buf, t[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	default:
		return fmt.Errorf("unsupported type %T in canonical payload", v)
	}
	return nil
}

func writeCanonicalString(buf *bytes.Buffer, s string) error {
	encoded, err := json.Marshal(s)
	if err != nil {
		return err
	}
	buf.Write(encoded)
	return nil
}

// writeCanonicalNumber re-emits n without a forced trailing ".0": integral
// values print as integers, others print with the shortest round-tripping
// decimal representation.
func writeCanonicalNumber(buf *bytes.Buffer, n json.Number) error {
	if i, err := n.Int64(); err == nil {
		buf.WriteString(strconv.FormatInt(i, 10))
		return nil
	}
	f, err := n.Float64()
	if err != nil {
		return err
	}
	buf.WriteString(strconv.FormatFloat(f, 'f', -1, 64))
	return nil
}
