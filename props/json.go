package props

import (
	"bytes"
	"encoding/json"
	"io"
	"os"

	"github.com/wippyai/syngen/errors"
)

// DecodeJSON reads one JSON document, keeping object keys in document
// order. Numbers keep their source text.
func DecodeJSON(r io.Reader) (Value, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	v, err := decodeValue(dec)
	if err != nil {
		return Value{}, errors.ParseFailed("json", err)
	}
	return v, nil
}

// ParseJSON decodes a JSON object into a Map.
func ParseJSON(data []byte) (*Map, error) {
	v, err := DecodeJSON(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	if v.Kind() != KindMapping {
		return nil, errors.InvalidInput(errors.PhaseConfig, "top-level JSON value must be an object, got "+v.Kind().String())
	}
	return v.Map(), nil
}

// LoadFile parses a JSON configuration file.
func LoadFile(path string) (*Map, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.ParseFailed(path, err)
	}
	return ParseJSON(data)
}

func decodeValue(dec *json.Decoder) (Value, error) {
	tok, err := dec.Token()
	if err != nil {
		return Value{}, err
	}
	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			m := NewMap()
			for dec.More() {
				kt, err := dec.Token()
				if err != nil {
					return Value{}, err
				}
				key, _ := kt.(string)
				v, err := decodeValue(dec)
				if err != nil {
					return Value{}, err
				}
				m.Set(key, v)
			}
			if _, err := dec.Token(); err != nil {
				return Value{}, err
			}
			return Mapping(m), nil
		case '[':
			items := []Value{}
			for dec.More() {
				v, err := decodeValue(dec)
				if err != nil {
					return Value{}, err
				}
				items = append(items, v)
			}
			if _, err := dec.Token(); err != nil {
				return Value{}, err
			}
			return Seq(items...), nil
		}
	case nil:
		return Value{}, nil
	}
	return Scalar(tok), nil
}
