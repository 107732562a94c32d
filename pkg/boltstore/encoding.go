package boltstore

import (
	"bytes"
	"encoding/gob"
)

// Records are gob-encoded.

func encode[T any](v *T) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// decode always fills a zero T. gob leaves zero-valued fields out of the
// stream, so a pre-populated target would keep values the writer cleared.
func decode[T any](data []byte) (*T, error) {
	v := new(T)
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(v); err != nil {
		return nil, err
	}
	return v, nil
}
