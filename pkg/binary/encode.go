package binary

import (
	"fmt"
)

// Marshal encodes rec into a freshly allocated slice of exactly rec.Size() bytes.
func Marshal(rec Record, order ByteOrder) ([]byte, error) {
	buf := NewBuffer(rec.Size()).SetOrder(order)

	if err := Encode(buf, rec); err != nil {
		return nil, fmt.Errorf("failed to encode %T: %w", rec, err)
	}

	return buf.data, nil
}

// Unmarshal decodes rec from the start of data.
func Unmarshal(data []byte, rec Record, order ByteOrder) error {
	buf := Wrap(data).SetOrder(order)

	if err := Decode(buf, rec); err != nil {
		return fmt.Errorf("failed to decode %T: %w", rec, err)
	}

	return nil
}
