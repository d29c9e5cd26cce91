package codec

import "github.com/google/uuid"

// UUID returns a codec between canonical UUID strings and uuid.UUID.
// Decoding accepts every form uuid.Parse accepts (braces, urn prefix).
func UUID() StringCodec[uuid.UUID] { return uuidCodec{} }

type uuidCodec struct{}

func (uuidCodec) Encode(u uuid.UUID) (string, error) { return u.String(), nil }

func (uuidCodec) Decode(s string) (uuid.UUID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, &FormatError{Format: "UUID", Value: s, Err: err}
	}
	return u, nil
}
