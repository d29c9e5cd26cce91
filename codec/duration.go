package codec

import "time"

// Duration returns a codec between Go duration strings ("1h30m") and time.Duration.
func Duration() StringCodec[time.Duration] { return durationCodec{} }

type durationCodec struct{}

func (durationCodec) Encode(d time.Duration) (string, error) { return d.String(), nil }

func (durationCodec) Decode(s string) (time.Duration, error) {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, &FormatError{Format: "duration", Value: s, Err: err}
	}
	return d, nil
}
