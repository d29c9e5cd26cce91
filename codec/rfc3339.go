package codec

import "time"

// TimeRFC3339 returns a codec between RFC 3339 strings and time.Time.
// Encoding normalizes to UTC with nanosecond precision and trailing zeros trimmed.
func TimeRFC3339() StringCodec[time.Time] { return rfc3339Codec{} }

type rfc3339Codec struct{}

func (rfc3339Codec) Encode(t time.Time) (string, error) { return formatRFC3339Canonical(t), nil }

func (rfc3339Codec) Decode(s string) (time.Time, error) {
	t, err := parseRFC3339(s)
	if err != nil {
		return time.Time{}, &FormatError{Format: "RFC3339 time", Value: s, Err: err}
	}
	return t, nil
}

func parseRFC3339(s string) (time.Time, error) {
	// Accept RFC3339Nano (trailing zeros optional)
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		if t2, err2 := time.Parse(time.RFC3339, s); err2 == nil {
			return t2, nil
		}
		return time.Time{}, err
	}
	return t, nil
}

func formatRFC3339Canonical(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
