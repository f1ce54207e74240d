package domain

import (
	"bytes"
	"errors"
	"strconv"

	"github.com/goccy/go-json"
)

var ErrUIDEmpty = errors.New("uid empty")

// UID identifies a participant inside a media channel. The media engine
// hands out numeric ids, other sources (side-channel, signalling relay)
// may use strings, so both normalize to the decimal/string form.
type UID string

func NumericUID(n uint32) UID {
	return UID(strconv.FormatUint(uint64(n), 10))
}

func (u UID) String() string { return string(u) }

func (u UID) IsZero() bool { return u == "" }

// Numeric reports the numeric value when the uid is a decimal number.
func (u UID) Numeric() (uint32, bool) {
	n, err := strconv.ParseUint(string(u), 10, 32)
	if err != nil {
		return 0, false
	}
	return uint32(n), true
}

func (u UID) MarshalJSON() ([]byte, error) {
	if n, ok := u.Numeric(); ok {
		return []byte(strconv.FormatUint(uint64(n), 10)), nil
	}
	return json.Marshal(string(u))
}

func (u *UID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*u = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*u = UID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*u = UID(n.String())
	return nil
}
