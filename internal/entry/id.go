package entry

import (
	"encoding/base32"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// crockfordBase32 is a sortable base32 alphabet (digits before letters,
// lowercase to match spec's "26-char Crockford base32" id shape).
const crockfordBase32 = "0123456789abcdefghjkmnpqrstvwxyz"

var crockfordEncoding = base32.NewEncoding(crockfordBase32).WithPadding(base32.NoPadding)

// idLength is the fixed length of a generated id: 16 raw bytes (a UUIDv7)
// encoded 5 bits/char in Crockford base32 is ceil(128/5) = 26 characters.
const idLength = 26

// GenerateID returns a new, lexicographically sortable, time-ordered id.
//
// The id is a UUIDv7 (48-bit millisecond timestamp + 74 bits of randomness,
// RFC 9562) encoded whole in Crockford base32. Because the timestamp
// occupies the high bits, lexicographic order on the encoded id matches
// creation order, the same property ticket.GenerateID's timestamp-only
// component provides, generalized here to the full 128 bits so the id
// itself (not a separate short id) is unique without a collision-retry loop.
func GenerateID() (string, error) {
	raw, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate id: %w", err)
	}

	return crockfordEncoding.EncodeToString(raw[:]), nil
}

// ValidID reports whether id has the shape GenerateID produces: fixed
// length, Crockford base32 alphabet only.
func ValidID(id string) bool {
	if len(id) != idLength {
		return false
	}

	for i := 0; i < len(id); i++ {
		if !isCrockfordChar(id[i]) {
			return false
		}
	}

	return true
}

func isCrockfordChar(b byte) bool {
	switch {
	case b >= '0' && b <= '9':
		return true
	case b >= 'a' && b <= 'z':
		return b != 'i' && b != 'l' && b != 'o' && b != 'u'
	default:
		return false
	}
}

// idTime recovers the creation instant embedded in id's high bits. Returns
// the zero Time if id is not a GenerateID-shaped string.
func idTime(id string) (time.Time, bool) {
	if !ValidID(id) {
		return time.Time{}, false
	}

	raw, err := crockfordEncoding.DecodeString(id)
	if err != nil || len(raw) != 16 {
		return time.Time{}, false
	}

	var u uuid.UUID

	copy(u[:], raw)

	sec, nsec := u.Time().UnixTime()

	return time.Unix(sec, nsec).UTC(), true
}
