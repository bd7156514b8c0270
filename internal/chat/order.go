package chat

import (
	"strconv"
	"strings"
)

// Compare orders messages by timestamp, then by id.
func Compare(a, b Message) int {
	if c := a.Timestamp.Compare(b.Timestamp); c != 0 {
		return c
	}
	return CompareIDs(a.ID, b.ID)
}

// CompareIDs orders numeric ids by value, numeric ids before others, and
// everything else lexically.
func CompareIDs(a, b string) int {
	na, aNum := parseNumericID(a)
	nb, bNum := parseNumericID(b)
	switch {
	case aNum && bNum:
		switch {
		case na < nb:
			return -1
		case na > nb:
			return 1
		}
		return 0
	case aNum:
		return -1
	case bNum:
		return 1
	}
	return strings.Compare(a, b)
}

func parseNumericID(s string) (uint64, bool) {
	if s == "" {
		return 0, false
	}
	n, err := strconv.ParseUint(s, 10, 64)
	return n, err == nil
}
