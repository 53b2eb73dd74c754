package link

import (
	"strconv"
	"strings"
)

// compareIDs orders record identifiers. Two integer ids compare by value;
// integer ids sort before non-integer ids; everything else compares
// lexicographically. Equal values with different spellings ("07", "7") fall
// back to the raw strings so the order stays total.
func compareIDs(a, b string) int {
	na, aNum := parseInt(a)
	nb, bNum := parseInt(b)

	switch {
	case aNum && bNum:
		if na < nb {
			return -1
		}
		if na > nb {
			return 1
		}
		return strings.Compare(a, b)
	case aNum:
		return -1
	case bNum:
		return 1
	}
	return strings.Compare(a, b)
}

func parseInt(s string) (int64, bool) {
	n, err := strconv.ParseInt(s, 10, 64)
	return n, err == nil
}

// lowestID returns the smallest id under compareIDs.
func lowestID(ids []string) string {
	if len(ids) == 0 {
		return ""
	}
	low := ids[0]
	for _, id := range ids[1:] {
		if compareIDs(id, low) < 0 {
			low = id
		}
	}
	return low
}
