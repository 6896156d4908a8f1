package service

import (
	"fmt"
	"strconv"
	"strings"
)

// NumberingPolicy decides the slot number given to a new slot at a station.
type NumberingPolicy string

const (
	// NumberingWrap assigns max+1 and wraps to 1 past the limit. Numbers may repeat.
	NumberingWrap NumberingPolicy = "wrap"
	// NumberingLowestFree assigns the lowest unused number and rejects a full station.
	NumberingLowestFree NumberingPolicy = "lowest-free"
	// NumberingReject assigns max+1 and rejects once the limit is reached.
	NumberingReject NumberingPolicy = "reject"
)

// DefaultSlotLimit is the number of slot numbers a station exposes.
const DefaultSlotLimit = 10

const slotIDPrefix = "SL"

// ParseNumberingPolicy parses a configured policy name. Empty selects NumberingWrap.
func ParseNumberingPolicy(raw string) (NumberingPolicy, error) {
	switch p := NumberingPolicy(strings.ToLower(strings.TrimSpace(raw))); p {
	case "":
		return NumberingWrap, nil
	case NumberingWrap, NumberingLowestFree, NumberingReject:
		return p, nil
	default:
		return "", fmt.Errorf("unknown numbering policy %q", raw)
	}
}

// NextSlotNumber returns the number for a new slot given the numbers in use.
func NextSlotNumber(policy NumberingPolicy, used []int, limit int) (number int, wrapped bool, err error) {
	if limit <= 0 {
		limit = DefaultSlotLimit
	}

	highest := 0
	for _, n := range used {
		if n > highest {
			highest = n
		}
	}

	switch policy {
	case NumberingLowestFree:
		taken := make(map[int]struct{}, len(used))
		for _, n := range used {
			taken[n] = struct{}{}
		}
		for n := 1; n <= limit; n++ {
			if _, ok := taken[n]; !ok {
				return n, false, nil
			}
		}
		return 0, false, ErrStationFull
	case NumberingReject:
		if highest+1 > limit {
			return 0, false, ErrStationFull
		}
		return highest + 1, false, nil
	default:
		if highest+1 > limit {
			return 1, true, nil
		}
		return highest + 1, false, nil
	}
}

// FormatSlotID renders a sequence value as SL followed by at least three digits.
func FormatSlotID(seq int64) string {
	return fmt.Sprintf("%s%03d", slotIDPrefix, seq)
}

// ParseSlotSequence extracts the numeric part of a slot id.
func ParseSlotSequence(id string) (int64, error) {
	if !strings.HasPrefix(id, slotIDPrefix) {
		return 0, fmt.Errorf("slot id %q: missing %s prefix", id, slotIDPrefix)
	}
	seq, err := strconv.ParseInt(id[len(slotIDPrefix):], 10, 64)
	if err != nil || seq <= 0 {
		return 0, fmt.Errorf("slot id %q: invalid sequence", id)
	}
	return seq, nil
}
