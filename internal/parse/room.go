package parse

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var numberRe = regexp.MustCompile(`(\d+)\s*$`)

// ParsedRoom holds the structured data derived from a room number.
type ParsedRoom struct {
	Floor int
	Seq   int
}

// ParseRoomNumber derives floor and in-floor sequence from a room number such
// as "312", "A-312" or "P.1205". Room numbers follow the floor*100+seq
// convention: the trailing two digits are the sequence and everything before
// them is the floor.
func ParseRoomNumber(raw string) (ParsedRoom, error) {
	s := strings.TrimSpace(raw)

	m := numberRe.FindStringSubmatch(s)
	if m == nil {
		return ParsedRoom{}, fmt.Errorf("no numeric part in room number %q", raw)
	}
	digits := m[1]

	if len(digits) < 3 {
		// One or two digits: a ground-floor room numbered directly.
		seq, err := strconv.Atoi(digits)
		if err != nil {
			return ParsedRoom{}, fmt.Errorf("unable to parse room number %q: %w", raw, err)
		}
		return ParsedRoom{Floor: 1, Seq: seq}, nil
	}

	floor, err := strconv.Atoi(digits[:len(digits)-2])
	if err != nil {
		return ParsedRoom{}, fmt.Errorf("unable to parse floor from room number %q: %w", raw, err)
	}
	seq, err := strconv.Atoi(digits[len(digits)-2:])
	if err != nil {
		return ParsedRoom{}, fmt.Errorf("unable to parse sequence from room number %q: %w", raw, err)
	}
	if floor <= 0 {
		return ParsedRoom{}, fmt.Errorf("room number %q yields non-positive floor", raw)
	}
	return ParsedRoom{Floor: floor, Seq: seq}, nil
}
