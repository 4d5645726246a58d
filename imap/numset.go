package imap

// Sequence sets and UID sets (RFC 9051 §9, sequence-set / uid-set ABNF),
// used by FETCH/STORE/SEARCH/COPY argument construction. SeqSet and
// UIDSet are thin typed wrappers
// around rangeList so the range arithmetic (parsing, containment,
// formatting) lives in exactly one place despite having two distinct
// element types (bare sequence numbers vs. UIDs).

import (
	"fmt"
	"strconv"
	"strings"
)

// UID is an IMAP unique identifier, stable across a mailbox's lifetime
// (barring a UIDVALIDITY change).
type UID uint32

// SeqNum is a 1-based IMAP message sequence number, meaningful only within
// the currently selected mailbox and shifting as messages are expunged.
type SeqNum uint32

// NumRange is an inclusive endpoint pair, either a sequence-number or a UID
// range depending on context. Stop == 0 stands for "*", the open end of a
// "start:*" range; Start == Stop represents a single number.
type NumRange struct {
	Start uint32
	Stop  uint32
}

// Contains reports whether num falls within the range, normalizing
// out-of-order endpoints the way RFC 9051 §9 permits ("5:3" means "3:5").
func (r NumRange) Contains(num uint32) bool {
	if r.Stop == 0 {
		return num >= r.Start
	}
	lo, hi := r.Start, r.Stop
	if lo > hi {
		lo, hi = hi, lo
	}
	return num >= lo && num <= hi
}

// String renders the range in wire form: "n" for a single number, else
// "start:stop" ("start:*" when Stop is the open end).
func (r NumRange) String() string {
	if r.Start == r.Stop {
		return strconv.FormatUint(uint64(r.Start), 10)
	}
	stop := "*"
	if r.Stop != 0 {
		stop = strconv.FormatUint(uint64(r.Stop), 10)
	}
	return strconv.FormatUint(uint64(r.Start), 10) + ":" + stop
}

// NumSet is satisfied by both SeqSet and UIDSet, letting command builders
// that don't care which kind of number a set holds (e.g. a generic FETCH
// helper) accept either.
type NumSet interface {
	String() string
	Dynamic() bool
	Ranges() []NumRange
}

// rangeList holds the range arithmetic shared by SeqSet and UIDSet: both
// are just a sorted-or-not list of NumRange under a type-specific facade.
type rangeList struct {
	ranges []NumRange
}

func parseRangeList(s string) (rangeList, error) {
	ranges, err := parseNumSet(s)
	if err != nil {
		return rangeList{}, err
	}
	return rangeList{ranges: ranges}, nil
}

func (rl rangeList) String() string { return formatNumSet(rl.ranges) }

func (rl rangeList) Dynamic() bool {
	for _, r := range rl.ranges {
		if r.Start == 0 || r.Stop == 0 {
			return true
		}
	}
	return false
}

func (rl rangeList) Ranges() []NumRange { return rl.ranges }

func (rl rangeList) contains(num uint32) bool {
	for _, r := range rl.ranges {
		if r.Contains(num) {
			return true
		}
	}
	return false
}

func (rl *rangeList) addRange(start, stop uint32) {
	rl.ranges = append(rl.ranges, NumRange{Start: start, Stop: stop})
}

func (rl rangeList) isEmpty() bool { return len(rl.ranges) == 0 }

// SeqSet is a set of message sequence numbers, e.g. "1,2:5,10:*".
type SeqSet struct {
	rangeList
}

// ParseSeqSet parses a sequence-set string such as "1,2:5,10:*".
func ParseSeqSet(s string) (*SeqSet, error) {
	rl, err := parseRangeList(s)
	if err != nil {
		return nil, err
	}
	return &SeqSet{rangeList: rl}, nil
}

// Contains reports whether num is a member of the set.
func (ss *SeqSet) Contains(num uint32) bool { return ss.rangeList.contains(num) }

// AddNum appends one or more single-number ranges to the set.
func (ss *SeqSet) AddNum(nums ...uint32) {
	for _, n := range nums {
		ss.addRange(n, n)
	}
}

// AddRange appends a start:stop range to the set.
func (ss *SeqSet) AddRange(start, stop uint32) { ss.addRange(start, stop) }

// IsEmpty reports whether the set holds no ranges.
func (ss *SeqSet) IsEmpty() bool { return ss.isEmpty() }

// UIDSet is a set of UIDs, e.g. "1,2:5,10:*".
type UIDSet struct {
	rangeList
}

// ParseUIDSet parses a uid-set string such as "1,2:5,10:*".
func ParseUIDSet(s string) (*UIDSet, error) {
	rl, err := parseRangeList(s)
	if err != nil {
		return nil, err
	}
	return &UIDSet{rangeList: rl}, nil
}

// Contains reports whether uid is a member of the set.
func (us *UIDSet) Contains(uid UID) bool { return us.rangeList.contains(uint32(uid)) }

// AddNum appends one or more single-UID ranges to the set.
func (us *UIDSet) AddNum(uids ...UID) {
	for _, u := range uids {
		us.addRange(uint32(u), uint32(u))
	}
}

// AddRange appends a start:stop UID range to the set.
func (us *UIDSet) AddRange(start, stop UID) { us.addRange(uint32(start), uint32(stop)) }

// IsEmpty reports whether the set holds no ranges.
func (us *UIDSet) IsEmpty() bool { return us.isEmpty() }

// parseNumSet splits a comma-joined list of numbers/ranges and parses each
// part; "*" parses to 0, the sentinel NumRange uses for an open end.
func parseNumSet(s string) ([]NumRange, error) {
	if s == "" {
		return nil, fmt.Errorf("imap: empty number set")
	}

	parts := strings.Split(s, ",")
	ranges := make([]NumRange, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			return nil, fmt.Errorf("imap: empty range in number set")
		}

		colon := strings.IndexByte(part, ':')
		if colon < 0 {
			num, err := parseSeqNum(part)
			if err != nil {
				return nil, err
			}
			ranges = append(ranges, NumRange{Start: num, Stop: num})
			continue
		}

		start, err := parseSeqNum(part[:colon])
		if err != nil {
			return nil, err
		}
		stop, err := parseSeqNum(part[colon+1:])
		if err != nil {
			return nil, err
		}
		ranges = append(ranges, NumRange{Start: start, Stop: stop})
	}
	return ranges, nil
}

// parseSeqNum parses one endpoint: "*" or a non-zero uint32.
func parseSeqNum(s string) (uint32, error) {
	if s == "*" {
		return 0, nil
	}
	n, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("imap: invalid number %q: %w", s, err)
	}
	if n == 0 {
		return 0, fmt.Errorf("imap: sequence number must be non-zero")
	}
	return uint32(n), nil
}

// formatNumSet joins ranges back into wire form.
func formatNumSet(ranges []NumRange) string {
	if len(ranges) == 0 {
		return ""
	}
	parts := make([]string, len(ranges))
	for i, r := range ranges {
		parts[i] = r.String()
	}
	return strings.Join(parts, ",")
}
