package main

import "sort"

// ModeSet holds single letter mode flags, such as a user's umodes or the
// modes set on a channel. A mode is either present or not.
type ModeSet map[byte]struct{}

// Modes we recognize.
const (
	// User modes.
	UserModeAway     = 'a'
	UserModeOperator = 'o'

	// Channel modes.
	ChanModeModerated = 'm'
	ChanModeTopicLock = 't'

	// Channel membership modes.
	MemberModeOperator = 'o'
	MemberModeVoice    = 'v'
)

func newModeSet() ModeSet {
	return make(ModeSet)
}

func (s ModeSet) has(mode byte) bool {
	_, exists := s[mode]
	return exists
}

// set adds a mode. It reports whether the set changed.
func (s ModeSet) set(mode byte) bool {
	if s.has(mode) {
		return false
	}
	s[mode] = struct{}{}
	return true
}

// clear removes a mode. It reports whether the mode was present.
func (s ModeSet) clear(mode byte) bool {
	if !s.has(mode) {
		return false
	}
	delete(s, mode)
	return true
}

// String returns the modes as a flag string without a leading +.
//
// The wire format never exposes insertion order, so we emit the flags
// sorted to be deterministic.
func (s ModeSet) String() string {
	flags := make([]byte, 0, len(s))
	for mode := range s {
		flags = append(flags, mode)
	}
	sort.Slice(flags, func(i, j int) bool { return flags[i] < flags[j] })
	return string(flags)
}
