package main

import "strings"

// 50 from RFC
const maxChannelLength = 50

// Arbitrary. Something low enough we won't hit message limit.
const maxTopicLength = 300

// foldASCII lowercases a string under the rfc1459 casemapping: besides A-Z,
// the characters []\^ are the uppercase forms of {}|~.
func foldASCII(s string) string {
	b := []byte(s)
	for i, c := range b {
		switch {
		case c >= 'A' && c <= 'Z':
			b[i] = c + ('a' - 'A')
		case c == '[':
			b[i] = '{'
		case c == ']':
			b[i] = '}'
		case c == '\\':
			b[i] = '|'
		case c == '^':
			b[i] = '~'
		}
	}
	return string(b)
}

// canonicalizeNick converts the given nick to its canonical representation
// (which must be unique).
//
// Note: We don't check validity or strip whitespace.
func canonicalizeNick(n string) string {
	return foldASCII(n)
}

// canonicalizeChannel converts the given channel to its canonical
// representation (which must be unique).
//
// Note: We don't check validity or strip whitespace.
func canonicalizeChannel(c string) string {
	return foldASCII(c)
}

// Server names are hostnames, so plain ASCII lowercasing is enough.
func canonicalizeServerName(s string) string {
	return strings.ToLower(s)
}

// Special characters allowed in nicks per RFC 2812: []\`_^{|}
func isNickSpecial(c byte) bool {
	return (c >= 0x5B && c <= 0x60) || (c >= 0x7B && c <= 0x7D)
}

func isLetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

// isValidNick checks if a nickname is valid.
//
// First character must be a letter or special, the rest letters, digits,
// specials, or -.
func isValidNick(maxLen int, n string) bool {
	if len(n) == 0 || len(n) > maxLen {
		return false
	}

	for i := 0; i < len(n); i++ {
		c := n[i]

		if isLetter(c) || isNickSpecial(c) {
			continue
		}

		if i > 0 && (isDigit(c) || c == '-') {
			continue
		}

		return false
	}

	return true
}

// isValidUser checks if a user (USER command) is valid.
//
// RFC 2812 excludes only NUL, CR, LF, space, and @.
func isValidUser(maxLen int, u string) bool {
	if len(u) == 0 || len(u) > maxLen {
		return false
	}

	for i := 0; i < len(u); i++ {
		switch u[i] {
		case 0, '\r', '\n', ' ', '@':
			return false
		}
	}

	return true
}

func isValidRealName(s string) bool {
	// Arbitrary. Length only for now.
	return len(s) <= 64
}

// isValidChannel checks a channel name for validity.
//
// It must start with # or &. No spaces, commas, or control G anywhere.
func isValidChannel(c string) bool {
	if len(c) == 0 || len(c) > maxChannelLength {
		return false
	}

	if c[0] != '#' && c[0] != '&' {
		return false
	}

	for i := 1; i < len(c); i++ {
		switch c[i] {
		case 0, '\r', '\n', ' ', ',', 7:
			return false
		}
	}

	return true
}

func isNumericCommand(command string) bool {
	for _, c := range command {
		if c < 48 || c > 57 {
			return false
		}
	}
	return true
}

// Split a comma separated parameter, such as a JOIN target list. Blank
// pieces are dropped.
func commaParamToList(s string) []string {
	var list []string
	for _, piece := range strings.Split(s, ",") {
		piece = strings.TrimSpace(piece)
		if len(piece) == 0 {
			continue
		}
		list = append(list, piece)
	}
	return list
}
