package main

import "fmt"

// User holds a user's state, separate from its connection.
type User struct {
	// Same as the connection's ID.
	ID uint64

	// Nick as the user set it. Lookups go through the canonical form.
	DisplayNick string

	Username string
	Hostname string
	RealName string

	Modes ModeSet

	// Set while the user is away.
	AwayMessage string

	// Channel name (canonicalized) to the user's membership there.
	Channels map[string]*ChannelMember

	LocalUser *LocalUser
}

func (u *User) String() string {
	return fmt.Sprintf("%d: %s", u.ID, u.nickUhost())
}

func (u *User) nickUhost() string {
	return fmt.Sprintf("%s!%s@%s", u.DisplayNick, u.Username, u.Hostname)
}

func (u *User) isOperator() bool {
	return u.Modes.has(UserModeOperator)
}

func (u *User) isAway() bool {
	return len(u.AwayMessage) > 0
}

func (u *User) onChannel(c *Channel) bool {
	_, exists := u.Channels[canonicalizeChannel(c.Name)]
	return exists
}

// sharesChannel reports whether the two users are in any channel together.
func (u *User) sharesChannel(other *User) bool {
	for _, member := range u.Channels {
		if _, exists := member.Channel.Members[other.ID]; exists {
			return true
		}
	}
	return false
}

// modesString gives the user's modes with a leading +.
func (u *User) modesString() string {
	return "+" + u.Modes.String()
}
