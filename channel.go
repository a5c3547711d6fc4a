package main

import "sort"

// Channel holds everything to do with a channel.
type Channel struct {
	// Name as given at creation. Lookups go through the canonical form.
	Name string

	// User ID to membership. If we have zero members, we should not exist.
	Members map[uint64]*ChannelMember

	// Current topic. May be blank.
	Topic string

	// Modes set on the channel.
	Modes ModeSet
}

// ChannelMember ties one user to one channel, along with the modes the user
// holds there.
type ChannelMember struct {
	User    *User
	Channel *Channel
	Modes   ModeSet
}

func newChannel(name string) *Channel {
	return &Channel{
		Name:    name,
		Members: make(map[uint64]*ChannelMember),
		Modes:   newModeSet(),
	}
}

// addMember adds the user to the channel. Membership is indexed both on the
// channel and on the user, and this is the only place we add to either.
func (c *Channel) addMember(u *User) *ChannelMember {
	if member, exists := c.Members[u.ID]; exists {
		return member
	}

	member := &ChannelMember{
		User:    u,
		Channel: c,
		Modes:   newModeSet(),
	}
	c.Members[u.ID] = member
	u.Channels[canonicalizeChannel(c.Name)] = member

	return member
}

// removeMember removes the user from the channel, updating both indexes.
func (c *Channel) removeMember(u *User) {
	delete(c.Members, u.ID)
	delete(u.Channels, canonicalizeChannel(c.Name))
}

// Check if a user has operator status in the channel.
func (m *ChannelMember) isChanOperator() bool {
	return m.Modes.has(MemberModeOperator)
}

func (m *ChannelMember) hasVoice() bool {
	return m.Modes.has(MemberModeVoice)
}

// nickPrefix gives the prefix shown before the member's nick in NAMES and
// WHO replies. @ for channel operators, + for voiced members.
func (m *ChannelMember) nickPrefix() string {
	if m.isChanOperator() {
		return "@"
	}
	if m.hasVoice() {
		return "+"
	}
	return ""
}

// prefixedNicks gives every member's nick with its prefix, sorted so the
// NAMES reply is deterministic.
func (c *Channel) prefixedNicks() []string {
	nicks := make([]string, 0, len(c.Members))
	for _, member := range c.Members {
		nicks = append(nicks, member.nickPrefix()+member.User.DisplayNick)
	}
	sort.Strings(nicks)
	return nicks
}
