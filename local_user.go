package main

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/horgh/irc"
)

// LocalUser holds information relevant only to a regular user (non-server)
// connection.
type LocalUser struct {
	*LocalClient

	User *User
}

// NewLocalUser makes a LocalUser from a LocalClient.
func NewLocalUser(c *LocalClient) *LocalUser {
	return &LocalUser{LocalClient: c}
}

func (u *LocalUser) String() string {
	return fmt.Sprintf("%s %s", u.User, u.Conn.RemoteAddr())
}

// Message from this local user to another local user.
func (u *LocalUser) messageUser(to *User, command string, params []string) {
	to.LocalUser.maybeQueueMessage(irc.Message{
		Prefix:  u.User.nickUhost(),
		Command: command,
		Params:  params,
	})
}

// Send an IRC message to the user. Appears to be from the server.
// This works by writing to the user's channel.
//
// Note: Only the event loop goroutine should call this (due to channel use).
func (u *LocalUser) messageFromServer(command string, params []string) {
	// For numeric messages, we need to prepend the nick.
	if isNumericCommand(command) {
		newParams := []string{u.User.DisplayNick}
		newParams = append(newParams, params...)
		params = newParams
	}

	u.maybeQueueMessage(irc.Message{
		Prefix:  u.Ircd.Config.ServerName,
		Command: command,
		Params:  params,
	})
}

// handleMessage dispatches a message the user sent us.
func (u *LocalUser) handleMessage(m irc.Message) handlerResult {
	// Record that the user said something to us just now.
	u.LastActivityTime = time.Now()

	// Clients SHOULD NOT (RFC 2812 section 2.3) send a prefix. Disallow it
	// completely for all commands.
	if m.Prefix != "" {
		u.messageFromServer("ERROR", []string{"Do not send a prefix"})
		return handlerOK
	}

	// Non-RFC command that appears to be widely supported. Just ignore it for
	// now.
	if m.Command == "CAP" {
		return handlerOK
	}

	handler, exists := userHandlers[m.Command]
	if !exists {
		// 421 ERR_UNKNOWNCOMMAND
		u.messageFromServer("421", []string{m.Command, "Unknown command"})
		return handlerOK
	}

	return handler(u, m)
}

// The NICK command happens both at connection registration time and after.
// There are different rules; this is the nick change side.
func (u *LocalUser) nickCommand(m irc.Message) handlerResult {
	// We should have one parameter: The nick they want.
	if len(m.Params) == 0 {
		// 431 ERR_NONICKNAMEGIVEN
		u.messageFromServer("431", []string{"No nickname given"})
		return handlerOK
	}
	nick := m.Params[0]

	if len(nick) > u.Ircd.Config.MaxNickLength {
		nick = nick[0:u.Ircd.Config.MaxNickLength]
	}

	if !isValidNick(u.Ircd.Config.MaxNickLength, nick) {
		// 432 ERR_ERRONEUSNICKNAME
		u.messageFromServer("432", []string{nick, "Erroneous nickname"})
		return handlerOK
	}

	nickCanon := canonicalizeNick(nick)
	oldCanon := canonicalizeNick(u.User.DisplayNick)

	// Nick must be unique. Changing only the case of your own nick is fine.
	_, exists := u.Ircd.Nicks[nickCanon]
	if exists && nickCanon != oldCanon {
		// 433 ERR_NICKNAMEINUSE
		u.messageFromServer("433", []string{nick, "Nickname is already in use"})
		return handlerOK
	}

	// We need to inform other users about the nick change. Any that are in
	// the same channel as this user, each only once. The message must come
	// from the old nick.
	informed := map[uint64]struct{}{}
	for _, member := range u.User.Channels {
		for _, other := range member.Channel.Members {
			if _, exists := informed[other.User.ID]; exists {
				continue
			}
			informed[other.User.ID] = struct{}{}

			u.messageUser(other.User, "NICK", []string{nick})
		}
	}

	// Reply to the user. We should have above, but if they were not on any
	// channels then we did not.
	if _, exists := informed[u.User.ID]; !exists {
		u.messageUser(u.User, "NICK", []string{nick})
	}

	// Finally, make the update. Do this last as we need to act as the old
	// nick while crafting the messages.
	delete(u.Ircd.Nicks, oldCanon)
	u.Ircd.Nicks[nickCanon] = u.User
	u.User.DisplayNick = nick

	return handlerOK
}

// USER, PASS, and SERVER only make sense during connection registration.
func (u *LocalUser) alreadyRegisteredCommand(m irc.Message) handlerResult {
	// 462 ERR_ALREADYREGISTRED
	u.messageFromServer("462", []string{
		"Unauthorized command (already registered)"})
	return handlerOK
}

func (u *LocalUser) joinCommand(m irc.Message) handlerResult {
	// Parameters: <channel> *( "," <channel> )

	if len(m.Params) == 0 {
		// 461 ERR_NEEDMOREPARAMS
		u.messageFromServer("461", []string{"JOIN", "Not enough parameters"})
		return handlerOK
	}

	// JOIN 0 is a special case. The user leaves all channels.
	if m.Params[0] == "0" {
		for _, member := range u.User.Channels {
			u.part(member.Channel.Name, "")
		}
		return handlerOK
	}

	// May have multiple channels in a single command.
	for _, channelName := range commaParamToList(m.Params[0]) {
		u.join(channelName)
	}

	return handlerOK
}

// join tries to put the user into the channel, creating it if necessary.
func (u *LocalUser) join(channelName string) {
	if !isValidChannel(channelName) {
		// 403 ERR_NOSUCHCHANNEL
		u.messageFromServer("403", []string{channelName, "No such channel"})
		return
	}

	channel, created := u.Ircd.getOrCreateChannel(channelName)

	// Already on it. Nothing to do.
	if u.User.onChannel(channel) {
		return
	}

	member := channel.addMember(u.User)

	// The creator gets channel operator status.
	if created {
		member.Modes.set(MemberModeOperator)
	}

	// Tell every member about the join, including the user itself.
	for _, other := range channel.Members {
		u.messageUser(other.User, "JOIN", []string{channel.Name})
	}

	if len(channel.Topic) > 0 {
		// 332 RPL_TOPIC
		u.messageFromServer("332", []string{channel.Name, channel.Topic})
	} else {
		// 331 RPL_NOTOPIC
		u.messageFromServer("331", []string{channel.Name, "No topic is set"})
	}

	u.sendNames(channel)
}

// sendNames sends the channel's member list: RPL_NAMREPLY then
// RPL_ENDOFNAMES.
func (u *LocalUser) sendNames(channel *Channel) {
	// 353 RPL_NAMREPLY
	// Channel flag: = (public), * (private), @ (secret). We have only public.
	u.messageFromServer("353", []string{
		"=", channel.Name, strings.Join(channel.prefixedNicks(), " "),
	})

	// 366 RPL_ENDOFNAMES
	u.messageFromServer("366", []string{channel.Name, "End of NAMES list"})
}

func (u *LocalUser) partCommand(m irc.Message) handlerResult {
	// Parameters: <channel> *( "," <channel> ) [ <Part Message> ]

	if len(m.Params) == 0 {
		// 461 ERR_NEEDMOREPARAMS
		u.messageFromServer("461", []string{"PART", "Not enough parameters"})
		return handlerOK
	}

	partMessage := ""
	if len(m.Params) >= 2 {
		partMessage = m.Params[1]
	}

	// May have multiple channels in a single command.
	for _, channelName := range commaParamToList(m.Params[0]) {
		u.part(channelName, partMessage)
	}

	return handlerOK
}

// part tries to remove the user from the channel.
//
// We reply to the user and inform the other members.
func (u *LocalUser) part(channelName, message string) {
	channel, exists := u.Ircd.Channels[canonicalizeChannel(channelName)]
	if !exists {
		// 403 ERR_NOSUCHCHANNEL
		u.messageFromServer("403", []string{channelName, "No such channel"})
		return
	}

	if !u.User.onChannel(channel) {
		// 442 ERR_NOTONCHANNEL
		u.messageFromServer("442", []string{channel.Name,
			"You're not on that channel"})
		return
	}

	partParams := []string{channel.Name}
	if len(message) > 0 {
		partParams = append(partParams, message)
	}

	// Tell every member about the part, including the user itself.
	for _, other := range channel.Members {
		u.messageUser(other.User, "PART", partParams)
	}

	channel.removeMember(u.User)

	// If they were the last member, then drop the channel completely.
	u.Ircd.destroyChannelIfEmpty(channel)
}

// Per RFC 2812, PRIVMSG and NOTICE are essentially the same, so both use
// this handler. NOTICE never draws error replies.
func (u *LocalUser) privmsgCommand(m irc.Message) handlerResult {
	// Parameters: <msgtarget> <text to be sent>

	notice := m.Command == "NOTICE"

	if len(m.Params) == 0 {
		if !notice {
			// 411 ERR_NORECIPIENT
			u.messageFromServer("411", []string{
				fmt.Sprintf("No recipient given (%s)", m.Command)})
		}
		return handlerOK
	}

	if len(m.Params) == 1 || len(m.Params[1]) == 0 {
		if !notice {
			// 412 ERR_NOTEXTTOSEND
			u.messageFromServer("412", []string{"No text to send"})
		}
		return handlerOK
	}

	target := m.Params[0]
	msg := m.Params[1]

	// The message may be too long once we add the prefix and encode it. Trim
	// the tail until it fits.
	msgLen := len(":") + len(u.User.nickUhost()) + len(" ") + len(m.Command) +
		len(" ") + len(target) + len(" :") + len(msg) + len("\r\n")
	if msgLen > irc.MaxLineLength {
		msg = msg[:len(msg)-(msgLen-irc.MaxLineLength)]
	}

	if target[0] == '#' || target[0] == '&' {
		u.messageToChannel(m.Command, target, msg, notice)
		return handlerOK
	}

	// We're messaging a nick directly.

	targetUser, exists := u.Ircd.Nicks[canonicalizeNick(target)]
	if !exists {
		if !notice {
			// 401 ERR_NOSUCHNICK
			u.messageFromServer("401", []string{target, "No such nick/channel"})
		}
		return handlerOK
	}

	u.messageUser(targetUser, m.Command, []string{targetUser.DisplayNick, msg})

	if !notice && targetUser.isAway() {
		// 301 RPL_AWAY
		u.messageFromServer("301", []string{targetUser.DisplayNick,
			targetUser.AwayMessage})
	}

	return handlerOK
}

// messageToChannel fans a PRIVMSG/NOTICE out to every member of the channel
// except the sender.
func (u *LocalUser) messageToChannel(command, target, msg string,
	notice bool) {
	channel, exists := u.Ircd.Channels[canonicalizeChannel(target)]
	if !exists {
		if !notice {
			// 403 ERR_NOSUCHCHANNEL
			u.messageFromServer("403", []string{target, "No such channel"})
		}
		return
	}

	member, onChannel := channel.Members[u.User.ID]
	if !onChannel {
		if !notice {
			// 404 ERR_CANNOTSENDTOCHAN
			u.messageFromServer("404", []string{channel.Name,
				"Cannot send to channel"})
		}
		return
	}

	// A moderated channel takes messages only from its operators and voiced
	// members.
	if channel.Modes.has(ChanModeModerated) && !member.isChanOperator() &&
		!member.hasVoice() {
		if !notice {
			// 404 ERR_CANNOTSENDTOCHAN
			u.messageFromServer("404", []string{channel.Name,
				"Cannot send to channel"})
		}
		return
	}

	// Send to all members of the channel except the sender itself.
	for _, other := range channel.Members {
		if other.User.ID == u.User.ID {
			continue
		}
		u.messageUser(other.User, command, []string{channel.Name, msg})
	}
}

func (u *LocalUser) lusersCommand(m irc.Message) handlerResult {
	// 251 RPL_LUSERCLIENT
	u.messageFromServer("251", []string{
		fmt.Sprintf("There are %d users and %d services on %d servers",
			len(u.Ircd.Nicks), 0, 1+len(u.Ircd.LocalServers)),
	})

	// 252 RPL_LUSEROP
	u.messageFromServer("252", []string{
		fmt.Sprintf("%d", u.Ircd.operCount()),
		"operator(s) online",
	})

	// 253 RPL_LUSERUNKNOWN
	u.messageFromServer("253", []string{
		fmt.Sprintf("%d", len(u.Ircd.LocalClients)),
		"unknown connection(s)",
	})

	// 254 RPL_LUSERCHANNELS
	u.messageFromServer("254", []string{
		fmt.Sprintf("%d", len(u.Ircd.Channels)),
		"channels formed",
	})

	// 255 RPL_LUSERME
	u.messageFromServer("255", []string{
		fmt.Sprintf("I have %d clients and %d servers",
			len(u.Ircd.LocalUsers), len(u.Ircd.LocalServers)),
	})

	return handlerOK
}

func (u *LocalUser) motdCommand(m irc.Message) handlerResult {
	if len(u.Ircd.Config.MOTD) == 0 {
		// 422 ERR_NOMOTD
		u.messageFromServer("422", []string{"MOTD File is missing"})
		return handlerOK
	}

	// 375 RPL_MOTDSTART
	u.messageFromServer("375", []string{
		fmt.Sprintf("- %s Message of the day - ", u.Ircd.Config.ServerName),
	})

	motd := strings.TrimRight(u.Ircd.Config.MOTD, "\n")
	for _, line := range strings.Split(motd, "\n") {
		// 372 RPL_MOTD
		u.messageFromServer("372", []string{"- " + line})
	}

	// 376 RPL_ENDOFMOTD
	u.messageFromServer("376", []string{"End of MOTD command"})

	return handlerOK
}

func (u *LocalUser) quitCommand(m irc.Message) handlerResult {
	msg := "Client Quit"
	if len(m.Params) > 0 {
		msg = m.Params[0]
	}

	u.quit(msg)
	return handlerDisconnect
}

// quit removes the user. We tell every user it shares a channel with once,
// drop all of its memberships, and close the connection.
//
// Note: Only the event loop goroutine should call this (due to closing
// channel).
func (u *LocalUser) quit(msg string) {
	// May already be cleaning up.
	_, exists := u.Ircd.LocalUsers[u.ID]
	if !exists {
		return
	}

	// Tell each user only once, no matter how many channels they share.
	told := map[uint64]struct{}{}

	for _, member := range u.User.Channels {
		channel := member.Channel

		for _, other := range channel.Members {
			if other.User.ID == u.User.ID {
				continue
			}
			if _, exists := told[other.User.ID]; exists {
				continue
			}
			told[other.User.ID] = struct{}{}

			u.messageUser(other.User, "QUIT", []string{msg})
		}

		channel.removeMember(u.User)
		u.Ircd.destroyChannelIfEmpty(channel)
	}

	u.messageFromServer("ERROR", []string{
		fmt.Sprintf("Closing Link: %s (%s)", u.User.Hostname, msg),
	})

	close(u.WriteChan)

	delete(u.Ircd.Nicks, canonicalizeNick(u.User.DisplayNick))
	delete(u.Ircd.LocalUsers, u.ID)
}

func (u *LocalUser) pingCommand(m irc.Message) handlerResult {
	// Parameters: <token> (we don't support forwarding)
	if len(m.Params) == 0 {
		// 409 ERR_NOORIGIN
		u.messageFromServer("409", []string{"No origin specified"})
		return handlerOK
	}

	u.maybeQueueMessage(irc.Message{
		Prefix:  u.Ircd.Config.ServerName,
		Command: "PONG",
		Params:  []string{u.Ircd.Config.ServerName, m.Params[0]},
	})
	return handlerOK
}

func (u *LocalUser) pongCommand(m irc.Message) handlerResult {
	// Not doing anything with this. Just accept it.
	return handlerOK
}

func (u *LocalUser) whoisCommand(m irc.Message) handlerResult {
	// Difference from RFC: We support only a single nickname (no mask), and
	// no server target.
	if len(m.Params) == 0 {
		// 431 ERR_NONICKNAMEGIVEN
		u.messageFromServer("431", []string{"No nickname given"})
		return handlerOK
	}

	nick := m.Params[0]

	user, exists := u.Ircd.Nicks[canonicalizeNick(nick)]
	if !exists {
		// 401 ERR_NOSUCHNICK
		u.messageFromServer("401", []string{nick, "No such nick/channel"})
		return handlerOK
	}

	// 311 RPL_WHOISUSER
	u.messageFromServer("311", []string{
		user.DisplayNick, user.Username, user.Hostname, "*", user.RealName,
	})

	// 319 RPL_WHOISCHANNELS. Skipped when they are on no channels.
	var channels []string
	for _, member := range user.Channels {
		channels = append(channels, member.nickPrefix()+member.Channel.Name)
	}
	sort.Strings(channels)
	if len(channels) > 0 {
		u.messageFromServer("319", []string{
			user.DisplayNick, strings.Join(channels, " "),
		})
	}

	// 312 RPL_WHOISSERVER
	u.messageFromServer("312", []string{
		user.DisplayNick, u.Ircd.Config.ServerName, u.Ircd.Config.ServerInfo,
	})

	if user.isAway() {
		// 301 RPL_AWAY
		u.messageFromServer("301", []string{user.DisplayNick, user.AwayMessage})
	}

	if user.isOperator() {
		// 313 RPL_WHOISOPERATOR
		u.messageFromServer("313", []string{user.DisplayNick,
			"is an IRC operator"})
	}

	// 317 RPL_WHOISIDLE
	idle := int(time.Since(user.LocalUser.LastActivityTime).Seconds())
	u.messageFromServer("317", []string{
		user.DisplayNick, fmt.Sprintf("%d", idle), "seconds idle",
	})

	// 318 RPL_ENDOFWHOIS
	u.messageFromServer("318", []string{user.DisplayNick, "End of WHOIS list"})

	return handlerOK
}

func (u *LocalUser) operCommand(m irc.Message) handlerResult {
	// Parameters: <name> <password>
	if len(m.Params) < 2 {
		// 461 ERR_NEEDMOREPARAMS
		u.messageFromServer("461", []string{"OPER", "Not enough parameters"})
		return handlerOK
	}

	// We don't have per-oper names. One password grants oper status.
	if m.Params[1] != u.Ircd.Config.OperPassword {
		// 464 ERR_PASSWDMISMATCH
		u.messageFromServer("464", []string{"Password incorrect"})
		return handlerOK
	}

	// Give them oper status. From themselves to themselves.
	if u.User.Modes.set(UserModeOperator) {
		u.messageUser(u.User, "MODE", []string{u.User.DisplayNick, "+o"})
	}

	// 381 RPL_YOUREOPER
	u.messageFromServer("381", []string{"You are now an IRC operator"})

	return handlerOK
}

// MODE applies either to nicknames or to channels.
func (u *LocalUser) modeCommand(m irc.Message) handlerResult {
	if len(m.Params) == 0 {
		// 461 ERR_NEEDMOREPARAMS
		u.messageFromServer("461", []string{"MODE", "Not enough parameters"})
		return handlerOK
	}

	target := m.Params[0]

	// Is it a nickname?
	if targetUser, exists := u.Ircd.Nicks[canonicalizeNick(target)]; exists {
		u.userModeCommand(targetUser, m)
		return handlerOK
	}

	// Is it a channel?
	if channel, exists := u.Ircd.Channels[canonicalizeChannel(target)]; exists {
		u.channelModeCommand(channel, m)
		return handlerOK
	}

	// Not found. Send a channel not found. It seems the closest matching
	// extant error in the RFC.
	// 403 ERR_NOSUCHCHANNEL
	u.messageFromServer("403", []string{target, "No such channel"})
	return handlerOK
}

// User modes we support: o (operator, grantable only through OPER) and a
// (away, controlled by AWAY rather than MODE).
func (u *LocalUser) userModeCommand(targetUser *User, m irc.Message) {
	// They can only change their own mode.
	if targetUser != u.User {
		// 502 ERR_USERSDONTMATCH
		u.messageFromServer("502", []string{"Cannot change mode for other users"})
		return
	}

	// No modes given means we should send back their current mode.
	if len(m.Params) < 2 {
		// 221 RPL_UMODEIS
		u.messageFromServer("221", []string{u.User.modesString()})
		return
	}

	modes := m.Params[1]
	if len(modes) < 2 || (modes[0] != '+' && modes[0] != '-') {
		// 501 ERR_UMODEUNKNOWNFLAG
		u.messageFromServer("501", []string{"Unknown MODE flag"})
		return
	}

	unknown := false
	for i := 1; i < len(modes); i++ {
		switch modes[i] {
		case UserModeOperator:
			// +o comes only through OPER. -o we honour and echo.
			if modes[0] == '-' && u.User.Modes.clear(UserModeOperator) {
				u.messageUser(u.User, "MODE", []string{u.User.DisplayNick, "-o"})
			}
		case UserModeAway:
			// AWAY controls this, not MODE. Ignore it silently.
		default:
			unknown = true
		}
	}

	if unknown {
		// 501 ERR_UMODEUNKNOWNFLAG
		u.messageFromServer("501", []string{"Unknown MODE flag"})
	}
}

// Channel modes we support: m (moderated) and t (topic lock) on the channel,
// o (operator) and v (voice) on members.
func (u *LocalUser) channelModeCommand(channel *Channel, m irc.Message) {
	// No modes? Send back the channel's modes.
	if len(m.Params) < 2 {
		// 324 RPL_CHANNELMODEIS
		u.messageFromServer("324", []string{channel.Name,
			"+" + channel.Modes.String()})
		return
	}

	modes := m.Params[1]

	if len(modes) < 2 || (modes[0] != '+' && modes[0] != '-') {
		// 472 ERR_UNKNOWNMODE
		u.messageFromServer("472", []string{modes,
			fmt.Sprintf("is unknown mode char to me for %s", channel.Name)})
		return
	}
	adding := modes[0] == '+'

	member := channel.Members[u.User.ID]

	// o and v consume one nick argument each, in order.
	argIdx := 2

	for i := 1; i < len(modes); i++ {
		mode := modes[i]

		switch mode {
		case ChanModeModerated, ChanModeTopicLock:
			if !u.canSetChannelModes(member) {
				// 482 ERR_CHANOPRIVSNEEDED
				u.messageFromServer("482", []string{channel.Name,
					"You're not channel operator"})
				continue
			}

			changed := false
			if adding {
				changed = channel.Modes.set(mode)
			} else {
				changed = channel.Modes.clear(mode)
			}

			if changed {
				u.broadcastModeChange(channel,
					string(modes[0])+string(mode), "")
			}

		case MemberModeOperator, MemberModeVoice:
			if argIdx >= len(m.Params) {
				// 461 ERR_NEEDMOREPARAMS
				u.messageFromServer("461", []string{"MODE",
					"Not enough parameters"})
				continue
			}
			nick := m.Params[argIdx]
			argIdx++

			if !u.canSetChannelModes(member) {
				// 482 ERR_CHANOPRIVSNEEDED
				u.messageFromServer("482", []string{channel.Name,
					"You're not channel operator"})
				continue
			}

			var targetMember *ChannelMember
			if targetUser, exists := u.Ircd.Nicks[canonicalizeNick(nick)]; exists {
				targetMember = channel.Members[targetUser.ID]
			}
			if targetMember == nil {
				// 441 ERR_USERNOTINCHANNEL
				u.messageFromServer("441", []string{nick, channel.Name,
					"They aren't on that channel"})
				continue
			}

			changed := false
			if adding {
				changed = targetMember.Modes.set(mode)
			} else {
				changed = targetMember.Modes.clear(mode)
			}

			if changed {
				u.broadcastModeChange(channel,
					string(modes[0])+string(mode),
					targetMember.User.DisplayNick)
			}

		default:
			// 472 ERR_UNKNOWNMODE
			u.messageFromServer("472", []string{string(mode),
				fmt.Sprintf("is unknown mode char to me for %s", channel.Name)})
		}
	}
}

// A global operator can always alter channel modes. Otherwise the sender
// needs channel operator status there.
func (u *LocalUser) canSetChannelModes(member *ChannelMember) bool {
	if u.User.isOperator() {
		return true
	}
	return member != nil && member.isChanOperator()
}

// broadcastModeChange relays an applied channel mode change to every member,
// from the user who made it.
func (u *LocalUser) broadcastModeChange(channel *Channel, change,
	nick string) {
	params := []string{channel.Name, change}
	if len(nick) > 0 {
		params = append(params, nick)
	}

	for _, other := range channel.Members {
		u.messageUser(other.User, "MODE", params)
	}
}

func (u *LocalUser) whoCommand(m irc.Message) handlerResult {
	mask := "*"
	if len(m.Params) > 0 {
		mask = m.Params[0]
	}

	if channel, exists := u.Ircd.Channels[canonicalizeChannel(mask)]; exists {
		for _, member := range channel.Members {
			u.sendWhoReply(channel.Name, member.User, member)
		}
	} else if mask == "*" || mask == "0" {
		// Per the RFC, a bare WHO lists users we don't share a channel with.
		for _, user := range u.Ircd.Nicks {
			if user.ID != u.User.ID && u.User.sharesChannel(user) {
				continue
			}
			u.sendWhoReply("*", user, nil)
		}
	}

	// 315 RPL_ENDOFWHO
	u.messageFromServer("315", []string{mask, "End of WHO list"})

	return handlerOK
}

// sendWhoReply sends one RPL_WHOREPLY. Flags: H (here) or G (away), * for
// global operators, @/+ for the member's channel status.
func (u *LocalUser) sendWhoReply(channelName string, user *User,
	member *ChannelMember) {
	flags := "H"
	if user.isAway() {
		flags = "G"
	}
	if user.isOperator() {
		flags += "*"
	}
	if member != nil {
		flags += member.nickPrefix()
	}

	// 352 RPL_WHOREPLY
	// "<channel> <user> <host> <server> <nick> <flags> :<hopcount> <real name>"
	u.messageFromServer("352", []string{
		channelName,
		user.Username,
		user.Hostname,
		u.Ircd.Config.ServerName,
		user.DisplayNick,
		flags,
		"0 " + user.RealName,
	})
}

func (u *LocalUser) namesCommand(m irc.Message) handlerResult {
	if len(m.Params) > 0 {
		for _, name := range commaParamToList(m.Params[0]) {
			channel, exists := u.Ircd.Channels[canonicalizeChannel(name)]
			if !exists {
				// Still end the (empty) list.
				// 366 RPL_ENDOFNAMES
				u.messageFromServer("366", []string{name, "End of NAMES list"})
				continue
			}
			u.sendNames(channel)
		}
		return handlerOK
	}

	// Bare NAMES: every channel, then users on no channel under a * reply.
	var names []string
	for name := range u.Ircd.Channels {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		u.sendNames(u.Ircd.Channels[name])
	}

	var loners []string
	for _, user := range u.Ircd.Nicks {
		if len(user.Channels) > 0 {
			continue
		}
		loners = append(loners, user.DisplayNick)
	}
	sort.Strings(loners)

	if len(loners) > 0 {
		// 353 RPL_NAMREPLY
		u.messageFromServer("353", []string{"*", "*",
			strings.Join(loners, " ")})
	}

	// 366 RPL_ENDOFNAMES
	u.messageFromServer("366", []string{"*", "End of NAMES list"})

	return handlerOK
}

func (u *LocalUser) listCommand(m irc.Message) handlerResult {
	var channels []*Channel
	if len(m.Params) > 0 {
		for _, name := range commaParamToList(m.Params[0]) {
			if channel, exists := u.Ircd.Channels[canonicalizeChannel(name)]; exists {
				channels = append(channels, channel)
			}
		}
	} else {
		for _, channel := range u.Ircd.Channels {
			channels = append(channels, channel)
		}
	}

	sort.Slice(channels, func(i, j int) bool {
		return channels[i].Name < channels[j].Name
	})

	for _, channel := range channels {
		// 322 RPL_LIST
		u.messageFromServer("322", []string{
			channel.Name,
			fmt.Sprintf("%d", len(channel.Members)),
			channel.Topic,
		})
	}

	// 323 RPL_LISTEND
	u.messageFromServer("323", []string{"End of LIST"})

	return handlerOK
}

func (u *LocalUser) topicCommand(m irc.Message) handlerResult {
	// Params: <channel> [ <topic> ]
	if len(m.Params) == 0 {
		// 461 ERR_NEEDMOREPARAMS
		u.messageFromServer("461", []string{"TOPIC", "Not enough parameters"})
		return handlerOK
	}

	channel, exists := u.Ircd.Channels[canonicalizeChannel(m.Params[0])]
	if !exists {
		// 403 ERR_NOSUCHCHANNEL
		u.messageFromServer("403", []string{m.Params[0], "No such channel"})
		return handlerOK
	}

	member, onChannel := channel.Members[u.User.ID]
	if !onChannel {
		// 442 ERR_NOTONCHANNEL
		u.messageFromServer("442", []string{channel.Name,
			"You're not on that channel"})
		return handlerOK
	}

	// If there is no new topic, then just send back the current one.
	if len(m.Params) < 2 {
		if len(channel.Topic) == 0 {
			// 331 RPL_NOTOPIC
			u.messageFromServer("331", []string{channel.Name, "No topic is set"})
			return handlerOK
		}

		// 332 RPL_TOPIC
		u.messageFromServer("332", []string{channel.Name, channel.Topic})
		return handlerOK
	}

	// A locked topic takes changes only from channel operators.
	if channel.Modes.has(ChanModeTopicLock) && !member.isChanOperator() &&
		!u.User.isOperator() {
		// 482 ERR_CHANOPRIVSNEEDED
		u.messageFromServer("482", []string{channel.Name,
			"You're not channel operator"})
		return handlerOK
	}

	topic := m.Params[1]
	if len(topic) > maxTopicLength {
		topic = topic[:maxTopicLength]
	}

	channel.Topic = topic

	// Tell all members of the channel, including the user.
	for _, other := range channel.Members {
		u.messageUser(other.User, "TOPIC", []string{channel.Name, channel.Topic})
	}

	return handlerOK
}

func (u *LocalUser) awayCommand(m irc.Message) handlerResult {
	// With text we mark the user away. Without we clear it.
	if len(m.Params) > 0 && len(m.Params[0]) > 0 {
		u.User.AwayMessage = m.Params[0]
		u.User.Modes.set(UserModeAway)

		// 306 RPL_NOWAWAY
		u.messageFromServer("306", []string{
			"You have been marked as being away"})
		return handlerOK
	}

	u.User.AwayMessage = ""
	u.User.Modes.clear(UserModeAway)

	// 305 RPL_UNAWAY
	u.messageFromServer("305", []string{
		"You are no longer marked as being away"})
	return handlerOK
}
