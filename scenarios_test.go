package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistration(t *testing.T) {
	_, addr := startServer(t)

	c := connect(t, addr)
	c.send("NICK alice")
	c.send("USER alice 0 * :alice")

	m := c.waitFor("001")
	assert.Equal(t, "localhost", m.Prefix)
	require.Len(t, m.Params, 2)
	assert.Equal(t, "alice", m.Params[0])
	assert.Equal(t,
		"Welcome to the Internet Relay Network alice!alice@127.0.0.1",
		m.Params[1])

	m = c.waitFor("004")
	require.Len(t, m.Params, 5)
	assert.Equal(t, "localhost", m.Params[1])
	assert.Equal(t, "prattled-0.1.0", m.Params[2])
	assert.Equal(t, "ao", m.Params[3])
	assert.Equal(t, "mtov", m.Params[4])

	m = c.waitFor("251")
	assert.Equal(t, "There are 1 users and 0 services on 1 servers",
		m.Params[1])

	m = c.waitFor("255")
	assert.Equal(t, "I have 1 clients and 0 servers", m.Params[1])

	m = c.waitFor("422")
	assert.Equal(t, "MOTD File is missing", m.Params[1])
}

func TestRegistrationUserFirst(t *testing.T) {
	_, addr := startServer(t)

	c := connect(t, addr)
	c.send("USER alice 0 * :alice")
	c.send("NICK alice")

	c.waitFor("001")
}

func TestCommandBeforeRegistration(t *testing.T) {
	_, addr := startServer(t)

	c := connect(t, addr)
	c.send("JOIN #test")

	m := c.waitFor("451")
	assert.Equal(t, []string{"*", "You have not registered"}, m.Params)
}

func TestNickInUse(t *testing.T) {
	_, addr := startServer(t)

	c1 := connect(t, addr)
	c1.register("alice")

	c2 := connect(t, addr)
	c2.send("NICK alice")

	m := c2.waitFor("433")
	assert.Equal(t, []string{"*", "alice", "Nickname is already in use"},
		m.Params)

	// The nick is taken case insensitively.
	c2.send("NICK ALICE")
	c2.waitFor("433")

	// Another nick works fine.
	c2.send("NICK bob")
	c2.send("USER bob 0 * :bob")
	c2.waitFor("001")
}

func TestPingPong(t *testing.T) {
	_, addr := startServer(t)

	c := connect(t, addr)
	c.register("alice")

	c.send("PING :token123")
	m := c.waitFor("PONG")
	assert.Equal(t, []string{"localhost", "token123"}, m.Params)

	c.send("PING")
	m = c.waitFor("409")
	assert.Equal(t, []string{"alice", "No origin specified"}, m.Params)
}

func TestUnknownCommand(t *testing.T) {
	_, addr := startServer(t)

	c := connect(t, addr)
	c.register("alice")

	c.send("BOGUS hi")
	m := c.waitFor("421")
	assert.Equal(t, []string{"alice", "BOGUS", "Unknown command"}, m.Params)
}

func TestAlreadyRegistered(t *testing.T) {
	_, addr := startServer(t)

	c := connect(t, addr)
	c.register("alice")

	c.send("USER alice 0 * :alice")
	m := c.waitFor("462")
	assert.Equal(t,
		[]string{"alice", "Unauthorized command (already registered)"},
		m.Params)
}

func TestJoin(t *testing.T) {
	_, addr := startServer(t)

	c := connect(t, addr)
	c.register("alice")

	c.send("JOIN #test")

	m := c.waitFor("JOIN")
	assert.Equal(t, "alice!alice@127.0.0.1", m.Prefix)
	assert.Equal(t, []string{"#test"}, m.Params)

	m = c.waitFor("331")
	assert.Equal(t, []string{"alice", "#test", "No topic is set"}, m.Params)

	// The creator gets channel operator status.
	m = c.waitFor("353")
	assert.Equal(t, []string{"alice", "=", "#test", "@alice"}, m.Params)

	m = c.waitFor("366")
	assert.Equal(t, []string{"alice", "#test", "End of NAMES list"}, m.Params)
}

func TestJoinInvalidChannel(t *testing.T) {
	_, addr := startServer(t)

	c := connect(t, addr)
	c.register("alice")

	c.send("JOIN bogus")
	m := c.waitFor("403")
	assert.Equal(t, []string{"alice", "bogus", "No such channel"}, m.Params)
}

func TestJoinSeenByMembers(t *testing.T) {
	_, addr := startServer(t)

	alice := connect(t, addr)
	alice.register("alice")
	alice.send("JOIN #test")
	alice.waitFor("366")

	bob := connect(t, addr)
	bob.register("bob")
	bob.send("JOIN #test")

	m := bob.waitFor("353")
	assert.Equal(t, []string{"bob", "=", "#test", "@alice bob"}, m.Params)

	m = alice.waitFor("JOIN")
	assert.Equal(t, "bob!bob@127.0.0.1", m.Prefix)
	assert.Equal(t, []string{"#test"}, m.Params)
}

func TestPrivmsgToChannel(t *testing.T) {
	_, addr := startServer(t)

	alice := connect(t, addr)
	alice.register("alice")
	alice.send("JOIN #test")
	alice.waitFor("366")

	bob := connect(t, addr)
	bob.register("bob")
	bob.send("JOIN #test")
	bob.waitFor("366")

	bob.send("PRIVMSG #test :hello there")

	m := alice.waitFor("PRIVMSG")
	assert.Equal(t, "bob!bob@127.0.0.1", m.Prefix)
	assert.Equal(t, []string{"#test", "hello there"}, m.Params)

	// The sender must not get a copy.
	for _, m := range bob.sync() {
		assert.NotEqual(t, "PRIVMSG", m.Command)
	}
}

func TestPrivmsgToChannelNotMember(t *testing.T) {
	_, addr := startServer(t)

	alice := connect(t, addr)
	alice.register("alice")
	alice.send("JOIN #test")
	alice.waitFor("366")

	bob := connect(t, addr)
	bob.register("bob")

	bob.send("PRIVMSG #test :hello")
	m := bob.waitFor("404")
	assert.Equal(t, []string{"bob", "#test", "Cannot send to channel"},
		m.Params)
}

func TestPrivmsgToUser(t *testing.T) {
	_, addr := startServer(t)

	alice := connect(t, addr)
	alice.register("alice")

	bob := connect(t, addr)
	bob.register("bob")

	alice.send("PRIVMSG bob :psst")
	m := bob.waitFor("PRIVMSG")
	assert.Equal(t, "alice!alice@127.0.0.1", m.Prefix)
	assert.Equal(t, []string{"bob", "psst"}, m.Params)

	alice.send("PRIVMSG nobody :psst")
	m = alice.waitFor("401")
	assert.Equal(t, []string{"alice", "nobody", "No such nick/channel"},
		m.Params)
}

func TestPrivmsgErrors(t *testing.T) {
	_, addr := startServer(t)

	c := connect(t, addr)
	c.register("alice")

	c.send("PRIVMSG")
	m := c.waitFor("411")
	assert.Equal(t, []string{"alice", "No recipient given (PRIVMSG)"},
		m.Params)

	c.send("PRIVMSG bob")
	m = c.waitFor("412")
	assert.Equal(t, []string{"alice", "No text to send"}, m.Params)
}

func TestNoticeNeverDrawsErrors(t *testing.T) {
	_, addr := startServer(t)

	c := connect(t, addr)
	c.register("alice")

	// None of these may produce an error reply.
	c.send("NOTICE")
	c.send("NOTICE nobody")
	c.send("NOTICE nobody :hi")
	c.send("NOTICE #nochannel :hi")

	assert.Empty(t, c.sync())
}

func TestAway(t *testing.T) {
	_, addr := startServer(t)

	alice := connect(t, addr)
	alice.register("alice")

	bob := connect(t, addr)
	bob.register("bob")

	alice.send("AWAY :gone fishing")
	m := alice.waitFor("306")
	assert.Equal(t, []string{"alice", "You have been marked as being away"},
		m.Params)

	bob.send("PRIVMSG alice :there?")
	m = bob.waitFor("301")
	assert.Equal(t, []string{"bob", "alice", "gone fishing"}, m.Params)

	// The message still gets delivered.
	m = alice.waitFor("PRIVMSG")
	assert.Equal(t, []string{"alice", "there?"}, m.Params)

	alice.send("AWAY")
	m = alice.waitFor("305")
	assert.Equal(t,
		[]string{"alice", "You are no longer marked as being away"}, m.Params)
}

func TestModeratedChannel(t *testing.T) {
	_, addr := startServer(t)

	alice := connect(t, addr)
	alice.register("alice")
	alice.send("JOIN #test")
	alice.waitFor("366")

	bob := connect(t, addr)
	bob.register("bob")
	bob.send("JOIN #test")
	bob.waitFor("366")

	alice.send("MODE #test +m")
	m := bob.waitFor("MODE")
	assert.Equal(t, []string{"#test", "+m"}, m.Params)

	// Without voice or ops bob cannot speak.
	bob.send("PRIVMSG #test :hello?")
	m = bob.waitFor("404")
	assert.Equal(t, []string{"bob", "#test", "Cannot send to channel"},
		m.Params)

	alice.send("MODE #test +v bob")
	m = bob.waitFor("MODE")
	assert.Equal(t, []string{"#test", "+v", "bob"}, m.Params)

	bob.send("PRIVMSG #test :hello!")
	m = alice.waitFor("PRIVMSG")
	assert.Equal(t, []string{"#test", "hello!"}, m.Params)
}

func TestChannelModeErrors(t *testing.T) {
	_, addr := startServer(t)

	alice := connect(t, addr)
	alice.register("alice")
	alice.send("JOIN #test")
	alice.waitFor("366")

	bob := connect(t, addr)
	bob.register("bob")
	bob.send("JOIN #test")
	bob.waitFor("366")

	// Only a channel operator may change channel modes.
	bob.send("MODE #test +m")
	m := bob.waitFor("482")
	assert.Equal(t, []string{"bob", "#test", "You're not channel operator"},
		m.Params)

	// Unknown mode char.
	alice.send("MODE #test +z")
	m = alice.waitFor("472")
	assert.Equal(t,
		[]string{"alice", "z", "is unknown mode char to me for #test"},
		m.Params)

	// Mode change on someone not in the channel.
	alice.send("MODE #test +o nobody")
	m = alice.waitFor("441")
	assert.Equal(t,
		[]string{"alice", "nobody", "#test", "They aren't on that channel"},
		m.Params)

	// Querying the channel's modes.
	alice.send("MODE #test")
	m = alice.waitFor("324")
	assert.Equal(t, []string{"alice", "#test", "+"}, m.Params)
}

func TestUserMode(t *testing.T) {
	_, addr := startServer(t)

	alice := connect(t, addr)
	alice.register("alice")

	bob := connect(t, addr)
	bob.register("bob")

	// Querying your own modes.
	alice.send("MODE alice")
	m := alice.waitFor("221")
	assert.Equal(t, []string{"alice", "+"}, m.Params)

	// Changing someone else's modes is not allowed.
	alice.send("MODE bob +o")
	m = alice.waitFor("502")
	assert.Equal(t, []string{"alice", "Cannot change mode for other users"},
		m.Params)

	// Unknown flag.
	alice.send("MODE alice +x")
	m = alice.waitFor("501")
	assert.Equal(t, []string{"alice", "Unknown MODE flag"}, m.Params)
}

func TestOper(t *testing.T) {
	_, addr := startServer(t)

	c := connect(t, addr)
	c.register("alice")

	c.send("OPER alice wrongpass")
	m := c.waitFor("464")
	assert.Equal(t, []string{"alice", "Password incorrect"}, m.Params)

	c.send("OPER alice opersecret")
	m = c.waitFor("MODE")
	assert.Equal(t, []string{"alice", "+o"}, m.Params)

	m = c.waitFor("381")
	assert.Equal(t, []string{"alice", "You are now an IRC operator"},
		m.Params)

	// Operators show up in LUSERS.
	c.send("LUSERS")
	m = c.waitFor("252")
	assert.Equal(t, []string{"alice", "1", "operator(s) online"}, m.Params)

	// And operators may clear their own +o.
	c.send("MODE alice -o")
	m = c.waitFor("MODE")
	assert.Equal(t, []string{"alice", "-o"}, m.Params)
}

func TestTopic(t *testing.T) {
	_, addr := startServer(t)

	alice := connect(t, addr)
	alice.register("alice")
	alice.send("JOIN #test")
	alice.waitFor("366")

	bob := connect(t, addr)
	bob.register("bob")
	bob.send("JOIN #test")
	bob.waitFor("366")

	// No topic yet.
	bob.send("TOPIC #test")
	m := bob.waitFor("331")
	assert.Equal(t, []string{"bob", "#test", "No topic is set"}, m.Params)

	// Setting a topic tells everyone.
	alice.send("TOPIC #test :today: testing")
	m = bob.waitFor("TOPIC")
	assert.Equal(t, "alice!alice@127.0.0.1", m.Prefix)
	assert.Equal(t, []string{"#test", "today: testing"}, m.Params)

	bob.send("TOPIC #test")
	m = bob.waitFor("332")
	assert.Equal(t, []string{"bob", "#test", "today: testing"}, m.Params)

	// With the topic locked, only channel operators may set it.
	alice.send("MODE #test +t")
	bob.waitFor("MODE")

	bob.send("TOPIC #test :my topic")
	m = bob.waitFor("482")
	assert.Equal(t, []string{"bob", "#test", "You're not channel operator"},
		m.Params)

	// And a new joiner sees the topic.
	carol := connect(t, addr)
	carol.register("carol")
	carol.send("JOIN #test")
	m = carol.waitFor("332")
	assert.Equal(t, []string{"carol", "#test", "today: testing"}, m.Params)
}

func TestPart(t *testing.T) {
	_, addr := startServer(t)

	alice := connect(t, addr)
	alice.register("alice")
	alice.send("JOIN #test")
	alice.waitFor("366")

	bob := connect(t, addr)
	bob.register("bob")
	bob.send("JOIN #test")
	bob.waitFor("366")

	bob.send("PART #test :out for lunch")

	m := alice.waitFor("PART")
	assert.Equal(t, "bob!bob@127.0.0.1", m.Prefix)
	assert.Equal(t, []string{"#test", "out for lunch"}, m.Params)

	m = bob.waitFor("PART")
	assert.Equal(t, []string{"#test", "out for lunch"}, m.Params)

	// Not on it any more.
	bob.send("PART #test")
	m = bob.waitFor("442")
	assert.Equal(t, []string{"bob", "#test", "You're not on that channel"},
		m.Params)

	bob.send("PART #nochannel")
	m = bob.waitFor("403")
	assert.Equal(t, []string{"bob", "#nochannel", "No such channel"},
		m.Params)
}

func TestQuit(t *testing.T) {
	_, addr := startServer(t)

	alice := connect(t, addr)
	alice.register("alice")
	alice.send("JOIN #test")
	alice.waitFor("366")

	bob := connect(t, addr)
	bob.register("bob")
	bob.send("JOIN #test")
	bob.waitFor("366")

	bob.send("QUIT :goodbye")

	m := bob.waitFor("ERROR")
	assert.Equal(t, []string{"Closing Link: 127.0.0.1 (goodbye)"}, m.Params)

	m = alice.waitFor("QUIT")
	assert.Equal(t, "bob!bob@127.0.0.1", m.Prefix)
	assert.Equal(t, []string{"goodbye"}, m.Params)

	// The nick frees up.
	carol := connect(t, addr)
	carol.send("NICK bob")
	carol.send("USER bob 0 * :bob")
	carol.waitFor("001")
}

func TestQuitSharedChannels(t *testing.T) {
	_, addr := startServer(t)

	alice := connect(t, addr)
	alice.register("alice")
	alice.send("JOIN #a,#b")
	alice.waitFor("366")
	alice.waitFor("366")

	bob := connect(t, addr)
	bob.register("bob")
	bob.send("JOIN #a,#b")
	bob.waitFor("366")
	bob.waitFor("366")

	// alice must see both of bob's joins before quitting.
	alice.waitFor("JOIN")
	alice.waitFor("JOIN")

	alice.send("QUIT :bye")
	alice.waitFor("ERROR")

	// bob shares two channels with alice but hears about the quit once.
	arrived := bob.sync()
	require.Len(t, arrived, 1)
	assert.Equal(t, "QUIT", arrived[0].Command)
	assert.Equal(t, "alice!alice@127.0.0.1", arrived[0].Prefix)
	assert.Equal(t, []string{"bye"}, arrived[0].Params)

	// The channels keep existing; bob is still on them.
	bob.send("LIST")
	m := bob.waitFor("322")
	assert.Equal(t, []string{"bob", "#a", "1", ""}, m.Params)
	m = bob.waitFor("322")
	assert.Equal(t, []string{"bob", "#b", "1", ""}, m.Params)
	bob.waitFor("323")

	// Once bob leaves too they go away.
	bob.send("PART #a,#b")
	bob.waitFor("PART")
	bob.waitFor("PART")

	bob.send("LIST")
	m = bob.waitForAny("322", "323")
	assert.Equal(t, "323", m.Command)
}

func TestChannelDestroyedWhenEmpty(t *testing.T) {
	_, addr := startServer(t)

	alice := connect(t, addr)
	alice.register("alice")
	alice.send("JOIN #shortlived")
	alice.waitFor("366")
	alice.send("PART #shortlived")
	alice.waitFor("PART")

	// LIST no longer shows it.
	alice.send("LIST")
	m := alice.waitForAny("322", "323")
	assert.Equal(t, "323", m.Command)
}

func TestNickChange(t *testing.T) {
	_, addr := startServer(t)

	alice := connect(t, addr)
	alice.register("alice")
	alice.send("JOIN #test")
	alice.waitFor("366")

	bob := connect(t, addr)
	bob.register("bob")
	bob.send("JOIN #test")
	bob.waitFor("366")

	alice.send("NICK alice2")

	m := bob.waitFor("NICK")
	assert.Equal(t, "alice!alice@127.0.0.1", m.Prefix)
	assert.Equal(t, []string{"alice2"}, m.Params)

	m = alice.waitFor("NICK")
	assert.Equal(t, []string{"alice2"}, m.Params)

	// The old nick frees up, the new one is taken.
	bob.send("NICK alice2")
	bob.waitFor("433")
	bob.send("NICK alice")
	bob.waitFor("NICK")
}

func TestNickChangeCollision(t *testing.T) {
	_, addr := startServer(t)

	alice := connect(t, addr)
	alice.register("alice")

	bob := connect(t, addr)
	bob.register("bob")

	bob.send("NICK Alice")
	m := bob.waitFor("433")
	assert.Equal(t, []string{"bob", "Alice", "Nickname is already in use"},
		m.Params)

	// Changing only the case of your own nick is allowed.
	alice.send("NICK Alice")
	m = alice.waitFor("NICK")
	assert.Equal(t, []string{"Alice"}, m.Params)
}

func TestList(t *testing.T) {
	_, addr := startServer(t)

	alice := connect(t, addr)
	alice.register("alice")
	alice.send("JOIN #apple")
	alice.waitFor("366")
	alice.send("JOIN #banana")
	alice.waitFor("366")
	alice.send("TOPIC #apple :fruit talk")
	alice.waitFor("TOPIC")

	alice.send("LIST")

	m := alice.waitFor("322")
	assert.Equal(t, []string{"alice", "#apple", "1", "fruit talk"}, m.Params)

	m = alice.waitFor("322")
	assert.Equal(t, []string{"alice", "#banana", "1", ""}, m.Params)

	m = alice.waitFor("323")
	assert.Equal(t, []string{"alice", "End of LIST"}, m.Params)
}

func TestNames(t *testing.T) {
	_, addr := startServer(t)

	alice := connect(t, addr)
	alice.register("alice")
	alice.send("JOIN #test")
	alice.waitFor("366")

	alice.send("NAMES #test")
	m := alice.waitFor("353")
	assert.Equal(t, []string{"alice", "=", "#test", "@alice"}, m.Params)
	alice.waitFor("366")

	// Unknown channel still ends the list.
	alice.send("NAMES #nochannel")
	m = alice.waitFor("366")
	assert.Equal(t, []string{"alice", "#nochannel", "End of NAMES list"},
		m.Params)
}

func TestWho(t *testing.T) {
	_, addr := startServer(t)

	alice := connect(t, addr)
	alice.register("alice")
	alice.send("JOIN #test")
	alice.waitFor("366")

	alice.send("WHO #test")

	m := alice.waitFor("352")
	assert.Equal(t, []string{
		"alice", "#test", "alice", "127.0.0.1", "localhost", "alice", "H@",
		"0 alice",
	}, m.Params)

	m = alice.waitFor("315")
	assert.Equal(t, []string{"alice", "#test", "End of WHO list"}, m.Params)
}

func TestWhois(t *testing.T) {
	_, addr := startServer(t)

	alice := connect(t, addr)
	alice.register("alice")
	alice.send("JOIN #test")
	alice.waitFor("366")

	bob := connect(t, addr)
	bob.register("bob")

	bob.send("WHOIS alice")

	m := bob.waitFor("311")
	assert.Equal(t,
		[]string{"bob", "alice", "alice", "127.0.0.1", "*", "alice"},
		m.Params)

	m = bob.waitFor("319")
	assert.Equal(t, []string{"bob", "alice", "@#test"}, m.Params)

	m = bob.waitFor("312")
	assert.Equal(t,
		[]string{"bob", "alice", "localhost", "prattled IRC server"},
		m.Params)

	m = bob.waitFor("317")
	assert.Equal(t, "seconds idle", m.Params[3])

	m = bob.waitFor("318")
	assert.Equal(t, []string{"bob", "alice", "End of WHOIS list"}, m.Params)

	bob.send("WHOIS nobody")
	m = bob.waitFor("401")
	assert.Equal(t, []string{"bob", "nobody", "No such nick/channel"},
		m.Params)
}

func TestMOTD(t *testing.T) {
	ircd, addr := startServer(t)
	ircd.Config.MOTD = "hello\nworld\n"

	c := connect(t, addr)
	c.register("alice")

	c.send("MOTD")

	m := c.waitFor("375")
	assert.Equal(t,
		[]string{"alice", "- localhost Message of the day - "}, m.Params)

	m = c.waitFor("372")
	assert.Equal(t, []string{"alice", "- hello"}, m.Params)

	m = c.waitFor("372")
	assert.Equal(t, []string{"alice", "- world"}, m.Params)

	m = c.waitFor("376")
	assert.Equal(t, []string{"alice", "End of MOTD command"}, m.Params)
}

func TestJoinZeroPartsAll(t *testing.T) {
	_, addr := startServer(t)

	alice := connect(t, addr)
	alice.register("alice")
	alice.send("JOIN #a,#b")
	alice.waitFor("366")
	alice.waitFor("366")

	alice.send("JOIN 0")
	alice.waitFor("PART")
	alice.waitFor("PART")

	alice.send("LIST")
	m := alice.waitForAny("322", "323")
	assert.Equal(t, "323", m.Command)
}
