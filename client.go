package main

import (
	"fmt"
	"net"
	"time"

	"github.com/horgh/irc"
)

// LocalClient holds state about a local connection.
// All connections are in this state until they register as either a user or
// as a server link.
type LocalClient struct {
	// Conn is the TCP connection to the client.
	Conn Conn

	// Locally unique identifier.
	ID uint64

	// WriteChan is the channel to send to to write to the client.
	WriteChan chan irc.Message

	ConnectionStartTime time.Time

	// The last time we heard anything from the client.
	LastActivityTime time.Time

	// The last time we sent the client a PING.
	LastPingTime time.Time

	Ircd *Ircd

	// Track if we overflow our send queue. If we do, we'll kill the client.
	SendQueueExceeded bool

	// Info the client may send us before we complete its registration and
	// promote it to a user or server.

	// NICK
	PreRegDisplayNick string

	// USER
	PreRegUser     string
	PreRegRealName string

	// PASS
	PreRegPass string
	GotPASS    bool
}

// NewLocalClient creates a LocalClient
func NewLocalClient(ircd *Ircd, id uint64, conn net.Conn) *LocalClient {
	now := time.Now()

	return &LocalClient{
		Conn: NewConn(conn, ircd.Config.DeadTime),
		ID:   id,

		// Buffered channel. We don't want to block sending to the client from
		// the event loop. The client may be stuck. Make the buffer large enough
		// that it should only max out in case of connection issues.
		WriteChan: make(chan irc.Message, 512),

		ConnectionStartTime: now,
		LastActivityTime:    now,
		LastPingTime:        now,
		Ircd:                ircd,
	}
}

func (c *LocalClient) String() string {
	return fmt.Sprintf("%d %s", c.ID, c.Conn.RemoteAddr())
}

// Send a message to the client. We send it to its write channel, which in
// turn leads to writing it to its TCP socket.
//
// This function won't block. If the client's queue is full, we flag it as
// having a full send queue.
//
// Not blocking is important because the event loop sends the client messages
// this way, and if we block on a problem client, everything would grind to a
// halt.
func (c *LocalClient) maybeQueueMessage(m irc.Message) {
	if c.SendQueueExceeded {
		return
	}

	select {
	case c.WriteChan <- m:
	default:
		c.SendQueueExceeded = true
	}
}

// readLoop endlessly reads from the client's TCP connection. It parses each
// IRC protocol message and passes it to the event loop through the server's
// channel.
func (c *LocalClient) readLoop() {
	defer c.Ircd.WG.Done()

	for {
		if c.Ircd.isShuttingDown() {
			break
		}

		buf, err := c.Conn.Read()
		if err != nil {
			connLog(levelDebug, c, "%s", err)
			c.Ircd.newEvent(Event{Type: DeadClientEvent, Client: c})
			break
		}

		message, err := irc.ParseMessage(buf)
		if err != nil && err != irc.ErrTruncated {
			// Drop the frame but keep the connection. The peer may yet send
			// something well formed.
			connLog(levelWarning, c, "Invalid message: %s: %s", buf, err)
			continue
		}

		c.Ircd.newEvent(Event{
			Type:    MessageFromClientEvent,
			Client:  c,
			Message: message,
		})
	}

	connLog(levelDebug, c, "Reader shutting down.")
}

// writeLoop endlessly reads from the client's channel, encodes each message,
// and writes it to the client's TCP connection.
//
// When the channel is closed, or if we have a write error, close the TCP
// connection. I have this here so that we try to deliver messages to the
// client before closing its socket and giving up.
func (c *LocalClient) writeLoop() {
	defer c.Ircd.WG.Done()

	// Receive on the client's write channel.
	//
	// Ensure we also stop if the server is shutting down (indicated by the
	// ShutdownChan being closed). If we don't, then there is potential for us
	// to leak this goroutine. Consider the case where we have a new client,
	// and tell the event loop about it, but the server is shutting down, and
	// so does not see the new client event. In this case the event loop does
	// not know that it must close the write channel so that the client will
	// end (if we were for example using 'for message := range c.WriteChan', as
	// it would block forever).
	//
	// A problem with this is we are not guaranteed to process any remaining
	// messages on the write channel (and so inform the client about shutdown)
	// when we are shutting down. But it is an improvement on leaking the
	// goroutine.
Loop:
	for {
		select {
		case message, ok := <-c.WriteChan:
			if !ok {
				break Loop
			}

			if err := c.Conn.WriteMessage(message); err != nil {
				connLog(levelDebug, c, "%s", err)
				c.Ircd.newEvent(Event{Type: DeadClientEvent, Client: c})
				break Loop
			}
		case <-c.Ircd.ShutdownChan:
			break Loop
		}
	}

	if err := c.Conn.Close(); err != nil {
		connLog(levelWarning, c, "Problem closing connection: %s", err)
	}

	connLog(levelDebug, c, "Writer shutting down.")
}

// quit means the client is quitting. Tell it why and clean up.
func (c *LocalClient) quit(msg string) {
	// May already be cleaning up.
	_, exists := c.Ircd.LocalClients[c.ID]
	if !exists {
		return
	}

	c.messageFromServer("ERROR", []string{
		fmt.Sprintf("Closing Link: %s (%s)", c.Conn.IP, msg),
	})

	close(c.WriteChan)

	delete(c.Ircd.LocalClients, c.ID)
}

// Send an IRC message to a client. Appears to be from the server.
// This works by writing to a client's channel.
//
// Note: Only the event loop goroutine should call this (due to channel use).
func (c *LocalClient) messageFromServer(command string, params []string) {
	// For numeric messages, we need to prepend the nick.
	// Use * for the nick in cases where the client doesn't have one yet.
	// This is what ircd-ratbox does. Maybe not RFC...
	if isNumericCommand(command) {
		nick := "*"
		if len(c.PreRegDisplayNick) > 0 {
			nick = c.PreRegDisplayNick
		}
		newParams := []string{nick}
		newParams = append(newParams, params...)
		params = newParams
	}

	c.maybeQueueMessage(irc.Message{
		Prefix:  c.Ircd.Config.ServerName,
		Command: command,
		Params:  params,
	})
}

// handleMessage dispatches a message from an unregistered connection.
func (c *LocalClient) handleMessage(m irc.Message) handlerResult {
	c.LastActivityTime = time.Now()

	// Clients SHOULD NOT (RFC 2812 section 2.3) send a prefix.
	if m.Prefix != "" {
		c.messageFromServer("ERROR", []string{"Do not send a prefix"})
		return handlerOK
	}

	// Non-RFC command that appears to be widely supported. Just ignore it for
	// now.
	if m.Command == "CAP" {
		return handlerOK
	}

	handler, exists := preRegHandlers[m.Command]
	if !exists {
		// Everything else requires you to be registered.
		// 451 ERR_NOTREGISTERED
		c.messageFromServer("451", []string{"You have not registered"})
		return handlerOK
	}

	return handler(c, m)
}

// The NICK command happens both at connection registration time and after.
// There are different rules; this is the registration side.
func (c *LocalClient) nickCommand(m irc.Message) handlerResult {
	// We should have one parameter: The nick they want.
	if len(m.Params) == 0 {
		// 431 ERR_NONICKNAMEGIVEN
		c.messageFromServer("431", []string{"No nickname given"})
		return handlerOK
	}
	nick := m.Params[0]

	if len(nick) > c.Ircd.Config.MaxNickLength {
		nick = nick[0:c.Ircd.Config.MaxNickLength]
	}

	if !isValidNick(c.Ircd.Config.MaxNickLength, nick) {
		// 432 ERR_ERRONEUSNICKNAME
		c.messageFromServer("432", []string{nick, "Erroneous nickname"})
		return handlerOK
	}

	// Nick must be unique.
	_, exists := c.Ircd.Nicks[canonicalizeNick(nick)]
	if exists {
		// 433 ERR_NICKNAMEINUSE
		c.messageFromServer("433", []string{nick, "Nickname is already in use"})
		return handlerOK
	}

	// We don't flag the nick as taken until registration completes.

	c.PreRegDisplayNick = nick

	// We don't reply during registration (we don't have enough info, no uhost
	// anyway).

	// If we have USER done already, then we're done registration.
	if len(c.PreRegUser) > 0 {
		c.registerUser()
	}

	return handlerOK
}

func (c *LocalClient) userCommand(m irc.Message) handlerResult {
	// NICK SHOULD come before USER per the RFC, but we allow either order.

	// 4 parameters: <user> <mode> <unused> <realname>
	if len(m.Params) != 4 {
		// 461 ERR_NEEDMOREPARAMS
		c.messageFromServer("461", []string{m.Command, "Not enough parameters"})
		return handlerOK
	}

	user := m.Params[0]

	if len(user) > c.Ircd.Config.MaxNickLength {
		user = user[0:c.Ircd.Config.MaxNickLength]
	}

	if !isValidUser(c.Ircd.Config.MaxNickLength, user) {
		// There isn't an appropriate response in the RFC. ircd-ratbox sends an
		// ERROR message. Do that.
		c.messageFromServer("ERROR", []string{"Invalid username"})
		return handlerOK
	}
	c.PreRegUser = user

	// We could do something with the mode parameter here.

	if !isValidRealName(m.Params[3]) {
		c.messageFromServer("ERROR", []string{"Invalid realname"})
		return handlerOK
	}
	c.PreRegRealName = m.Params[3]

	// If we have a nick, then we're done registration.
	if len(c.PreRegDisplayNick) > 0 {
		c.registerUser()
	}

	return handlerOK
}

func (c *LocalClient) passCommand(m irc.Message) handlerResult {
	// PASS <password>. A linking server may send extra parameters; we only
	// care about the password.
	if len(m.Params) == 0 {
		// 461 ERR_NEEDMOREPARAMS
		c.messageFromServer("461", []string{"PASS", "Not enough parameters"})
		return handlerOK
	}

	if c.GotPASS {
		c.quit("Double PASS")
		return handlerDisconnect
	}

	// We can't validate the password until we see SERVER.

	c.PreRegPass = m.Params[0]
	c.GotPASS = true

	// Don't reply yet.
	return handlerOK
}

func (c *LocalClient) serverCommand(m irc.Message) handlerResult {
	// SERVER <name> <hopcount> <token> <info>. We care about the name; the
	// rest varies between implementations.
	if len(m.Params) == 0 {
		// 461 ERR_NEEDMOREPARAMS
		c.messageFromServer("461", []string{"SERVER", "Not enough parameters"})
		return handlerOK
	}

	if len(c.Ircd.Servers) == 0 {
		c.quit("Server links not configured")
		return handlerDisconnect
	}

	serverName := m.Params[0]

	// We have a roster of servers we will link to. Check against it directly.
	link, exists := c.Ircd.Servers[canonicalizeServerName(serverName)]
	if !exists || link == c.Ircd.ThisServer {
		c.quit("I don't know you")
		return handlerDisconnect
	}

	// At this point we should have a password from the PASS command. Check it.
	if link.Pass != c.PreRegPass {
		c.quit("Bad password")
		return handlerDisconnect
	}

	// Is this server already linked?
	if link.isLinked() {
		c.quit("I'm already linked to you!")
		return handlerDisconnect
	}

	c.registerServer(link)

	return handlerOK
}

func (c *LocalClient) quitCommand(m irc.Message) handlerResult {
	c.quit("Client quit")
	return handlerDisconnect
}

func (c *LocalClient) pingCommand(m irc.Message) handlerResult {
	if len(m.Params) == 0 {
		// 409 ERR_NOORIGIN
		c.messageFromServer("409", []string{"No origin specified"})
		return handlerOK
	}

	c.maybeQueueMessage(irc.Message{
		Prefix:  c.Ircd.Config.ServerName,
		Command: "PONG",
		Params:  []string{c.Ircd.Config.ServerName, m.Params[0]},
	})
	return handlerOK
}

func (c *LocalClient) pongCommand(m irc.Message) handlerResult {
	// Not doing anything with this. Just accept it.
	return handlerOK
}

// registerUser promotes the connection to a registered user and sends the
// welcome burst.
func (c *LocalClient) registerUser() {
	// Check NICK is still available. We don't reserve it in the Nicks table
	// until registration completes, so check now.
	_, exists := c.Ircd.Nicks[canonicalizeNick(c.PreRegDisplayNick)]
	if exists {
		// 433 ERR_NICKNAMEINUSE
		c.messageFromServer("433", []string{c.PreRegDisplayNick,
			"Nickname is already in use"})
		return
	}

	lu := NewLocalUser(c)

	u := &User{
		ID:          c.ID,
		DisplayNick: c.PreRegDisplayNick,
		Username:    c.PreRegUser,
		Hostname:    c.Conn.IP.String(),
		RealName:    c.PreRegRealName,
		Modes:       newModeSet(),
		Channels:    make(map[string]*ChannelMember),
		LocalUser:   lu,
	}

	lu.User = u

	delete(c.Ircd.LocalClients, c.ID)
	c.Ircd.LocalUsers[c.ID] = lu
	c.Ircd.Nicks[canonicalizeNick(u.DisplayNick)] = u

	// 001 RPL_WELCOME
	lu.messageFromServer("001", []string{
		fmt.Sprintf("Welcome to the Internet Relay Network %s", u.nickUhost()),
	})

	// 002 RPL_YOURHOST
	lu.messageFromServer("002", []string{
		fmt.Sprintf("Your host is %s, running version %s",
			c.Ircd.Config.ServerName, c.Ircd.Config.Version),
	})

	// 003 RPL_CREATED
	lu.messageFromServer("003", []string{
		fmt.Sprintf("This server was created %s", c.Ircd.Config.CreatedDate),
	})

	// 004 RPL_MYINFO
	// <servername> <version> <available user modes> <available channel modes>
	lu.messageFromServer("004", []string{
		c.Ircd.Config.ServerName,
		c.Ircd.Config.Version,
		"ao",
		"mtov",
	})

	lu.lusersCommand(irc.Message{})
	lu.motdCommand(irc.Message{})

	connLog(levelInfo, lu, "Registered user %s.", u.nickUhost())
}

// registerServer promotes the connection to a registered server link and
// replies with our own registration.
func (c *LocalClient) registerServer(link *ServerLink) {
	ls := NewLocalServer(c, link)

	link.LocalServer = ls

	delete(c.Ircd.LocalClients, c.ID)
	c.Ircd.LocalServers[c.ID] = ls

	// PASS <password> <version> <flags>
	ls.maybeQueueMessage(irc.Message{
		Command: "PASS",
		Params: []string{link.Pass, "0210",
			"|" + c.Ircd.Config.Version + "|"},
	})

	// SERVER <name> <hopcount> <token> <info>
	ls.maybeQueueMessage(irc.Message{
		Prefix:  c.Ircd.Config.ServerName,
		Command: "SERVER",
		Params: []string{c.Ircd.Config.ServerName, "1", "1",
			c.Ircd.Config.ServerInfo},
	})

	connLog(levelInfo, ls, "Established link to %s.", link.Name)
}
