package main

import (
	"bufio"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/horgh/irc"
	"github.com/stretchr/testify/require"
)

// startServer brings up a full server on an ephemeral port. It shuts the
// server down when the test ends.
func startServer(t *testing.T) (*Ircd, string) {
	return runServer(t, testConfig(t, Args{OperPassword: "opersecret"}))
}

// startServerWithRoster brings up a server in network mode. The roster knows
// this server as irc1.example.com and one peer, irc2.example.com, with link
// password secret2.
func startServerWithRoster(t *testing.T) (*Ircd, string) {
	roster := writeTempFile(t, `irc1.example.com,127.0.0.1,6667,secret1
irc2.example.com,127.0.0.1,6667,secret2
`)

	return runServer(t, testConfig(t, Args{
		OperPassword: "opersecret",
		ServerName:   "irc1.example.com",
		RosterFile:   roster,
	}))
}

func testConfig(t *testing.T, args Args) *Config {
	logVerbosity = levelCritical

	cfg, err := checkAndParseConfig(args)
	require.NoError(t, err)

	// Tests must not depend on files in the working directory.
	cfg.MOTD = ""

	return cfg
}

func runServer(t *testing.T, cfg *Config) (*Ircd, string) {
	ircd := newIrcd(cfg)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		_ = ircd.start(ln)
		close(done)
	}()

	t.Cleanup(func() {
		ircd.newEvent(Event{Type: ShutdownEvent})
		<-done
	})

	return ircd, ln.Addr().String()
}

// client is a test IRC client speaking to the server over TCP.
type client struct {
	t    *testing.T
	conn net.Conn
	r    *bufio.Reader
}

func connect(t *testing.T, addr string) *client {
	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)

	t.Cleanup(func() { _ = conn.Close() })

	return &client{t: t, conn: conn, r: bufio.NewReader(conn)}
}

func (c *client) send(line string) {
	require.NoError(c.t,
		c.conn.SetWriteDeadline(time.Now().Add(5*time.Second)))

	_, err := c.conn.Write([]byte(line + "\r\n"))
	require.NoError(c.t, err)
}

func (c *client) readMessage() irc.Message {
	require.NoError(c.t,
		c.conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	line, err := c.r.ReadString('\n')
	require.NoError(c.t, err)

	m, err := irc.ParseMessage(line)
	if err != nil && err != irc.ErrTruncated {
		c.t.Fatalf("invalid message from server: %s: %s", line, err)
	}

	return m
}

// waitFor reads messages until one with the given command arrives. Anything
// else in between is discarded.
func (c *client) waitFor(command string) irc.Message {
	for i := 0; i < 128; i++ {
		m := c.readMessage()
		if m.Command == command {
			return m
		}
	}

	c.t.Fatalf("no %s message arrived", command)
	return irc.Message{}
}

// waitForAny reads messages until one matches any of the given commands.
func (c *client) waitForAny(commands ...string) irc.Message {
	for i := 0; i < 128; i++ {
		m := c.readMessage()
		for _, command := range commands {
			if m.Command == command {
				return m
			}
		}
	}

	c.t.Fatalf("none of %v arrived", commands)
	return irc.Message{}
}

// register runs the client through connection registration and drains the
// welcome burst.
func (c *client) register(nick string) {
	c.send("NICK " + nick)
	c.send(fmt.Sprintf("USER %s 0 * :%s", nick, nick))

	c.waitFor("001")

	// The burst ends with either the end of the MOTD or ERR_NOMOTD.
	c.waitForAny("376", "422")
}

// sync round trips a PING so we know the server processed everything we sent
// before it. It returns whatever else arrived in the meantime, so tests can
// assert a message did NOT come.
func (c *client) sync() []irc.Message {
	c.send("PING :sync")

	var arrived []irc.Message
	for i := 0; i < 128; i++ {
		m := c.readMessage()
		if m.Command == "PONG" && len(m.Params) >= 2 && m.Params[1] == "sync" {
			return arrived
		}
		arrived = append(arrived, m)
	}

	c.t.Fatalf("no PONG arrived")
	return nil
}
