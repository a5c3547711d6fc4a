package main

import (
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"github.com/horgh/irc"
)

// Ircd holds the server's state. The event loop goroutine owns everything in
// here; other goroutines talk to it only through ToServerChan.
type Ircd struct {
	Config *Config

	// Connection ID to connection, split by registration state.
	LocalClients map[uint64]*LocalClient
	LocalUsers   map[uint64]*LocalUser
	LocalServers map[uint64]*LocalServer

	// Canonicalized nickname to user.
	Nicks map[string]*User

	// Canonicalized channel name to channel.
	Channels map[string]*Channel

	// Canonicalized server name to roster entry. Includes our own entry when
	// running with a network roster.
	Servers map[string]*ServerLink

	// Our own roster entry. Nil when running standalone.
	ThisServer *ServerLink

	StartTime time.Time

	// When we close this channel, this indicates that we're shutting down.
	// Other goroutines can check if this channel is closed.
	ShutdownChan chan struct{}

	// Tell the event loop something on this channel.
	ToServerChan chan Event

	// TCP listener.
	Listener net.Listener

	// WaitGroup to ensure all goroutines clean up before we end.
	WG sync.WaitGroup
}

// Event holds a message containing something to tell the event loop.
type Event struct {
	Type EventType

	// The connection the event concerns. It may since have been promoted to a
	// user or server; we look it up by ID.
	Client *LocalClient

	Message irc.Message
}

// EventType is a type of event we can tell the event loop about.
type EventType int

const (
	// NullEvent is a default event. This means the event was not populated.
	NullEvent EventType = iota

	// NewClientEvent means a new client connected.
	NewClientEvent

	// DeadClientEvent means client died for some reason. Clean it up.
	// It's useful to be able to know immediately and inform the client if we're
	// going to decide they are getting cut off (e.g., malformed message).
	DeadClientEvent

	// MessageFromClientEvent means a client sent a message.
	MessageFromClientEvent

	// WakeUpEvent means the event loop should wake up and do bookkeeping.
	WakeUpEvent

	// ShutdownEvent means the server should shut down.
	ShutdownEvent
)

func main() {
	args, err := getArgs(os.Args[1:])
	if err != nil {
		serverFatal("%s", err)
	}

	if args.ShowHelp {
		os.Exit(0)
	}

	logVerbosity = args.Verbosity

	cfg, err := checkAndParseConfig(args)
	if err != nil {
		serverFatal("%s", err)
	}

	ircd := newIrcd(cfg)

	ln, err := ircd.listen()
	if err != nil {
		serverFatal("%s", err)
	}

	serverLog(levelInfo, "%s listening on %s", cfg.ServerName, ln.Addr())

	if err := ircd.start(ln); err != nil {
		serverFatal("%s", err)
	}

	serverLog(levelInfo, "Server shutdown cleanly.")
}

func newIrcd(cfg *Config) *Ircd {
	ircd := &Ircd{
		Config: cfg,

		LocalClients: make(map[uint64]*LocalClient),
		LocalUsers:   make(map[uint64]*LocalUser),
		LocalServers: make(map[uint64]*LocalServer),
		Nicks:        make(map[string]*User),
		Channels:     make(map[string]*Channel),
		Servers:      cfg.Servers,

		StartTime: time.Now(),

		// shutdown() closes this channel.
		ShutdownChan: make(chan struct{}),

		// We never manually close this channel.
		ToServerChan: make(chan Event),
	}

	ircd.ThisServer = ircd.Servers[canonicalizeServerName(cfg.ServerName)]

	return ircd
}

// listen opens the TCP listening socket.
func (ircd *Ircd) listen() (net.Listener, error) {
	ln, err := net.Listen("tcp", fmt.Sprintf("%s:%s", ircd.Config.ListenHost,
		ircd.Config.ListenPort))
	if err != nil {
		return nil, fmt.Errorf("unable to listen: %s", err)
	}
	return ln, nil
}

// start starts up the server on the given listener.
//
// We start goroutines and then receive messages on our channels until
// shutdown.
func (ircd *Ircd) start(ln net.Listener) error {
	ircd.Listener = ln

	// acceptConnections accepts connections on the TCP listener.
	ircd.WG.Add(1)
	go ircd.acceptConnections()

	// Alarm is a goroutine to wake up this one periodically so we can do
	// things like ping clients.
	ircd.WG.Add(1)
	go ircd.alarm()

	ircd.eventLoop()

	// We don't need to drain any channels. None close that will have any
	// goroutines blocked on them.

	ircd.WG.Wait()

	return nil
}

// eventLoop processes events on the server's channel.
//
// It continues until the shutdown channel closes, indicating shutdown.
func (ircd *Ircd) eventLoop() {
	for {
		select {
		case evt := <-ircd.ToServerChan:
			ircd.handleEvent(evt)

		case <-ircd.ShutdownChan:
			return
		}
	}
}

func (ircd *Ircd) handleEvent(evt Event) {
	switch evt.Type {
	case NewClientEvent:
		connLog(levelDebug, evt.Client, "New client connection.")
		ircd.LocalClients[evt.Client.ID] = evt.Client

	case DeadClientEvent:
		if client, exists := ircd.LocalClients[evt.Client.ID]; exists {
			connLog(levelDebug, client, "Client died.")
			client.quit("I/O error")
		}
		if user, exists := ircd.LocalUsers[evt.Client.ID]; exists {
			connLog(levelDebug, user, "Client died.")
			user.quit("I/O error")
		}
		if server, exists := ircd.LocalServers[evt.Client.ID]; exists {
			connLog(levelDebug, server, "Server died.")
			server.quit("I/O error")
		}

	case MessageFromClientEvent:
		ircd.handleClientMessage(evt)

	case WakeUpEvent:
		ircd.checkAndPingClients()

	case ShutdownEvent:
		ircd.shutdown()

	default:
		serverFatal("Unexpected event: %d", evt.Type)
	}
}

// handleClientMessage finds the connection the message came from and
// dispatches it to the handler for its registration state. The handler
// reports how things went; internal failures cut the connection off.
func (ircd *Ircd) handleClientMessage(evt Event) {
	if client, exists := ircd.LocalClients[evt.Client.ID]; exists {
		connLog(levelTrace, client, "Message: %s", evt.Message)
		ircd.applyHandlerResult(client, client.handleMessage(evt.Message))
		return
	}

	if user, exists := ircd.LocalUsers[evt.Client.ID]; exists {
		connLog(levelTrace, user, "Message: %s", evt.Message)
		ircd.applyHandlerResult(user.LocalClient, user.handleMessage(evt.Message))
		return
	}

	if server, exists := ircd.LocalServers[evt.Client.ID]; exists {
		connLog(levelTrace, server, "Message: %s", evt.Message)
		ircd.applyHandlerResult(server.LocalClient,
			server.handleMessage(evt.Message))
		return
	}
}

// applyHandlerResult acts on what a command handler told us. The connection
// may have been promoted or torn down by the handler, so we go back through
// the tables by ID.
func (ircd *Ircd) applyHandlerResult(c *LocalClient, res handlerResult) {
	if res == handlerError {
		connLog(levelError, c, "Handler failure.")
		ircd.quitConnection(c, "Internal error")
		return
	}

	if c.SendQueueExceeded {
		ircd.quitConnection(c, "SendQ exceeded")
	}
}

// quitConnection cuts a connection off whatever its registration state.
func (ircd *Ircd) quitConnection(c *LocalClient, msg string) {
	if client, exists := ircd.LocalClients[c.ID]; exists {
		client.quit(msg)
	}
	if user, exists := ircd.LocalUsers[c.ID]; exists {
		user.quit(msg)
	}
	if server, exists := ircd.LocalServers[c.ID]; exists {
		server.quit(msg)
	}
}

// shutdown starts server shutdown.
func (ircd *Ircd) shutdown() {
	serverLog(levelInfo, "Server shutdown initiated.")

	// Closing ShutdownChan indicates to other goroutines that we're shutting
	// down.
	close(ircd.ShutdownChan)

	if err := ircd.Listener.Close(); err != nil {
		serverLog(levelWarning, "Problem closing TCP listener: %s", err)
	}

	// All clients need to be told. This also closes their write channels.
	for _, client := range ircd.LocalClients {
		client.quit("Server shutting down")
	}
	for _, user := range ircd.LocalUsers {
		user.quit("Server shutting down")
	}
	for _, server := range ircd.LocalServers {
		server.quit("Server shutting down")
	}
}

// acceptConnections accepts TCP connections and tells the event loop about
// each through its channel. It sets up separate goroutines for reading from
// and writing to the client.
func (ircd *Ircd) acceptConnections() {
	defer ircd.WG.Done()

	id := uint64(0)

	for {
		if ircd.isShuttingDown() {
			break
		}

		conn, err := ircd.Listener.Accept()
		if err != nil {
			serverLog(levelWarning, "Failed to accept connection: %s", err)
			continue
		}

		client := NewLocalClient(ircd, id, conn)

		// Handle rollover of uint64. Unlikely to happen (outside abuse) but.
		if id+1 == 0 {
			serverFatal("Unique ids rolled over!")
		}
		id++

		// ToServerChan is synchronous. We want to make sure the event loop knows
		// about the client before it starts hearing anything from its other
		// channels about the client.
		ircd.newEvent(Event{Type: NewClientEvent, Client: client})

		ircd.WG.Add(1)
		go client.readLoop()
		ircd.WG.Add(1)
		go client.writeLoop()
	}

	serverLog(levelDebug, "Connection accepter shutting down.")
}

// Return true if the server is shutting down.
func (ircd *Ircd) isShuttingDown() bool {
	// No messages get sent to this channel, so if we receive a message on it,
	// then we know the channel was closed.
	select {
	case <-ircd.ShutdownChan:
		return true
	default:
		return false
	}
}

// Alarm sends a message to the event loop goroutine to wake it up.
// It sleeps and then repeats.
func (ircd *Ircd) alarm() {
	defer ircd.WG.Done()

	for {
		if ircd.isShuttingDown() {
			break
		}

		time.Sleep(ircd.Config.WakeupTime)

		ircd.newEvent(Event{Type: WakeUpEvent})
	}

	serverLog(levelDebug, "Alarm shutting down.")
}

// checkAndPingClients looks at each connection.
//
// Connections that overflowed their send queue get cut off.
//
// If a registered connection has been idle a short time, we send it a PING.
// If it has been idle a long time, we kill its connection. Unregistered
// connections just get killed once idle too long.
func (ircd *Ircd) checkAndPingClients() {
	now := time.Now()

	for _, client := range ircd.LocalClients {
		if client.SendQueueExceeded {
			client.quit("SendQ exceeded")
			continue
		}

		if now.Sub(client.LastActivityTime) > ircd.Config.DeadTime {
			client.quit("Idle too long.")
		}
	}

	for _, user := range ircd.LocalUsers {
		if user.SendQueueExceeded {
			user.quit("SendQ exceeded")
			continue
		}

		timeIdle := now.Sub(user.LastActivityTime)

		// Was it active recently enough that we don't need to do anything?
		if timeIdle < ircd.Config.PingTime {
			continue
		}

		// It's been idle a while.

		// Has it been idle long enough that we consider it dead?
		if timeIdle > ircd.Config.DeadTime {
			user.quit(fmt.Sprintf("Ping timeout: %d seconds",
				int(timeIdle.Seconds())))
			continue
		}

		// Should we ping it? We might have pinged it recently.
		if now.Sub(user.LastPingTime) < ircd.Config.PingTime {
			continue
		}

		user.messageFromServer("PING", []string{ircd.Config.ServerName})
		user.LastPingTime = now
	}

	for _, server := range ircd.LocalServers {
		if server.SendQueueExceeded {
			server.quit("SendQ exceeded")
			continue
		}

		timeIdle := now.Sub(server.LastActivityTime)

		if timeIdle < ircd.Config.PingTime {
			continue
		}

		if timeIdle > ircd.Config.DeadTime {
			server.quit(fmt.Sprintf("Ping timeout: %d seconds",
				int(timeIdle.Seconds())))
			continue
		}

		if now.Sub(server.LastPingTime) < ircd.Config.PingTime {
			continue
		}

		server.maybeQueueMessage(irc.Message{
			Prefix:  ircd.Config.ServerName,
			Command: "PING",
			Params:  []string{ircd.Config.ServerName},
		})
		server.LastPingTime = now
	}
}

// newEvent tells the event loop something happened.
//
// Any goroutine can call this function.
//
// It will not block on shutdown as we select on the shutdown channel which we
// close when shutting down the server. This means receive on the shutdown
// channel will proceed at that point.
func (ircd *Ircd) newEvent(evt Event) {
	select {
	case ircd.ToServerChan <- evt:
	case <-ircd.ShutdownChan:
	}
}

// getOrCreateChannel finds a channel by name, creating it if it does not
// exist yet. It reports whether it created the channel.
func (ircd *Ircd) getOrCreateChannel(name string) (*Channel, bool) {
	nameCanon := canonicalizeChannel(name)

	channel, exists := ircd.Channels[nameCanon]
	if exists {
		return channel, false
	}

	channel = newChannel(name)
	ircd.Channels[nameCanon] = channel

	return channel, true
}

// destroyChannelIfEmpty drops the channel once its last member is gone.
func (ircd *Ircd) destroyChannelIfEmpty(c *Channel) {
	if len(c.Members) > 0 {
		return
	}
	delete(ircd.Channels, canonicalizeChannel(c.Name))
}

// Number of operators currently online.
func (ircd *Ircd) operCount() int {
	count := 0
	for _, user := range ircd.Nicks {
		if user.isOperator() {
			count++
		}
	}
	return count
}
