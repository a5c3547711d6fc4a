package main

import (
	"fmt"
	"time"

	"github.com/horgh/irc"
)

// LocalServer means the connection registered as a server link. This holds
// its info.
type LocalServer struct {
	*LocalClient

	Link *ServerLink
}

// NewLocalServer upgrades a LocalClient to a LocalServer.
func NewLocalServer(c *LocalClient, link *ServerLink) *LocalServer {
	return &LocalServer{
		LocalClient: c,
		Link:        link,
	}
}

func (s *LocalServer) String() string {
	return fmt.Sprintf("%s %s", s.Link.Name, s.Conn.RemoteAddr())
}

// handleMessage dispatches a message the server sent us.
//
// We speak only a minimal server to server protocol: keepalives and link
// teardown.
func (s *LocalServer) handleMessage(m irc.Message) handlerResult {
	s.LastActivityTime = time.Now()

	handler, exists := serverHandlers[m.Command]
	if !exists {
		// 421 ERR_UNKNOWNCOMMAND
		s.maybeQueueMessage(irc.Message{
			Prefix:  s.Ircd.Config.ServerName,
			Command: "421",
			Params:  []string{s.Link.Name, m.Command, "Unknown command"},
		})
		return handlerOK
	}

	return handler(s, m)
}

func (s *LocalServer) pingCommand(m irc.Message) handlerResult {
	if len(m.Params) == 0 {
		s.maybeQueueMessage(irc.Message{
			Prefix:  s.Ircd.Config.ServerName,
			Command: "409",
			Params:  []string{s.Link.Name, "No origin specified"},
		})
		return handlerOK
	}

	s.maybeQueueMessage(irc.Message{
		Prefix:  s.Ircd.Config.ServerName,
		Command: "PONG",
		Params:  []string{s.Ircd.Config.ServerName, m.Params[0]},
	})
	return handlerOK
}

func (s *LocalServer) pongCommand(m irc.Message) handlerResult {
	// Not doing anything with this. Just accept it.
	return handlerOK
}

func (s *LocalServer) errorCommand(m irc.Message) handlerResult {
	// The other side is telling us it is going away.
	s.quit("Bye")
	return handlerDisconnect
}

// quit drops the server link.
//
// Note: Only the event loop goroutine should call this (due to closing
// channel).
func (s *LocalServer) quit(msg string) {
	// May already be cleaning up.
	_, exists := s.Ircd.LocalServers[s.ID]
	if !exists {
		return
	}

	s.maybeQueueMessage(irc.Message{
		Prefix:  s.Ircd.Config.ServerName,
		Command: "ERROR",
		Params:  []string{fmt.Sprintf("Closing Link: %s (%s)", s.Link.Name, msg)},
	})

	close(s.WriteChan)

	s.Link.LocalServer = nil
	delete(s.Ircd.LocalServers, s.ID)

	connLog(levelInfo, s, "Lost link.")
}
