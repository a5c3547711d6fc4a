package main

import "fmt"

// ServerLink holds information about a server in the network roster,
// including the entry for this server itself. At most one connection may be
// registered against each entry.
type ServerLink struct {
	// Each server has a unique name. e.g., irc.example.com.
	Name string

	Hostname string
	Port     int
	Pass     string

	// Set while a connection is registered against this entry.
	LocalServer *LocalServer
}

func (s *ServerLink) String() string {
	return fmt.Sprintf("%s (%s:%d)", s.Name, s.Hostname, s.Port)
}

func (s *ServerLink) isLinked() bool {
	return s.LocalServer != nil
}
