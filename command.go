package main

import "github.com/horgh/irc"

// handlerResult reports how a command handler got on.
type handlerResult int

const (
	// handlerOK means the command was dealt with, successfully or with an
	// error reply to the peer.
	handlerOK handlerResult = iota

	// handlerDisconnect means the handler tore the connection down. Nothing
	// further may be sent on it.
	handlerDisconnect

	// handlerError means the handler hit an internal problem. The caller
	// should cut the connection off.
	handlerError
)

// Commands an unregistered connection may send. Anything else before
// registration completes draws ERR_NOTREGISTERED.
var preRegHandlers = map[string]func(*LocalClient, irc.Message) handlerResult{
	"NICK":   (*LocalClient).nickCommand,
	"USER":   (*LocalClient).userCommand,
	"PASS":   (*LocalClient).passCommand,
	"SERVER": (*LocalClient).serverCommand,
	"QUIT":   (*LocalClient).quitCommand,
	"PING":   (*LocalClient).pingCommand,
	"PONG":   (*LocalClient).pongCommand,
}

// Commands a registered user may send. Anything else draws
// ERR_UNKNOWNCOMMAND.
var userHandlers = map[string]func(*LocalUser, irc.Message) handlerResult{
	"NICK":    (*LocalUser).nickCommand,
	"USER":    (*LocalUser).alreadyRegisteredCommand,
	"PASS":    (*LocalUser).alreadyRegisteredCommand,
	"SERVER":  (*LocalUser).alreadyRegisteredCommand,
	"JOIN":    (*LocalUser).joinCommand,
	"PART":    (*LocalUser).partCommand,
	"PRIVMSG": (*LocalUser).privmsgCommand,
	"NOTICE":  (*LocalUser).privmsgCommand,
	"QUIT":    (*LocalUser).quitCommand,
	"MODE":    (*LocalUser).modeCommand,
	"TOPIC":   (*LocalUser).topicCommand,
	"LIST":    (*LocalUser).listCommand,
	"NAMES":   (*LocalUser).namesCommand,
	"WHO":     (*LocalUser).whoCommand,
	"WHOIS":   (*LocalUser).whoisCommand,
	"LUSERS":  (*LocalUser).lusersCommand,
	"MOTD":    (*LocalUser).motdCommand,
	"OPER":    (*LocalUser).operCommand,
	"AWAY":    (*LocalUser).awayCommand,
	"PING":    (*LocalUser).pingCommand,
	"PONG":    (*LocalUser).pongCommand,
}

// Commands a registered server link may send.
var serverHandlers = map[string]func(*LocalServer, irc.Message) handlerResult{
	"PING":  (*LocalServer).pingCommand,
	"PONG":  (*LocalServer).pongCommand,
	"ERROR": (*LocalServer).errorCommand,
}
