package main

import (
	"fmt"
	"io/ioutil"
	"time"

	"github.com/horgh/config"
)

// Config holds the server's runtime configuration.
type Config struct {
	ListenHost  string
	ListenPort  string
	ServerName  string
	ServerInfo  string
	Version     string
	CreatedDate string

	// Message of the day. Blank means we have none.
	MOTD string

	MaxNickLength int

	OperPassword string

	// Period of time to wait before waking the event loop up (maximum).
	WakeupTime time.Duration

	// Period of time a client can be idle before we send it a PING.
	PingTime time.Duration

	// Period of time a client can be idle before we consider it dead.
	DeadTime time.Duration

	// Canonicalized server name to its link information. Loaded from the
	// roster file. Empty when running standalone.
	Servers map[string]*ServerLink
}

// checkAndParseConfig builds the configuration from the command line
// arguments, the optional configuration file, and the optional network
// roster.
//
// We parse some values into alternate representations.
func checkAndParseConfig(args Args) (*Config, error) {
	cfg := &Config{
		ListenHost:    "",
		ListenPort:    fmt.Sprintf("%d", args.Port),
		ServerName:    args.ServerName,
		ServerInfo:    "prattled IRC server",
		Version:       "prattled-0.1.0",
		CreatedDate:   time.Now().Format("2006-01-02"),
		MaxNickLength: 30,
		OperPassword:  args.OperPassword,
		WakeupTime:    10 * time.Second,
		PingTime:      30 * time.Second,
		DeadTime:      240 * time.Second,
		Servers:       make(map[string]*ServerLink),
	}

	if len(cfg.ServerName) == 0 {
		cfg.ServerName = "localhost"
	}

	// The MOTD lives in motd.txt beside the server. Missing file simply means
	// no MOTD.
	cfg.MOTD = loadMOTD("motd.txt")

	if len(args.ConfFile) > 0 {
		if err := cfg.applyConfigFile(args.ConfFile); err != nil {
			return nil, fmt.Errorf("configuration problem: %s", err)
		}
	}

	if len(args.RosterFile) > 0 {
		links, err := loadRoster(args.RosterFile)
		if err != nil {
			return nil, err
		}

		_, exists := links[canonicalizeServerName(cfg.ServerName)]
		if !exists {
			return nil, fmt.Errorf("roster has no entry for this server: %s",
				cfg.ServerName)
		}

		cfg.Servers = links
	}

	return cfg, nil
}

// applyConfigFile overlays settings from a key=value configuration file.
// Every key is optional.
func (cfg *Config) applyConfigFile(file string) error {
	configMap, err := config.ReadStringMap(file)
	if err != nil {
		return err
	}

	if v, exists := configMap["listen-host"]; exists {
		cfg.ListenHost = v
	}

	if v, exists := configMap["created-date"]; exists {
		cfg.CreatedDate = v
	}

	if v, exists := configMap["ping-time"]; exists {
		cfg.PingTime, err = time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("ping time is in invalid format: %s", err)
		}
	}

	if v, exists := configMap["dead-time"]; exists {
		cfg.DeadTime, err = time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("dead time is in invalid format: %s", err)
		}
	}

	if v, exists := configMap["motd"]; exists {
		buf, err := ioutil.ReadFile(v)
		if err != nil {
			return fmt.Errorf("unable to read MOTD file: %s", err)
		}
		cfg.MOTD = string(buf)
	}

	return nil
}

// loadMOTD reads the MOTD file if there is one. No file means no MOTD.
func loadMOTD(path string) string {
	buf, err := ioutil.ReadFile(path)
	if err != nil {
		return ""
	}
	return string(buf)
}
