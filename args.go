package main

import (
	"flag"
	"fmt"
)

// Args are command line arguments.
type Args struct {
	OperPassword string
	Port         int
	ServerName   string
	RosterFile   string
	ConfFile     string
	Verbosity    logLevel
	ShowHelp     bool
}

func getArgs(argv []string) (Args, error) {
	fs := flag.NewFlagSet("prattled", flag.ContinueOnError)

	operPassword := fs.String("o", "", "Operator password (required).")
	port := fs.Int("p", 6667, "Port to listen on.")
	serverName := fs.String("s", "",
		"Name of this server. Required with -n, where it must match a roster entry.")
	rosterFile := fs.String("n", "", "Network roster file.")
	confFile := fs.String("conf", "", "Optional configuration file.")
	verbose := fs.Bool("v", false, "Verbose logging (DEBUG).")
	veryVerbose := fs.Bool("vv", false, "Very verbose logging (TRACE).")
	quiet := fs.Bool("q", false, "Log only critical errors.")
	help := fs.Bool("h", false, "Print help and exit.")

	if err := fs.Parse(argv); err != nil {
		return Args{}, err
	}

	if *help {
		fs.PrintDefaults()
		return Args{ShowHelp: true}, nil
	}

	if len(*operPassword) == 0 {
		fs.PrintDefaults()
		return Args{}, fmt.Errorf("you must provide an operator password (-o)")
	}

	if len(*rosterFile) > 0 && len(*serverName) == 0 {
		return Args{}, fmt.Errorf("-n requires -s")
	}

	verbosity := levelInfo
	if *verbose {
		verbosity = levelDebug
	}
	if *veryVerbose {
		verbosity = levelTrace
	}
	if *quiet {
		verbosity = levelCritical
	}

	return Args{
		OperPassword: *operPassword,
		Port:         *port,
		ServerName:   *serverName,
		RosterFile:   *rosterFile,
		ConfFile:     *confFile,
		Verbosity:    verbosity,
	}, nil
}
