package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// loadRoster reads the network roster file.
//
// One server per line: <name>,<hostname>,<port>,<password>
//
// Blank lines and lines starting with # are skipped. Duplicate server names
// are an error.
func loadRoster(file string) (map[string]*ServerLink, error) {
	fh, err := os.Open(file)
	if err != nil {
		return nil, fmt.Errorf("unable to open roster: %s", err)
	}
	defer func() { _ = fh.Close() }()

	links := make(map[string]*ServerLink)

	scanner := bufio.NewScanner(fh)
	lineNum := 0
	for scanner.Scan() {
		lineNum++

		line := strings.TrimSpace(scanner.Text())
		if len(line) == 0 || strings.HasPrefix(line, "#") {
			continue
		}

		link, err := parseLink(line)
		if err != nil {
			return nil, fmt.Errorf("malformed roster line %d: %s", lineNum, err)
		}

		nameCanon := canonicalizeServerName(link.Name)
		if _, exists := links[nameCanon]; exists {
			return nil, fmt.Errorf("duplicate server in roster: %s", link.Name)
		}
		links[nameCanon] = link
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading roster: %s", err)
	}

	return links, nil
}

// Parse one roster line.
// Format:
// <name>,<hostname>,<port>,<password>
func parseLink(s string) (*ServerLink, error) {
	pieces := strings.Split(s, ",")
	if len(pieces) != 4 {
		return nil, fmt.Errorf("unexpected number of fields")
	}

	name := strings.TrimSpace(pieces[0])
	if len(name) == 0 {
		return nil, fmt.Errorf("you must specify a server name")
	}

	hostname := strings.TrimSpace(pieces[1])
	if len(hostname) == 0 {
		return nil, fmt.Errorf("you must specify a hostname")
	}

	port, err := strconv.ParseInt(strings.TrimSpace(pieces[2]), 10, 32)
	if err != nil {
		return nil, fmt.Errorf("invalid port: %s: %s", pieces[2], err)
	}

	pass := strings.TrimSpace(pieces[3])
	if len(pass) == 0 {
		return nil, fmt.Errorf("you must specify a password")
	}

	return &ServerLink{
		Name:     name,
		Hostname: hostname,
		Port:     int(port),
		Pass:     pass,
	}, nil
}
