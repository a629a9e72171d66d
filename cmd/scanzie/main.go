// Package main provides the scanzie command: the dashboard API server and
// tools to watch analyses and manage the database from a terminal.
//
// Usage:
//
//	scanzie serve
//	scanzie watch https://example.com --session-token <token>
//	scanzie migrate
//
// See --help for all available options.
package main

func main() {
	Execute()
}
