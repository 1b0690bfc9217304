// Package main is the entry point for the community events server.
//
// The main package stays minimal: all commands live in cmd/server/cmd and
// all application logic in internal/.
//
// WHY cmd/server/?
// The cmd/ directory is a Go convention for executable entry points. One
// binary serves the API and carries the operational subcommands (migrate,
// seed, version), so there is a single directory here.
package main

import "github.com/sakif/community-events/cmd/server/cmd"

func main() {
	cmd.Execute()
}
