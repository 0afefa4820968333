// Command proxyd is the multiplexing MCP proxy's entrypoint: it loads the
// aggregate configuration document, brings up the ambient subsystems
// (logging, the Loading Manager, the Client Manager, the Preset Store, the
// Instruction Aggregator, the Config-Reload Dispatcher), and blocks on an
// inbound MCP transport built with mark3labs/mcp-go/server.
package main

import "os"

// version is set at build time with -ldflags.
var version = "dev"

func main() {
	SetVersion(version)
	os.Exit(Execute())
}
