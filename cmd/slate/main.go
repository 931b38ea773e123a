package main

import (
	"fmt"
	"os"
	"strings"
)

// Version is stamped at build time via -ldflags.
var Version = "dev"

func main() {
	args := parseGlobalFlags(os.Args[1:])

	if len(args) == 0 || args[0] == "help" || args[0] == "--help" || args[0] == "-h" {
		showUsage()
		return
	}

	cmd, rest := args[0], args[1:]
	if err := dispatch(cmd, rest); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", cmd, err)
		os.Exit(1)
	}
}

func dispatch(cmd string, args []string) error {
	switch cmd {
	case "status":
		return runStatus(args)
	case "discover":
		return runDiscover(args)
	case "load":
		return runLoad(args)
	case "unload":
		return runUnload(args)
	case "reload":
		return runReload(args)
	case "load-all":
		return runLoadAll(args)
	case "health":
		return runHealth(args)
	case "set-fallback":
		return runSetFallback(args)
	case "route":
		return runRoute(args)
	case "dispatch":
		return runDispatch(args)
	case "history":
		return runHistory(args)
	case "serve":
		return runServe(args)
	case "mcp":
		return runMCP(args)
	case "top":
		return runTop(args)
	case "version":
		fmt.Println("slate", Version)
		return nil
	default:
		return fmt.Errorf("unknown command %q\n\nRun 'slate --help' for usage", cmd)
	}
}

// globalFlags are accepted anywhere on the command line.
var (
	flagConfig = "./slate.yaml"
	flagJSON   = false
)

// parseGlobalFlags strips --config and --json from the argument list and
// returns what remains for the subcommand.
func parseGlobalFlags(args []string) []string {
	var rest []string
	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "--config" && i+1 < len(args):
			flagConfig = args[i+1]
			i++
		case strings.HasPrefix(args[i], "--config="):
			flagConfig = strings.TrimPrefix(args[i], "--config=")
		case args[i] == "--json":
			flagJSON = true
		default:
			rest = append(rest, args[i])
		}
	}
	return rest
}

func showUsage() {
	fmt.Println(`slate - agent plugin kernel

USAGE:
    slate [COMMAND] [ARGS] [FLAGS]

AGENT LIFECYCLE:
    discover             Scan the agents directory and register manifests
    load <agent>         Load a registered agent
    unload <agent>       Unload a loaded agent (refused while depended upon)
    reload <agent>       Hot-reload an agent from its module source
    load-all             Load every registered agent in registration order

ROUTING AND WORK:
    route <title> [description]      Preview routing without executing
    dispatch <title> [description]   Route and execute a work item
    set-fallback <agent> [fallback]  Set or clear a degraded-fallback route

OBSERVABILITY:
    status               Registry summary: states, counters, fallback table
    health               Run a health sweep and print per-agent reports
    history [agent]      Recent lifecycle transitions from the journal
    top                  Live status view (interactive)

SERVING:
    serve                Run the kernel: discovery, load-all, health monitor,
                         autosave, until interrupted
    mcp                  Serve kernel management tools over MCP stdio

    version              Print the version

FLAGS:
    --config PATH        Config file (default: ./slate.yaml)
    --json               Machine-readable output for one-shot commands

CONFIGURATION:
    Environment: SLATE_* variables override config values.`)
}
