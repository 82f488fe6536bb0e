// Command ultramemory is a thin stdlib-flag-based CLI over the Store
// Coordinator, Consolidation Engine, and Repo Ingestor. Modelled on the
// teacher's own small `cmd/*` entrypoints (os.Args[1]-keyed command routing,
// per-verb flag.FlagSet) — no CLI framework dependency is introduced.
package main

import (
	"fmt"
	"os"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	a := newApp()
	group, args := os.Args[1], os.Args[2:]

	switch group {
	case "memory":
		runMemory(a, args)
	case "agent":
		runAgent(a, args)
	case "code-index":
		runCodeIndex(a, args)
	case "schedule":
		runSchedule(a, args)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command group: %s\n", group)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`ultramemory — tri-store hybrid memory engine CLI

Usage:
  ultramemory <group> <verb> [options]

Groups:
  memory       add <content|path|url> [-m k=v ...]
               query <text> [-l N]
               count
               analyze
               consolidate [-force-full]
               delete <id> [--confirm] [--preserve-connections]
               delete-all [--confirm]

  agent        run <librarian|consolidator|deleter|...> [args...]
               create <name>
               list
               skills [name]
               add-skill <agent> <skill>

  code-index   <owner/repo|url> [-c category] [-f] [-l N] [-e pattern ...]

  schedule     add <agent> -c "cron" -a "args"
               list
               remove <id>
               enable <id>
               disable <id>
               run <id>
               logs <id>

Persisted state lives under $ULTRAMEMORY_HOME, or ~/.ulmemory by default.`)
}
