package main

import (
	"fmt"
	"os"

	"github.com/DeBrosOfficial/snowball/pkg/cli"
)

// version metadata populated via -ldflags at build time
var (
	version = "dev"
	commit  = ""
	date    = ""
)

func main() {
	env := cli.DefaultEnv()
	args := env.ParseGlobalFlags(os.Args[1:])
	if len(args) == 0 {
		showHelp()
		return
	}

	command := args[0]
	args = args[1:]

	var err error
	switch command {
	case "version":
		fmt.Printf("snowball %s", version)
		if commit != "" {
			fmt.Printf(" (commit %s)", commit)
		}
		if date != "" {
			fmt.Printf(" built %s", date)
		}
		fmt.Println()
		return

	case "auth":
		err = cli.HandleAuthCommand(env, args)
	case "chains":
		err = cli.HandleChainsCommand(env)
	case "config":
		err = cli.HandleConfigCommand(env, args)

	case "help", "--help", "-h":
		showHelp()

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		showHelp()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(1)
	}
}

func showHelp() {
	fmt.Printf("Snowball CLI - account and wallet tooling for the Snowball SDK\n\n")
	fmt.Printf("Usage: snowball <command> [args...]\n\n")

	fmt.Printf("🔐 Authentication:\n")
	fmt.Printf("  auth login [email]            - Sign in with an emailed one-time code\n")
	fmt.Printf("  auth logout                   - Clear the stored session\n")
	fmt.Printf("  auth whoami                   - Show the signed in user\n")
	fmt.Printf("  auth status                   - Show backend and session details\n\n")

	fmt.Printf("⛓️  Chains:\n")
	fmt.Printf("  chains                        - List known chains\n\n")

	fmt.Printf("⚙️  Config:\n")
	fmt.Printf("  config validate               - Validate the config\n")
	fmt.Printf("  config show                   - Print the effective config\n\n")

	fmt.Printf("Global Flags:\n")
	fmt.Printf("  -c, --config <file>           - Config file (default: ~/.snowball/config.yaml)\n")
	fmt.Printf("  -f, --format <format>         - Output format: table, json (default: table)\n")
	fmt.Printf("  -t, --timeout <duration>      - Operation timeout (default: 30s)\n\n")

	fmt.Printf("Examples:\n")
	fmt.Printf("  SNOWBALL_API_KEY=pk_... snowball auth login me@example.com\n")
	fmt.Printf("  snowball auth whoami -f json\n")
}
