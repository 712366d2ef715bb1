package main

import (
	"fmt"
	"os"
)

var AppVersion = "dev"

const usage = `Usage: autoscrip-cli <command> [flags]

Commands:
  license issue    Issue a license token (--months, --note)
  license list     List license tokens
  servers list     List provisioned servers
  servers delete   Delete a server record (--id)
  diagnose         Run a host diagnostic (--id, --kind traffic|speed)
  hash-secret      Print a bcrypt hash for auth.admin_secret_hash (--secret)
  version          Print the CLI version

Common flags:
  --server   Server URL (default $AUTOSCRIP_SERVER or http://localhost:3000)
  --api-key  Admin API key (default $AUTOSCRIP_API_KEY)
`

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	if len(args) == 0 {
		fmt.Print(usage)
		return fmt.Errorf("missing command")
	}

	switch args[0] {
	case "license":
		if len(args) < 2 {
			return fmt.Errorf("license requires a subcommand: issue or list")
		}
		switch args[1] {
		case "issue":
			return runLicenseIssue(args[2:], os.Stdout)
		case "list":
			return runLicenseList(args[2:], os.Stdout)
		}
		return fmt.Errorf("unknown license subcommand: %s", args[1])
	case "servers":
		if len(args) < 2 {
			return fmt.Errorf("servers requires a subcommand: list or delete")
		}
		switch args[1] {
		case "list":
			return runServersList(args[2:], os.Stdout)
		case "delete":
			return runServersDelete(args[2:], os.Stdout)
		}
		return fmt.Errorf("unknown servers subcommand: %s", args[1])
	case "diagnose":
		return runDiagnose(args[1:], os.Stdout)
	case "hash-secret":
		return runHashSecret(args[1:], os.Stdout)
	case "version":
		fmt.Println(AppVersion)
		return nil
	case "help", "-h", "--help":
		fmt.Print(usage)
		return nil
	}
	return fmt.Errorf("unknown command: %s", args[0])
}
