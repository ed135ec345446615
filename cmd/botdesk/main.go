// ABOUTME: Entry point for the botdesk terminal client
// ABOUTME: Dispatches subcommands for chatting, browsing history, exporting and profile editing

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
 _           _      _           _
| |__   ___ | |_ __| | ___  ___| | __
| '_ \ / _ \| __/ _' |/ _ \/ __| |/ /
| |_) | (_) | || (_| |  __/\__ \   <
|_.__/ \___/ \__\__,_|\___||___/_|\_\
`

func usage() {
	fmt.Println("Usage: botdesk <command>")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  chat                      Start an interactive chat (default)")
	fmt.Println("  list                      List stored conversations")
	fmt.Println("  show <id>                 Print a stored conversation")
	fmt.Println("  export <id> [-o FILE]     Write a conversation as an HTML page")
	fmt.Println("  profile [--reset]         Edit or clear the business profile")
	fmt.Println("  init                      Create a new config file interactively")
	fmt.Println("  version                   Print the version")
}

func main() {
	cmd := "chat"
	var args []string
	if len(os.Args) >= 2 {
		cmd = os.Args[1]
		args = os.Args[2:]
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch cmd {
	case "chat":
		err = runChat(ctx, args)
	case "list":
		err = runList(ctx, args)
	case "show":
		err = runShow(ctx, args)
	case "export":
		err = runExport(ctx, args)
	case "profile":
		err = runProfile(ctx, args)
	case "init":
		err = runInit()
	case "version", "--version":
		fmt.Println(version)
	case "help", "-h", "--help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		usage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
