// ABOUTME: One-shot subcommands: list, show, export, profile and init
// ABOUTME: Each opens the runtime, does its work against the stores and exits

package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"

	"github.com/2389/botdesk/internal/config"
	"github.com/2389/botdesk/internal/export"
	"github.com/2389/botdesk/internal/store"
)

func runList(ctx context.Context, _ []string) error {
	rt, err := openRuntime()
	if err != nil {
		return err
	}
	defer rt.Close()

	conversations, _ := rt.stores()
	printConversations(os.Stdout, conversations.ListAll(ctx), "")
	return nil
}

func runShow(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: botdesk show <id>")
	}

	rt, err := openRuntime()
	if err != nil {
		return err
	}
	defer rt.Close()

	conversations, _ := rt.stores()
	return showConversation(ctx, conversations, os.Stdout, args[0])
}

func showConversation(ctx context.Context, conversations *store.ConversationStore, w io.Writer, id string) error {
	conv, err := conversations.GetByID(ctx, id)
	if err != nil {
		return err
	}
	color.New(color.Bold).Fprintln(w, conv.Title)
	fmt.Fprintln(w, color.HiBlackString(conv.ID))
	fmt.Fprintln(w)
	printTranscript(w, conv.Messages)
	return nil
}

func runExport(ctx context.Context, args []string) error {
	flags := flag.NewFlagSet("export", flag.ExitOnError)
	output := flags.String("o", "", "Output file (default stdout)")
	noProfile := flags.Bool("no-profile", false, "Leave the business profile out of the page")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if flags.NArg() != 1 {
		return errors.New("usage: botdesk export [-o FILE] [-no-profile] <id>")
	}

	rt, err := openRuntime()
	if err != nil {
		return err
	}
	defer rt.Close()

	var w io.Writer = os.Stdout
	if *output != "" {
		f, err := os.Create(*output)
		if err != nil {
			return fmt.Errorf("creating output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	conversations, profiles := rt.stores()
	if *noProfile {
		profiles = nil
	}
	if err := exportConversation(ctx, conversations, profiles, w, flags.Arg(0)); err != nil {
		return err
	}
	if *output != "" {
		fmt.Fprintf(os.Stderr, "Exported to %s\n", *output)
	}
	return nil
}

// exportConversation writes conversation id as HTML. A nil profiles leaves
// the business profile out.
func exportConversation(ctx context.Context, conversations *store.ConversationStore, profiles *store.ProfileStore, w io.Writer, id string) error {
	conv, err := conversations.GetByID(ctx, id)
	if err != nil {
		return err
	}
	var opts export.Options
	if profiles != nil {
		if p, ok := profiles.Load(ctx); ok {
			opts.Profile = &p
		}
	}
	return export.HTML(w, conv, opts)
}

func runProfile(ctx context.Context, args []string) error {
	flags := flag.NewFlagSet("profile", flag.ExitOnError)
	reset := flags.Bool("reset", false, "Clear the stored profile")
	show := flags.Bool("show", false, "Print the stored profile without editing")
	if err := flags.Parse(args); err != nil {
		return err
	}

	rt, err := openRuntime()
	if err != nil {
		return err
	}
	defer rt.Close()

	_, profiles := rt.stores()
	switch {
	case *reset:
		if err := profiles.Reset(ctx); err != nil {
			return err
		}
		fmt.Println("Business profile cleared.")
		return nil
	case *show:
		printProfile(ctx, os.Stdout, profiles)
		return nil
	}

	return editProfile(ctx, profiles, bufio.NewReader(os.Stdin))
}

func printProfile(ctx context.Context, w io.Writer, profiles *store.ProfileStore) {
	p, ok := profiles.Load(ctx)
	if !ok {
		fmt.Fprintln(w, "No business profile saved.")
		return
	}
	for _, f := range profileFields(&p) {
		fmt.Fprintf(w, "%-18s %s\n", f.label+":", *f.value)
	}
}

type profileField struct {
	label string
	value *string
}

func profileFields(p *store.BusinessProfile) []profileField {
	return []profileField{
		{"Product", &p.Product},
		{"Target customer", &p.TargetCustomer},
		{"Geographic market", &p.GeographicMarket},
		{"Pricing strategy", &p.PricingStrategy},
		{"Main channels", &p.MainChannels},
	}
}

func editProfile(ctx context.Context, profiles *store.ProfileStore, reader *bufio.Reader) error {
	p, _ := profiles.Load(ctx)

	fmt.Println("Business profile")
	fmt.Println("================")
	fmt.Println()
	for _, f := range profileFields(&p) {
		*f.value = prompt(reader, f.label, *f.value)
	}

	if err := profiles.Save(ctx, p); err != nil {
		return err
	}
	fmt.Println("\nProfile saved.")
	return nil
}

func runInit() error {
	reader := bufio.NewReader(os.Stdin)

	fmt.Println("botdesk configuration setup")
	fmt.Println("===========================")
	fmt.Println()

	outputFile := prompt(reader, "Config file path", config.Path())

	if _, err := os.Stat(outputFile); err == nil {
		overwrite := prompt(reader, "File exists. Overwrite?", "no")
		if strings.ToLower(overwrite) != "yes" && strings.ToLower(overwrite) != "y" {
			fmt.Println("Aborted.")
			return nil
		}
	}

	var answers initAnswers

	fmt.Println("\n--- Remote Service ---")
	answers.BaseURL = prompt(reader, "Base URL", config.DefaultBaseURL)
	answers.Timeout = prompt(reader, "Request timeout", config.DefaultTimeout)

	fmt.Println("\n--- Storage ---")
	answers.Driver = prompt(reader, "Driver (sqlite/bolt/memory)", config.DefaultDriver)
	if answers.Driver != "memory" {
		answers.Path = prompt(reader, "Database path", config.DataPath(answers.Driver))
	}

	fmt.Println("\n--- Logging ---")
	answers.LogLevel = prompt(reader, "Log level (debug/info/warn/error)", "info")
	answers.LogFormat = prompt(reader, "Log format (text/json)", "text")

	if err := os.MkdirAll(filepath.Dir(outputFile), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(outputFile, []byte(answers.render()), 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	fmt.Printf("\nConfig written to %s\n", outputFile)
	fmt.Println("\nTo start chatting:")
	fmt.Println("  botdesk chat")

	return nil
}

type initAnswers struct {
	BaseURL   string
	Timeout   string
	Driver    string
	Path      string
	LogLevel  string
	LogFormat string
}

func (a initAnswers) render() string {
	var cfg strings.Builder
	cfg.WriteString("# botdesk configuration\n")
	cfg.WriteString("# Generated by botdesk init\n\n")

	cfg.WriteString("remote:\n")
	cfg.WriteString(fmt.Sprintf("  base_url: %q\n", a.BaseURL))
	cfg.WriteString(fmt.Sprintf("  timeout: %q\n", a.Timeout))
	cfg.WriteString("\n")

	cfg.WriteString("storage:\n")
	cfg.WriteString(fmt.Sprintf("  driver: %q\n", a.Driver))
	if a.Path != "" {
		cfg.WriteString(fmt.Sprintf("  path: %q\n", a.Path))
	}
	cfg.WriteString(fmt.Sprintf("  poll_interval: %q\n", config.DefaultPollInterval))
	cfg.WriteString("\n")

	cfg.WriteString("attachments:\n")
	cfg.WriteString("  allowed_extensions: [\".pdf\"]\n")
	cfg.WriteString(fmt.Sprintf("  max_bytes: %d\n", config.DefaultMaxBytes))
	cfg.WriteString("\n")

	cfg.WriteString("logging:\n")
	cfg.WriteString(fmt.Sprintf("  level: %q\n", a.LogLevel))
	cfg.WriteString(fmt.Sprintf("  format: %q\n", a.LogFormat))

	return cfg.String()
}

func prompt(reader *bufio.Reader, question, defaultVal string) string {
	if defaultVal != "" {
		fmt.Printf("%s [%s]: ", question, defaultVal)
	} else {
		fmt.Printf("%s: ", question)
	}

	input, err := reader.ReadString('\n')
	if err != nil && input == "" {
		// On EOF or error, return default
		fmt.Println()
		return defaultVal
	}
	input = strings.TrimSpace(input)

	if input == "" {
		return defaultVal
	}
	return input
}
