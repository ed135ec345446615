// ABOUTME: Interactive chat REPL on top of one view
// ABOUTME: Lines are sent as turns; slash commands browse, attach, switch and edit the profile

package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/fatih/color"

	"github.com/2389/botdesk/internal/pipeline"
	"github.com/2389/botdesk/internal/store"
	"github.com/2389/botdesk/internal/view"
)

func runChat(ctx context.Context, args []string) error {
	flags := flag.NewFlagSet("chat", flag.ExitOnError)
	resume := flags.String("c", "", "Conversation ID to resume")
	quiet := flags.Bool("q", false, "Skip the banner")
	if err := flags.Parse(args); err != nil {
		return err
	}

	rt, err := openRuntime()
	if err != nil {
		return err
	}
	defer rt.Close()

	if !*quiet {
		printStartup(os.Stdout, rt)
	}

	rt.watch(ctx)

	out := &syncWriter{w: os.Stdout}
	s, err := newChatSession(ctx, rt, os.Stdin, out)
	if err != nil {
		return err
	}
	defer s.close()

	if *resume != "" {
		s.open(ctx, *resume)
	}
	return s.run(ctx)
}

func printStartup(w io.Writer, rt *runtime) {
	cyan := color.New(color.FgCyan)
	cyan.Fprint(w, banner)

	gray := color.New(color.FgHiBlack)
	gray.Fprintf(w, "    version: %s\n\n", version)

	green := color.New(color.FgGreen)
	green.Fprint(w, "    ▶ ")
	fmt.Fprintf(w, "Config:    %s\n", rt.configPath)
	green.Fprint(w, "    ▶ ")
	fmt.Fprintf(w, "Storage:   %s %s\n", rt.cfg.Storage.Driver, rt.cfg.Storage.Path)
	green.Fprint(w, "    ▶ ")
	fmt.Fprintf(w, "Remote:    %s\n", rt.remote.BaseURL())
	fmt.Fprintln(w)
}

// syncWriter serialises writes from the REPL and from notice callbacks.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}

type chatSession struct {
	view  *view.View
	out   io.Writer
	lines <-chan string
}

// newChatSession opens a view and starts reading lines from in.
func newChatSession(ctx context.Context, rt *runtime, in io.Reader, out io.Writer) (*chatSession, error) {
	v, err := rt.openView(ctx, func(n pipeline.Notice) {
		printNotice(out, n)
	})
	if err != nil {
		return nil, fmt.Errorf("opening view: %w", err)
	}

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	s := &chatSession{view: v, out: out, lines: lines}
	go s.follow(ctx)
	return s, nil
}

func (s *chatSession) close() {
	s.view.Close()
}

// follow reports conversation list changes made by other windows.
func (s *chatSession) follow(ctx context.Context) {
	known := len(s.view.Snapshot().Conversations)
	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-s.view.Updates():
			if !ok {
				return
			}
			if n := len(snap.Conversations); n != known {
				known = n
				fmt.Fprintln(s.out, color.HiBlackString("[sync] %d conversations stored", n))
			}
		}
	}
}

// readLine returns the next input line, or io.EOF when input ends or ctx is done.
func (s *chatSession) readLine(ctx context.Context) (string, error) {
	select {
	case <-ctx.Done():
		return "", io.EOF
	case line, ok := <-s.lines:
		if !ok {
			return "", io.EOF
		}
		return line, nil
	}
}

// ask prompts with question and returns the answer, or defaultVal when the
// answer is blank or input has ended.
func (s *chatSession) ask(ctx context.Context, question, defaultVal string) string {
	if defaultVal != "" {
		fmt.Fprintf(s.out, "%s [%s]: ", question, defaultVal)
	} else {
		fmt.Fprintf(s.out, "%s: ", question)
	}
	line, err := s.readLine(ctx)
	if err != nil {
		fmt.Fprintln(s.out)
		return defaultVal
	}
	if line = strings.TrimSpace(line); line == "" {
		return defaultVal
	}
	return line
}

func (s *chatSession) run(ctx context.Context) error {
	if len(s.view.Messages()) == 0 {
		s.printSuggestions()
	}

	for {
		fmt.Fprint(s.out, "> ")

		input, err := s.readLine(ctx)
		if errors.Is(err, io.EOF) {
			fmt.Fprintln(s.out, "\nGoodbye!")
			return nil
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}

		cmd, arg, _ := strings.Cut(input, " ")
		arg = strings.TrimSpace(arg)

		switch cmd {
		case "/quit", "/exit", "/q":
			fmt.Fprintln(s.out, "Goodbye!")
			return nil
		case "/help":
			s.printHelp()
		case "/new":
			s.newConversation()
		case "/list":
			printConversations(s.out, s.view.Conversations(ctx), s.view.Snapshot().CurrentConversationID)
		case "/open":
			s.open(ctx, arg)
		case "/history":
			printTranscript(s.out, s.view.Messages())
		case "/attach":
			if arg == "" {
				fmt.Fprintln(s.out, "Usage: /attach <path>")
				break
			}
			s.attach(arg)
		case "/detach":
			s.view.OnDetach()
			fmt.Fprintln(s.out, "Attachment dropped")
		case "/profile":
			s.editProfile(ctx)
		case "/suggest":
			if arg == "" {
				s.printSuggestions()
				break
			}
			s.sendSuggestion(ctx, arg)
		default:
			if strings.HasPrefix(cmd, "/") {
				fmt.Fprintf(s.out, "Unknown command %s. Type /help for commands.\n", cmd)
				break
			}
			s.send(ctx, input)
		}
		fmt.Fprintln(s.out)
	}
}

// send starts a turn and blocks until its reply is in.
func (s *chatSession) send(ctx context.Context, text string) {
	s.view.OnDraft(text)
	turn, err := s.view.OnSend(ctx, text)
	if err != nil {
		s.report(err)
		return
	}
	if turn == nil {
		return
	}

	fmt.Fprintln(s.out, color.HiBlackString("Bot is typing..."))

	select {
	case <-turn.Done():
	case <-ctx.Done():
		return
	}

	if w := turn.Warning(); w != nil {
		fmt.Fprintln(s.out, color.YellowString("[warning] %v", w))
	}
	if turn.Discarded() {
		return
	}
	msgs := s.view.Messages()
	if len(msgs) > 0 && !msgs[len(msgs)-1].IsUser {
		printMessage(s.out, msgs[len(msgs)-1])
	}
}

// newConversation shows the starter prompts only once the switch happened.
func (s *chatSession) newConversation() {
	if err := s.view.OnNewConversation(); err != nil {
		s.report(err)
		return
	}
	s.printSuggestions()
}

// attach reports read failures itself; rejected files already raised a notice.
func (s *chatSession) attach(path string) {
	err := s.view.OnAttach(path)
	var pathErr *fs.PathError
	switch {
	case err == nil:
		fmt.Fprintf(s.out, "Attached %s\n", filepath.Base(path))
	case errors.As(err, &pathErr):
		s.report(err)
	}
}

func (s *chatSession) sendSuggestion(ctx context.Context, arg string) {
	suggestions := s.view.Suggestions()
	if len(suggestions) == 0 {
		fmt.Fprintln(s.out, "Suggestions are only offered for a new conversation")
		return
	}
	n, err := strconv.Atoi(arg)
	if err != nil || n < 1 || n > len(suggestions) {
		fmt.Fprintf(s.out, "Pick a suggestion between 1 and %d\n", len(suggestions))
		return
	}
	text := suggestions[n-1]
	printMessage(s.out, store.Message{Text: text, IsUser: true})
	s.send(ctx, text)
}

// open selects a conversation by ID or by its 1-based position in /list.
func (s *chatSession) open(ctx context.Context, arg string) {
	if arg == "" {
		fmt.Fprintln(s.out, "Usage: /open <id|number>")
		return
	}
	id := arg
	if n, err := strconv.Atoi(arg); err == nil {
		convs := s.view.Conversations(ctx)
		if n < 1 || n > len(convs) {
			fmt.Fprintf(s.out, "No conversation #%d\n", n)
			return
		}
		id = convs[n-1].ID
	}
	if err := s.view.OnSelectConversation(ctx, id); err != nil {
		s.report(err)
		return
	}
	printTranscript(s.out, s.view.Messages())
}

func (s *chatSession) editProfile(ctx context.Context) {
	p, _ := s.view.Profile(ctx)
	fmt.Fprintln(s.out, "--- Business Profile (enter keeps the current value) ---")
	for _, f := range profileFields(&p) {
		*f.value = s.ask(ctx, f.label, *f.value)
	}
	// Failures arrive as notices.
	_ = s.view.OnSubmitProfile(ctx, p)
}

func (s *chatSession) printSuggestions() {
	suggestions := s.view.Suggestions()
	if len(suggestions) == 0 {
		return
	}
	fmt.Fprintln(s.out, "Try one of these (/suggest <n>):")
	for i, text := range suggestions {
		fmt.Fprintf(s.out, "  %d. %s\n", i+1, text)
	}
}

// report prints errors that no notice has already covered.
func (s *chatSession) report(err error) {
	switch {
	case err == nil:
	case errors.Is(err, pipeline.ErrTurnInFlight):
		fmt.Fprintln(s.out, "[error] wait for the current reply first")
	default:
		fmt.Fprintf(s.out, "[error] %v\n", err)
	}
}

func (s *chatSession) printHelp() {
	fmt.Fprintln(s.out, "Commands:")
	fmt.Fprintln(s.out, "  /new           Start a new conversation")
	fmt.Fprintln(s.out, "  /list          List stored conversations")
	fmt.Fprintln(s.out, "  /open <id|n>   Continue a stored conversation")
	fmt.Fprintln(s.out, "  /history       Reprint the current conversation")
	fmt.Fprintln(s.out, "  /attach <path> Attach a file to the next message")
	fmt.Fprintln(s.out, "  /detach        Drop the pending attachment")
	fmt.Fprintln(s.out, "  /profile       Edit the business profile")
	fmt.Fprintln(s.out, "  /suggest [n]   Show or send a starter prompt")
	fmt.Fprintln(s.out, "  /help          Show this help")
	fmt.Fprintln(s.out, "  /quit          Exit")
}
