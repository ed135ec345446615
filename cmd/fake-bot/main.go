// ABOUTME: Minimal fake response service for local and end-to-end testing; answers POST /chat
// ABOUTME: Usage: fake-bot [-addr localhost:8080] [-delay 200ms] [-fail 0]

package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/2389/botdesk/internal/client"
)

func main() {
	addr := flag.String("addr", "localhost:8080", "HTTP listen address")
	delay := flag.Duration("delay", 200*time.Millisecond, "Delay before each reply")
	fail := flag.Int("fail", 0, "Answer every request with this HTTP status instead of a reply")
	flag.Parse()

	if err := run(*addr, *delay, *fail); err != nil {
		log.Fatal(err)
	}
}

func run(addr string, delay time.Duration, fail int) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	srv := &http.Server{
		Addr:              addr,
		Handler:           newHandler(delay, fail),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		_ = srv.Shutdown(shutdownCtx)
	}()

	fmt.Fprintf(os.Stderr, "fake-bot listening on http://%s/chat\n", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serving: %w", err)
	}
	return nil
}

func newHandler(delay time.Duration, fail int) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /chat", func(w http.ResponseWriter, r *http.Request) {
		var req client.ChatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
			return
		}

		log.Printf("received message (history %d): %s", len(req.History), req.Message)

		if fail != 0 {
			writeJSON(w, fail, map[string]string{"error": "configured to fail"})
			return
		}

		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-r.Context().Done():
				return
			}
		}

		writeJSON(w, http.StatusOK, map[string]string{"response": echoReply(req)})
	})
	return mux
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func echoReply(req client.ChatRequest) string {
	var b strings.Builder

	lower := strings.ToLower(req.Message)
	if strings.Contains(lower, "list") || strings.Contains(lower, "bullet") {
		b.WriteString("**Here is a list:**\n* First item\n* Second item with `code`\n* Third item")
	} else {
		fmt.Fprintf(&b, "**You said:** %s\n\nI am a _fake_ bot answering turn %d.", req.Message, len(req.History)/2+1)
	}

	if req.Product != "" {
		fmt.Fprintf(&b, "\n\nYour product: %s", req.Product)
	}
	if req.FileContent != nil {
		if data, err := base64.StdEncoding.DecodeString(*req.FileContent); err == nil {
			fmt.Fprintf(&b, "\n\nAttachment received (%s).", humanize.IBytes(uint64(len(data))))
		}
	}
	return b.String()
}
