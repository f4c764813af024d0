package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/UniMusic-app/unimusic/internal/music"
)

// terminalPrompter asks the user on the terminal how to handle a service
// error. An unreadable terminal answers ignore, so headless runs degrade
// instead of hanging a retry loop.
type terminalPrompter struct {
	output io.Writer

	mu     sync.Mutex
	input  io.Reader
	reader *bufio.Reader
}

func (p *terminalPrompter) PromptError(service string, unrecoverable bool, err error) music.PromptChoice {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.reader == nil {
		p.reader = bufio.NewReader(p.input)
	}

	kind := "error"
	if unrecoverable {
		kind = "unrecoverable error"
	}
	fmt.Fprintf(p.output, "\n%s reported an %s: %v\n", service, kind, err)
	fmt.Fprintf(p.output, "[r]etry, [i]gnore or [d]isable the service? ")

	line, readErr := p.reader.ReadString('\n')
	if readErr != nil {
		return music.ChoiceIgnore
	}

	switch strings.ToLower(strings.TrimSpace(line)) {
	case "r", "retry":
		return music.ChoiceRetry
	case "d", "disable":
		return music.ChoiceDisable
	default:
		return music.ChoiceIgnore
	}
}

// terminalCodeFlow obtains an oauth2 authorization code by printing the
// authorization URL and reading the pasted code back.
type terminalCodeFlow struct {
	output io.Writer

	mu     sync.Mutex
	input  io.Reader
	reader *bufio.Reader
}

func (f *terminalCodeFlow) RequestCode(ctx context.Context, authURL string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.reader == nil {
		f.reader = bufio.NewReader(f.input)
	}

	fmt.Fprintf(f.output, "Open this URL in your browser and authorize the application:\n\n  %s\n\n", authURL)
	fmt.Fprintf(f.output, "Paste the authorization code here: ")

	type read struct {
		line string
		err  error
	}
	done := make(chan read, 1)
	go func() {
		line, err := f.reader.ReadString('\n')
		done <- read{line: line, err: err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			return "", r.err
		}
		code := strings.TrimSpace(r.line)
		if code == "" {
			return "", fmt.Errorf("empty authorization code")
		}
		return code, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}
