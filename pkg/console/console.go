// Package console provides typed stand-ins for the assistant's audio
// surfaces: the wake word, command capture, and speech output all run
// over the terminal.
package console

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/chzyer/readline"

	"github.com/sentinelai/sentinel/pkg/logger"
)

// Console implements conversation.WakeTrigger, CommandSource and
// SpeechSink over a readline terminal. A line starting with the wake
// word wakes the assistant; any text after the wake word on the same
// line is queued as the first command.
type Console struct {
	rl       *readline.Instance
	wakeWord string

	lines   chan string
	pending chan string

	// OnEOF is called once when stdin closes, so the host can request
	// a clean shutdown.
	OnEOF func()

	eofOnce   sync.Once
	closeOnce sync.Once
}

func New(wakeWord string) (*Console, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "you: ",
		HistoryFile:     filepath.Join(os.TempDir(), ".sentinel_history"),
		HistoryLimit:    100,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, fmt.Errorf("init readline: %w", err)
	}

	c := &Console{
		rl:       rl,
		wakeWord: strings.ToLower(strings.TrimSpace(wakeWord)),
		lines:    make(chan string, 8),
		pending:  make(chan string, 1),
	}
	go c.readLines()
	return c, nil
}

func (c *Console) readLines() {
	defer close(c.lines)
	for {
		line, err := c.rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) || errors.Is(err, io.EOF) {
				c.eofOnce.Do(func() {
					if c.OnEOF != nil {
						c.OnEOF()
					}
				})
				return
			}
			logger.WarnCF("console", "read failed", map[string]interface{}{"error": err.Error()})
			continue
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		c.lines <- line
	}
}

// WaitForWake blocks until a typed line contains the wake word.
func (c *Console) WaitForWake(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-c.lines:
			if !ok {
				<-ctx.Done()
				return ctx.Err()
			}
			rest, woke := c.matchWake(line)
			if !woke {
				continue
			}
			if rest != "" {
				// Queue the remainder as the first command.
				select {
				case c.pending <- rest:
				default:
				}
			}
			fmt.Println("(listening)")
			return nil
		}
	}
}

func (c *Console) matchWake(line string) (string, bool) {
	lower := strings.ToLower(line)
	idx := strings.Index(lower, c.wakeWord)
	if idx < 0 {
		return "", false
	}
	return strings.TrimSpace(line[idx+len(c.wakeWord):]), true
}

// Capture returns the next typed line, or "" when the timeout passes
// with nothing usable.
func (c *Console) Capture(ctx context.Context, timeout time.Duration) (string, error) {
	select {
	case text := <-c.pending:
		return text, nil
	default:
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-timer.C:
		return "", nil
	case line, ok := <-c.lines:
		if !ok {
			return "", io.EOF
		}
		return line, nil
	}
}

// Speak prints the assistant's line to the terminal.
func (c *Console) Speak(_ context.Context, text string) error {
	_, err := fmt.Fprintf(os.Stdout, "\nsentinel: %s\n\n", text)
	return err
}

func (c *Console) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.rl.Close()
	})
	return err
}
