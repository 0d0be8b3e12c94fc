// Package sweep is a typed client for the sweeper fuzzy-finder
// subprocess: it spawns the process, drives it over the JSON-RPC peer
// in internal/rpc, and shields callers from wire details behind a
// window/item/view model (spec.md §4.6).
package sweep

import (
	"fmt"
	"log/slog"

	"github.com/aslpavel/sweep-go/internal/metrics"
	"github.com/aslpavel/sweep-go/internal/view"
)

// NoMatch controls what Enter does when nothing in the list matches
// the current query.
type NoMatch string

const (
	NoMatchNothing NoMatch = "nothing"
	NoMatchInput   NoMatch = "input"
)

// FieldResolver produces a Field on demand when the sweeper reports a
// field_missing notification for a ref it doesn't recognize.
type FieldResolver func(ref int) (*view.Field, error)

// ViewResolver produces a View on demand when the sweeper reports a
// view_missing notification for a ref it doesn't recognize.
type ViewResolver func(ref int) (view.View, error)

// Config enumerates the sweeper CLI options the client recognizes,
// one-to-one with spec.md §6's spawn invocation flags.
type Config struct {
	// Sweep is the sweeper command and leading args; defaults to
	// []string{"sweep"}.
	Sweep []string

	Prompt      string
	PromptIcon  *view.Icon
	Preview     string
	Query       string
	Nth         string
	Delimiter   string
	Theme       string
	Scorer      string
	TTY         string
	Log         string
	Title       string
	KeepOrder   bool
	NoMatch     NoMatch
	Layout      string
	TmpSocket   bool
	WindowUID   string

	FieldResolver FieldResolver
	ViewResolver  ViewResolver

	Logger  *slog.Logger
	Metrics *metrics.Collector
}

// argv builds the sweeper's full command line, before --rpc and
// --io-socket are appended by internal/transport.
func (c Config) argv() []string {
	sweep := c.Sweep
	if len(sweep) == 0 {
		sweep = []string{"sweep"}
	}

	args := append([]string{}, sweep...)
	prompt := c.Prompt
	if prompt == "" {
		prompt = "INPUT"
	}
	args = append(args, "--prompt", prompt)
	if c.Query != "" {
		args = append(args, "--query", c.Query)
	}
	if c.Nth != "" {
		args = append(args, "--nth", c.Nth)
	}
	if c.Delimiter != "" {
		args = append(args, "--delimiter", c.Delimiter)
	}
	if c.Theme != "" {
		args = append(args, "--theme", c.Theme)
	}
	if c.Scorer != "" {
		args = append(args, "--scorer", c.Scorer)
	}
	if c.TTY != "" {
		args = append(args, "--tty", c.TTY)
	}
	if c.Log != "" {
		args = append(args, "--log", c.Log)
	}
	if c.Title != "" {
		args = append(args, "--title", c.Title)
	}
	if c.KeepOrder {
		args = append(args, "--keep-order")
	}
	if c.NoMatch != "" {
		args = append(args, "--no-match", string(c.NoMatch))
	}
	if c.Layout != "" {
		args = append(args, "--layout", c.Layout)
	}
	if c.Preview != "" {
		args = append(args, "--preview", c.Preview)
	}
	if c.WindowUID != "" {
		args = append(args, "--window-uid", c.WindowUID)
	}
	return args
}

func (c Config) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}

// defaultWindow is the sweeper's distinguished default window id
// (spec.md §3).
const defaultWindow = "default"

func windowOrDefault(uid string) string {
	if uid == "" {
		return defaultWindow
	}
	return uid
}

func errIndexRange(index, length int) error {
	return fmt.Errorf("sweep: index %d out of range [0,%d)", index, length)
}
