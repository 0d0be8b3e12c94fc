// Command sweep is a minimal CLI driver for the sweep-go client: it
// reads items from standard input (or a file), shows them in the
// sweeper subprocess, and prints whatever the user selects (spec.md
// §6 "CLI surface of the client library").
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	flags "github.com/jessevdk/go-flags"
	"github.com/mattn/go-isatty"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aslpavel/sweep-go/internal/buildinfo"
	"github.com/aslpavel/sweep-go/internal/metrics"
	"github.com/aslpavel/sweep-go/internal/view"
	"github.com/aslpavel/sweep-go/sweep"
)

type options struct {
	Prompt         string `long:"prompt" description:"prompt label" default:"INPUT"`
	PromptIcon     string `long:"prompt-icon" description:"prompt icon, as JSON or a raw SVG path"`
	Query          string `long:"query" description:"initial filter query"`
	Nth            string `long:"nth" description:"fields to match against"`
	Delimiter      string `long:"delimiter" description:"input field delimiter"`
	Theme          string `long:"theme" description:"sweeper theme name"`
	Scorer         string `long:"scorer" description:"fuzzy scorer name"`
	TTY            string `long:"tty" description:"tty device path for the sweeper UI"`
	Sweep          string `long:"sweep" description:"sweeper command" default:"sweep"`
	JSON           bool   `long:"json" description:"read and print items as JSON instead of plain lines"`
	NoMatch        string `long:"no-match" description:"what Enter does with no match: nothing|input" default:"nothing"`
	KeepOrder      bool   `long:"keep-order" description:"keep input order instead of sorting by score"`
	Input          string `long:"input" description:"read items from this file instead of stdin"`
	TmpSocket      bool   `long:"tmp-socket" description:"use a filesystem rendezvous socket instead of an inherited pair"`
	Log            string `long:"log" description:"sweeper log file path"`
	FooterMarkdown string `long:"footer-markdown" description:"footer text, rendered from markdown instead of plain text"`
	Config         string `long:"config" description:"defaults YAML file path (overrides the default search order)"`
	MetricsAddr    string `long:"metrics-addr" description:"serve Prometheus metrics on this address (e.g. :9090) instead of disabling instrumentation"`
	Version        bool   `long:"version" description:"print version and exit"`
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "sweep:", err)
		os.Exit(1)
	}
}

func run() error {
	var opts options
	if _, err := flags.Parse(&opts); err != nil {
		if flags.WroteHelp(err) {
			return nil
		}
		return err
	}

	if opts.Version {
		fmt.Println(buildinfo.String())
		return nil
	}

	var collector *metrics.Collector
	if opts.MetricsAddr != "" {
		reg := prometheus.NewRegistry()
		collector = metrics.New(reg)
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		srv := &http.Server{Addr: opts.MetricsAddr, Handler: mux}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				fmt.Fprintln(os.Stderr, "sweep: metrics server:", err)
			}
		}()
	}

	def, err := loadDefaults(opts.Config)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if opts.Theme == "" {
		opts.Theme = def.Theme
	}
	if opts.Scorer == "" {
		opts.Scorer = def.Scorer
	}

	items, err := readItems(opts)
	if err != nil {
		return fmt.Errorf("read items: %w", err)
	}

	var promptIcon *view.Icon
	if opts.PromptIcon != "" {
		promptIcon, err = view.ParseIcon(opts.PromptIcon)
		if err != nil {
			return fmt.Errorf("parse prompt icon: %w", err)
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	client, err := sweep.Open(ctx, sweep.Config{
		Sweep:      []string{opts.Sweep},
		Prompt:     opts.Prompt,
		PromptIcon: promptIcon,
		Query:      opts.Query,
		Nth:        opts.Nth,
		Delimiter:  opts.Delimiter,
		Theme:      opts.Theme,
		Scorer:     opts.Scorer,
		TTY:        opts.TTY,
		Log:        opts.Log,
		KeepOrder:  opts.KeepOrder,
		NoMatch:    sweep.NoMatch(opts.NoMatch),
		Layout:     def.Layout,
		TmpSocket:  opts.TmpSocket,
		Metrics:    collector,
	})
	if err != nil {
		return fmt.Errorf("open sweeper: %w", err)
	}
	defer client.Terminate()

	if opts.FooterMarkdown != "" {
		footer := view.MarkdownToText(opts.FooterMarkdown)
		if err := client.FooterSet(ctx, "", footer); err != nil {
			return fmt.Errorf("set footer: %w", err)
		}
	}

	if err := client.ItemsExtend(ctx, "", items); err != nil {
		return fmt.Errorf("upload items: %w", err)
	}

	var selected []any
	for ev := range client.Events() {
		if ev.Select != nil {
			selected = ev.Select.Items
			break
		}
	}

	printSelection(os.Stdout, selected, opts.JSON)
	if isatty.IsTerminal(os.Stdout.Fd()) {
		fmt.Fprintf(os.Stderr, "sweep: %d item(s) selected\n", len(selected))
	}
	return nil
}

func readItems(opts options) ([]any, error) {
	var r io.Reader = os.Stdin
	if opts.Input != "" {
		f, err := os.Open(opts.Input)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}

	if opts.JSON {
		var items []any
		dec := json.NewDecoder(r)
		for {
			var item any
			if err := dec.Decode(&item); err != nil {
				if err == io.EOF {
					break
				}
				return nil, err
			}
			items = append(items, item)
		}
		return items, nil
	}

	var items []any
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		items = append(items, line)
	}
	return items, scanner.Err()
}

// printSelection prints each selected item either as plain text (bare
// strings verbatim, anything else JSON-encoded) or as JSON lines when
// asJSON is set.
func printSelection(w io.Writer, items []any, asJSON bool) {
	if asJSON {
		enc := json.NewEncoder(w)
		for _, item := range items {
			_ = enc.Encode(item)
		}
		return
	}
	for _, item := range items {
		if s, ok := item.(string); ok {
			fmt.Fprintln(w, s)
			continue
		}
		data, _ := json.Marshal(item)
		fmt.Fprintln(w, string(data))
	}
}
