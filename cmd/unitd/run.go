package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"golang.org/x/term"

	"github.com/mattjoyce/unitd/internal/dispatch"
	"github.com/mattjoyce/unitd/internal/events"
	"github.com/mattjoyce/unitd/internal/log"
	"github.com/mattjoyce/unitd/internal/tty"
)

func runRun(args []string) int {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	record := fs.Bool("record", false, "Record unit history to state.path")
	hostKind := fs.String("host", "", "Override host.kind (exec, mem)")
	fs.Usage = func() {
		fmt.Fprintln(fs.Output(), "Usage: unitd run [flags] [-- command args...]")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 1
	}

	cfg, err := loadConfig(*configPath, true)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}
	if fs.NArg() > 0 {
		cfg.Session.RootArgs = fs.Args()
		cfg.Session.Prefix = filepath.Base(fs.Arg(0))
	}
	if *hostKind != "" {
		cfg.Host.Kind = *hostKind
	}

	// Unit output owns stdout; logs go to stderr as text.
	log.SetupTo(os.Stderr, cfg.Service.LogLevel, "text")
	logger := log.WithComponent("main")

	h, err := newHost(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stdinFD := int(os.Stdin.Fd())
	interactive := term.IsTerminal(stdinFD)

	hub := events.NewHub(256)
	exitCh := make(chan int, 1)
	display := tty.NewWriter(os.Stdout, interactive)
	sess := dispatch.New(sessionConfig(cfg, func(code int) { exitCh <- code }), h, display, hub, nil)

	if *record {
		_, stop, err := startJournal(ctx, cfg.State.Path, hub, sess.ID(), cfg.Session.Prefix)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			return 1
		}
		defer stop()
	}

	if interactive {
		state, err := term.MakeRaw(stdinFD)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to enter raw mode: %v\n", err)
			return 1
		}
		defer func() { _ = term.Restore(stdinFD, state) }()
	}

	go func() { _ = sess.Run(ctx) }()

	cols, rows := terminalSize(cfg.Session.Cols, cfg.Session.Rows)
	sess.Resize(cols, rows)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	winch := make(chan os.Signal, 1)
	signal.Notify(winch, syscall.SIGWINCH)
	defer signal.Stop(winch)
	go func() {
		for range winch {
			sess.Resize(terminalSize(cols, rows))
		}
	}()

	go pumpInput(os.Stdin, sess)

	select {
	case status := <-exitCh:
		logger.Debug("root unit finished", "status", status)
		return exitCode(status)
	case sig := <-sigCh:
		logger.Info("received signal, shutting down", "signal", sig)
		return 130
	}
}

// terminalSize returns stdout's size, or the fallback when stdout is not a
// terminal.
func terminalSize(fallbackCols, fallbackRows int) (int, int) {
	if w, h, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 0 && h > 0 {
		return w, h
	}
	return fallbackCols, fallbackRows
}

// pumpInput forwards raw terminal input to the foreground unit.
func pumpInput(r io.Reader, sess *dispatch.Session) {
	buf := make([]byte, 1024)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			sess.Keystroke(string(buf[:n]))
		}
		if err != nil {
			return
		}
	}
}
