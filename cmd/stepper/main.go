package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/wippyai/wasm-hoststate/future"
	"github.com/wippyai/wasm-hoststate/hostmod"
)

type options struct {
	delay int
}

func main() {
	var (
		name        = flag.String("scenario", "all", "Scenario to run (a, b, c, guest, all)")
		delay       = flag.Int("delay", 2, "Suspensions per guest host call")
		list        = flag.Bool("list", false, "List scenarios and exit")
		verbose     = flag.Bool("v", false, "Log scheduler steps and host calls")
		interactive = flag.Bool("i", false, "Interactive mode with TUI")
	)
	flag.Parse()

	if *verbose {
		logger, err := zap.NewDevelopment()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer logger.Sync()
		future.SetLogger(logger.Named("future"))
		hostmod.SetLogger(logger.Named("hostmod"))
	}

	if *list {
		for _, s := range scenarios {
			fmt.Printf("  %-6s %s\n", s.name, s.desc)
		}
		return
	}

	opts := options{delay: *delay}

	if *interactive {
		if !term.IsTerminal(int(os.Stdin.Fd())) {
			fmt.Fprintln(os.Stderr, "Error: -i requires a terminal")
			os.Exit(1)
		}
		if err := runInteractive(opts); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := run(*name, opts); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(name string, opts options) error {
	ctx := context.Background()

	selected := scenarios
	if name != "all" {
		s, ok := lookupScenario(name)
		if !ok {
			return fmt.Errorf("unknown scenario %q (use -list)", name)
		}
		selected = []scenario{s}
	}

	heading := lipgloss.NewStyle().Bold(true)
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		heading = lipgloss.NewStyle()
	}

	for _, s := range selected {
		fmt.Println(heading.Render(fmt.Sprintf("scenario %s: %s", s.name, s.desc)))
		if err := s.run(ctx, os.Stdout, opts); err != nil {
			return fmt.Errorf("scenario %s: %w", s.name, err)
		}
		fmt.Println()
	}
	return nil
}
