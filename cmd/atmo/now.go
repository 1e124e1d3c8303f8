package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"

	"github.com/kjstillabower/atmo/internal/observability"
	"github.com/kjstillabower/atmo/internal/service"
	"github.com/kjstillabower/atmo/internal/theme"
)

type nowCmd struct {
	Query    string `help:"Search a place by name instead of locating." short:"q"`
	Watch    bool   `help:"Keep the card on screen, ticking every second." short:"w"`
	Color    bool   `help:"Colorize output." default:"true" negatable:""`
	Contrast bool   `help:"Use the high-contrast palette."`
}

func (c *nowCmd) Run(g *Globals) error {
	logger, err := observability.NewConsoleLogger()
	if err != nil {
		return err
	}
	defer func() { _ = observability.FlushTelemetry(context.Background(), logger) }()

	cfg, err := g.loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// No client to ask in a terminal; build swaps in the fixed location when configured.
	comp, err := build(ctx, cfg, logger, nil)
	if err != nil {
		return err
	}
	defer comp.Close(logger)

	return runNow(ctx, os.Stdout, comp.service, nowOptions{
		Request: service.Request{Query: c.Query, HighContrast: c.Contrast},
		Watch:   c.Watch,
		Render:  theme.RenderOptions{Color: c.Color && !color.NoColor},
		Tick:    time.Second,
	})
}

// viewer is the part of the service the terminal loop uses.
type viewer interface {
	Current(ctx context.Context, req service.Request) service.Snapshot
	Refresh(ctx context.Context, req service.Request) service.Snapshot
	View(highContrast bool) service.Snapshot
}

type nowOptions struct {
	Request service.Request
	Watch   bool
	Render  theme.RenderOptions
	// Tick redraws the clock and day/night state. It never refetches.
	Tick time.Duration
}

const clearScreen = "\033[H\033[2J"

// runNow renders one card, or in watch mode keeps re-rendering until ctx is done.
func runNow(ctx context.Context, out io.Writer, v viewer, opts nowOptions) error {
	var snap service.Snapshot
	if opts.Request.Query != "" {
		snap = v.Refresh(ctx, opts.Request)
	} else {
		snap = v.Current(ctx, opts.Request)
	}
	if !opts.Watch {
		return theme.Render(out, snap.Card(), opts.Render)
	}

	if opts.Tick <= 0 {
		opts.Tick = time.Second
	}
	tick := time.NewTicker(opts.Tick)
	defer tick.Stop()

	for {
		if _, err := io.WriteString(out, clearScreen); err != nil {
			return err
		}
		if err := theme.Render(out, snap.Card(), opts.Render); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return nil
		case <-tick.C:
		}
		snap = v.View(opts.Request.HighContrast)
	}
}
