// Command atmo serves current weather conditions with a tennis verdict over
// HTTP, or prints them as a card in the terminal.
package main

import (
	"github.com/alecthomas/kong"

	"github.com/kjstillabower/atmo/internal/config"
)

var version = "dev"

type Globals struct {
	Config  string           `help:"Config file. Defaults to config/$ENV_NAME.yaml." type:"path" short:"c"`
	Version kong.VersionFlag `help:"Print version and exit."`
}

func (g *Globals) loadConfig() (*config.Config, error) {
	if g.Config != "" {
		return config.LoadFile(g.Config)
	}
	return config.Load()
}

type cli struct {
	Globals

	Serve serveCmd `cmd:"" default:"1" help:"Run the HTTP service."`
	Now   nowCmd   `cmd:"" help:"Print current conditions."`
}

func main() {
	var c cli
	ctx := kong.Parse(&c,
		kong.Name("atmo"),
		kong.Description("Current conditions and a tennis verdict for where you are."),
		kong.UsageOnError(),
		kong.Vars{"version": version},
	)
	ctx.FatalIfErrorf(ctx.Run(&c.Globals))
}
