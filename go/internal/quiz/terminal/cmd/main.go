package main

import (
	"context"

	"github.com/alecthomas/kong"

	"github.com/mcdev12/quizsync/go/internal/quiz/terminal"
)

var (
	version = "dev"
	cli     struct {
		Host    terminal.HostCmd  `cmd:"" help:"Create a game and run it as game master"`
		Play    terminal.PlayCmd  `cmd:"" help:"Join a game as a player"`
		Token   terminal.TokenCmd `cmd:"" help:"Generate a gateway JWT token"`
		Debug   bool              `help:"Enable debug logging."`
		Version kong.VersionFlag
	}
)

func main() {
	ctx, cancel := terminal.WithInterrupt(context.Background())
	defer cancel()

	cmd := kong.Parse(&cli,
		kong.Name("quizctl"),
		kong.Description("Host or play a quiz from the terminal."),
		kong.Vars{
			"version": version,
		},
		kong.BindTo(ctx, (*context.Context)(nil)))
	err := cmd.Run(&terminal.Globals{Debug: cli.Debug, Version: version})
	cmd.FatalIfErrorf(err)
}
