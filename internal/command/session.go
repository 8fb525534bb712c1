package command

import (
	"github.com/urfave/cli/v2"

	"github.com/rickgao/wsclient/internal/repl"
	"github.com/rickgao/wsclient/internal/version"
)

// replAction runs the interactive session on the app's reader and writer.
func replAction(c *cli.Context) error {
	flags, cfg, logger, err := setup(c)
	if err != nil {
		return err
	}

	printer := repl.NewPrinter(c.App.Writer)

	cl, err := newClient(c.Context, cfg, flags.MetricsAddr, printer, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := cl.close(); err != nil {
			logger.Error("shutdown failed", "error", err)
		}
	}()

	printer.Printf("%s %s, type /help for commands", version.Name, version.Version)

	return repl.New(cl.manager, printer, cfg.Connection.Address, logger).Run(c.Context, c.App.Reader)
}
