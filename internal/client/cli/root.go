// Package cli implements the notesctl command tree.
package cli

import (
	"context"
	"io"

	"github.com/dmitrijs2005/audionotes/internal/client/config"
	"github.com/dmitrijs2005/audionotes/internal/client/notesclient"
	"github.com/spf13/cobra"
)

type App struct {
	config     *config.Config
	configPath string
	client     *notesclient.Client
	out        io.Writer
}

// NewRootCmd builds the notesctl command tree writing to out.
func NewRootCmd(out io.Writer) *cobra.Command {
	app := &App{config: &config.Config{}, out: out}
	app.config.LoadDefaults()

	root := &cobra.Command{
		Use:           "notesctl",
		Short:         "Command-line client for the audionotes server",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := app.config.Resolve(app.configPath, cmd.Root().PersistentFlags()); err != nil {
				return err
			}
			c, err := notesclient.New(app.config)
			if err != nil {
				return err
			}
			app.client = c
			return nil
		},
	}
	root.SetOut(out)
	root.SetErr(out)

	pf := root.PersistentFlags()
	pf.StringVarP(&app.configPath, "config", "c", "", "JSON or YAML config file")
	app.config.BindFlags(pf)

	root.AddCommand(
		app.createCmd(),
		app.listCmd(),
		app.getCmd(),
		app.updateCmd(),
		app.deleteCmd(),
		app.transcriptionCmd(),
		app.summaryCmd(),
		app.resetCmd(),
		app.statusCmd(),
		app.uploadCmd(),
		app.downloadCmd(),
	)
	return root
}

// Execute runs notesctl with args.
func Execute(ctx context.Context, out io.Writer, args []string) error {
	root := NewRootCmd(out)
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}
