package cli

import (
	"github.com/dmitrijs2005/audionotes/internal/client/notesclient"
	"github.com/spf13/cobra"
)

func (a *App) createCmd() *cobra.Command {
	var req notesclient.CreateRequest

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a note",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := a.client.CreateNote(cmd.Context(), req)
			if err != nil {
				return err
			}
			a.printf("Created note %s\n", n.ID)
			return nil
		},
	}
	cmd.Flags().StringVarP(&req.Title, "title", "t", "", "note title")
	cmd.Flags().StringSliceVar(&req.Tags, "tag", nil, "tag (repeatable or comma-separated)")
	cmd.Flags().StringVarP(&req.Notes, "body", "b", "", "free-text notes")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func (a *App) listCmd() *cobra.Command {
	var opts notesclient.ListOptions

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List notes, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			notes, err := a.client.ListNotes(cmd.Context(), opts)
			if err != nil {
				return err
			}
			return a.printNotes(notes)
		},
	}
	f := cmd.Flags()
	f.IntVar(&opts.Skip, "skip", 0, "number of notes to skip")
	f.IntVar(&opts.Limit, "limit", 100, "maximum number of notes (1-1000)")
	f.StringVar(&opts.Search, "search", "", "substring to match in title or notes")
	f.StringVar(&opts.Status, "status", "", "only notes with this status")
	f.StringSliceVar(&opts.Tags, "tag", nil, "only notes carrying all of these tags")
	return cmd
}

func (a *App) getCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Show a note",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := a.client.GetNote(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return a.printJSON(n)
		},
	}
}

func (a *App) updateCmd() *cobra.Command {
	var (
		title, body string
		tags        []string
	)

	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Change title, tags or notes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var req notesclient.UpdateRequest
			f := cmd.Flags()
			if f.Changed("title") {
				req.Title = &title
			}
			if f.Changed("body") {
				req.Notes = &body
			}
			if f.Changed("tag") {
				req.Tags = &tags
			}

			n, err := a.client.UpdateNote(cmd.Context(), args[0], req)
			if err != nil {
				return err
			}
			a.printf("Updated note %s (revision %d)\n", n.ID, n.Revision)
			return nil
		},
	}
	cmd.Flags().StringVarP(&title, "title", "t", "", "new title")
	cmd.Flags().StringVarP(&body, "body", "b", "", "new notes")
	cmd.Flags().StringSliceVar(&tags, "tag", nil, "replace tags (repeatable or comma-separated)")
	return cmd
}

func (a *App) deleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a note and its audio",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.client.DeleteNote(cmd.Context(), args[0]); err != nil {
				return err
			}
			a.printf("Deleted note %s\n", args[0])
			return nil
		},
	}
}

func (a *App) transcriptionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "transcription <id>",
		Short: "Print the transcription of a note",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := a.client.Transcription(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			a.printf("%s\n", text)
			return nil
		},
	}
}

func (a *App) summaryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "summary <id>",
		Short: "Print the summary of a note",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := a.client.Summary(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			a.printf("%s\n", text)
			return nil
		},
	}
}

func (a *App) resetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset <id>",
		Short: "Return a completed or failed note to pending",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := a.client.Reset(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			a.printf("Note %s is %s\n", n.ID, n.Status)
			return nil
		},
	}
}
