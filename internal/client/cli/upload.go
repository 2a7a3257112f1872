package cli

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/dmitrijs2005/audionotes/internal/client/notesclient"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func (a *App) uploadCmd() *cobra.Command {
	var (
		chunkSize int
		useGRPC   bool
	)

	cmd := &cobra.Command{
		Use:   "upload <id> <file>",
		Short: "Upload an audio file to a note",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			noteID, path := args[0], args[1]

			f, err := os.Open(path)
			if err != nil {
				return err
			}
			defer f.Close()

			fi, err := f.Stat()
			if err != nil {
				return err
			}
			if fi.Size() == 0 {
				return errors.New("file is empty")
			}

			if cmd.Flags().Changed("chunk-size") {
				a.config.ChunkSize = chunkSize
				if a.client, err = notesclient.New(a.config); err != nil {
					return err
				}
			}

			total := uint64(fi.Size())
			onEvent := func(ev notesclient.UploadEvent) {
				if ev.Status == "progress" && ev.Progress != nil && ev.Received != nil {
					a.printf("\r%6.2f%%  %s / %s", *ev.Progress, humanize.IBytes(uint64(*ev.Received)), humanize.IBytes(total))
				}
			}

			upload := a.client.Upload
			if useGRPC {
				upload = a.client.UploadGRPC
			}
			res, err := upload(cmd.Context(), noteID, filepath.Base(path), f, fi.Size(), onEvent)
			a.printf("\n")
			if err != nil {
				return err
			}

			a.printf("%s\nkey: %s\n", res.Message, res.FileKey)
			return nil
		},
	}
	cmd.Flags().IntVar(&chunkSize, "chunk-size", 0, "bytes per chunk (default from config)")
	cmd.Flags().BoolVar(&useGRPC, "grpc", false, "upload over the gRPC stream instead of WebSocket")
	return cmd
}

func (a *App) downloadCmd() *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:   "download <id>",
		Short: "Download the audio of a note",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, n, err := a.client.Download(cmd.Context(), args[0], dir)
			if err != nil {
				return err
			}
			a.printf("Saved %s (%s)\n", path, humanize.IBytes(uint64(n)))
			return nil
		},
	}
	cmd.Flags().StringVarP(&dir, "output", "o", ".", "directory to save into")
	return cmd
}

func (a *App) statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "upload-status <id>",
		Short: "Show the latest upload session of a note",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := a.client.UploadStatus(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			a.printf("%s %.2f%% (%s / %s), updated %s",
				st.State, st.Progress,
				humanize.IBytes(uint64(st.Received)), humanize.IBytes(uint64(st.FileSize)),
				humanize.Time(st.UpdatedAt))
			if st.Stale {
				a.printf(" [stale]")
			}
			if st.Message != "" {
				a.printf(": %s", st.Message)
			}
			a.printf("\n")
			return nil
		},
	}
}
