package notesclient

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/dmitrijs2005/audionotes/internal/filex"
	"github.com/dmitrijs2005/audionotes/internal/netx"
)

// downloadClient has no overall timeout; downloads are bounded by ctx.
var downloadClient = &http.Client{}

// Download saves the note's audio into dir under its original filename,
// adding a numeric suffix instead of overwriting. It returns the path and
// the number of bytes written.
func (c *Client) Download(ctx context.Context, noteID, dir string) (string, int64, error) {
	n, err := c.GetNote(ctx, noteID)
	if err != nil {
		return "", 0, err
	}
	link, err := c.AudioURL(ctx, noteID)
	if err != nil {
		return "", 0, err
	}

	dir, err = filex.EnsureDir(dir)
	if err != nil {
		return "", 0, err
	}
	path, err := filex.UniquePath(dir, n.AudioFilename)
	if err != nil {
		return "", 0, err
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o640)
	if err != nil {
		return "", 0, err
	}

	written, err := netx.DownloadPresignedURL(ctx, downloadClient, link.URL, f)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(path)
		return "", 0, fmt.Errorf("download %s: %w", noteID, err)
	}
	return path, written, nil
}
