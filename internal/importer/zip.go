package importer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/fruitsalade/fruitsalade/wsagent/internal/apperr"
	"github.com/fruitsalade/fruitsalade/wsagent/internal/entry"
	"github.com/fruitsalade/fruitsalade/wsagent/internal/storage"
)

// StoragePrefix marks a zip location as a key in the content backend.
const StoragePrefix = "storage:"

// ZipImporter extracts a zip archive into the project folder. The location
// is an http(s) URL, a content backend key prefixed with "storage:", or a
// local file path. Parameters: skipFirstLevel (bool), stripComponents
// (int).
type ZipImporter struct {
	Blobs  storage.Backend
	Client *http.Client
}

func (ZipImporter) Type() string { return "zip" }

func (z ZipImporter) Import(ctx context.Context, base *entry.FolderEntry, src Source, out LineConsumer) error {
	out.WriteLine("Fetching " + src.Location)
	rc, err := z.open(ctx, src.Location)
	if err != nil {
		return err
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return apperr.Wrap(apperr.ErrServer, err, "read archive "+src.Location)
	}
	out.WriteLine(fmt.Sprintf("Extracting %d bytes into %s", len(data), base.Path()))

	strip, _ := strconv.Atoi(src.Param("stripComponents", "0"))
	if err := base.Unzip(ctx, bytes.NewReader(data), src.BoolParam("skipFirstLevel", false), strip); err != nil {
		return err
	}
	out.WriteLine("Imported " + base.Path())
	return nil
}

func (z ZipImporter) open(ctx context.Context, location string) (io.ReadCloser, error) {
	switch {
	case strings.HasPrefix(location, "http://"), strings.HasPrefix(location, "https://"):
		client := z.Client
		if client == nil {
			client = &http.Client{Timeout: 5 * time.Minute}
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
		if err != nil {
			return nil, apperr.Wrap(apperr.ErrServer, err, "download "+location)
		}
		resp, err := client.Do(req)
		if err != nil {
			return nil, apperr.Wrap(apperr.ErrServer, err, "download "+location)
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return nil, apperr.Serverf("download %s: status %s", location, resp.Status)
		}
		return resp.Body, nil

	case strings.HasPrefix(location, StoragePrefix):
		if z.Blobs == nil {
			return nil, apperr.Serverf("no content backend for %s", location)
		}
		key := strings.TrimPrefix(location, StoragePrefix)
		rc, _, err := z.Blobs.GetObject(ctx, key)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, apperr.NotFoundf("archive %s not found", key)
			}
			return nil, apperr.Wrap(apperr.ErrServer, err, "open archive "+key)
		}
		return rc, nil

	default:
		f, err := os.Open(strings.TrimPrefix(location, "file://"))
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, apperr.NotFoundf("archive %s not found", location)
			}
			return nil, apperr.Wrap(apperr.ErrServer, err, "open archive "+location)
		}
		return f, nil
	}
}
