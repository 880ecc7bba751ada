package cli

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/ozolins/attachup/internal/client/journal"
)

// upload reads the file at path, journals a pending record and transfers it
// with the requested protocol generation.
func (a *App) upload(ctx context.Context, path, protocol string) {
	if !a.isLoggedIn() {
		fmt.Fprintln(a.out, "Log in first.")
		return
	}

	source, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintln(a.out, "Error reading file:", err)
		return
	}

	rec := &journal.Record{ID: uuid.NewString(), LocalPath: path, Protocol: protocol}
	if err := journal.ReplaceFailed(ctx, a.db, rec); err != nil {
		fmt.Fprintln(a.out, "Error journaling upload:", err)
		return
	}

	progress := func(fraction float64) {
		fmt.Fprintf(a.out, "\rUploading %s... %3.0f%%", path, fraction*100)
	}

	switch protocol {
	case "v2":
		out, err := a.uploader.UploadV2(ctx, source, progress)
		fmt.Fprintln(a.out)
		if err != nil {
			a.failUpload(ctx, rec.ID, err)
			return
		}
		a.completeUpload(ctx, rec.ID, out.ObjectKey, 0, out.Key, out.Digest)

	case "v3":
		out, err := a.uploader.UploadV3(ctx, source, progress)
		fmt.Fprintln(a.out)
		if err != nil {
			a.failUpload(ctx, rec.ID, err)
			return
		}
		a.completeUpload(ctx, rec.ID, out.StorageKey, out.CDN, out.Key, out.Digest)

	default:
		fmt.Fprintln(a.out, "Unknown protocol:", protocol)
	}
}

func (a *App) failUpload(ctx context.Context, id string, err error) {
	fmt.Fprintln(a.out, "Upload failed:", err)
	if jerr := a.journal.MarkFailed(ctx, id); jerr != nil {
		a.logger.Warn(ctx, "journal update failed", "error", jerr)
	}
}

func (a *App) completeUpload(ctx context.Context, id, storageKey string, cdn int, key, digest []byte) {
	fmt.Fprintf(a.out, "Uploaded as %s\n", storageKey)
	err := a.journal.MarkCompleted(ctx, id, storageKey, cdn,
		hex.EncodeToString(key), hex.EncodeToString(digest), nowFunc())
	if err != nil {
		a.logger.Warn(ctx, "journal update failed", "error", err)
	}
}

// list prints the upload journal, newest first.
func (a *App) list(ctx context.Context) {
	records, err := a.journal.List(ctx)
	if err != nil {
		fmt.Fprintln(a.out, "Error listing uploads:", err)
		return
	}
	if len(records) == 0 {
		fmt.Fprintln(a.out, "No uploads yet.")
		return
	}

	for _, r := range records {
		key := r.StorageKey
		if key == "" {
			key = "-"
		}
		fmt.Fprintf(a.out, "%s  %-9s  %-2s  %s -> %s\n",
			r.CreatedAt.Format("2006-01-02 15:04:05"), r.Status, r.Protocol, r.LocalPath, key)
	}
}

// nowFunc is a seam for testing journal timestamps.
var nowFunc = time.Now
