// Package export serializes a snapshot of every room's history into a zip
// archive with one CSV sheet per room, suitable both for an HTTP download and
// for base64 delivery over the duplex channel.
package export

import (
	"archive/zip"
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"regexp"
	"sort"
	"time"

	"github.com/pkg/errors"
	"github.com/samber/lo"

	"github.com/yunjin-lab/archive-chat/internal/chat"
)

// imageMarker is written in the image column when a message carries an
// attachment; the blob itself is not exported.
const imageMarker = "attached"

// timeLayout renders the server-assigned millisecond timestamps as local,
// human-readable times in the sheets.
const timeLayout = "2006-01-02 15:04:05"

var sheetHeader = []string{"time", "sender", "message", "image"}

// unsafeEntryRune matches every character that may not appear in an archive
// entry name. Room names are user-supplied, so anything outside this
// allow-list (separators included) is replaced to keep entries flat and free
// of path traversal.
var unsafeEntryRune = regexp.MustCompile(`[^A-Za-z0-9._-]`)

// Build serializes the snapshot into zip bytes. Every room present in the
// snapshot gets an entry, including rooms with empty histories; entries are
// ordered by room name so repeated exports of the same state are identical.
func Build(snapshot map[string][]chat.Message) ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	used := make(map[string]int, len(snapshot))
	names := lo.Keys(snapshot)
	sort.Strings(names)

	for _, room := range names {
		w, err := zw.Create(entryName(room, used))
		if err != nil {
			return nil, errors.Wrapf(err, "create archive entry for room %q", room)
		}
		if err := writeSheet(w, snapshot[room]); err != nil {
			return nil, errors.Wrapf(err, "write sheet for room %q", room)
		}
	}

	if err := zw.Close(); err != nil {
		return nil, errors.Wrap(err, "finalize archive")
	}
	return buf.Bytes(), nil
}

// writeSheet renders one room's history as CSV: a fixed header row, then one
// row per message in history order.
func writeSheet(w io.Writer, history []chat.Message) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(sheetHeader); err != nil {
		return err
	}
	for _, msg := range history {
		image := ""
		if msg.Image != "" {
			image = imageMarker
		}
		row := []string{
			time.UnixMilli(msg.Timestamp).Format(timeLayout),
			msg.Sender,
			msg.Body,
			image,
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// entryName derives a safe archive entry name from a room name. Distinct
// rooms that sanitize to the same string get numeric suffixes so no entry is
// silently overwritten.
func entryName(room string, used map[string]int) string {
	base := unsafeEntryRune.ReplaceAllString(room, "_")
	if base == "" {
		base = "room"
	}

	used[base]++
	if n := used[base]; n > 1 {
		base = fmt.Sprintf("%s_%d", base, n)
	}
	return base + ".csv"
}
