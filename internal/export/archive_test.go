package export

import (
	"archive/zip"
	"bytes"
	"encoding/csv"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/yunjin-lab/archive-chat/internal/chat"
)

func readArchive(t *testing.T, data []byte) map[string][][]string {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)

	sheets := make(map[string][][]string, len(zr.File))
	for _, f := range zr.File {
		rc, err := f.Open()
		require.NoError(t, err)
		rows, err := csv.NewReader(rc).ReadAll()
		require.NoError(t, err)
		require.NoError(t, rc.Close())
		sheets[f.Name] = rows
	}
	return sheets
}

func entryNames(t *testing.T, data []byte) []string {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	names := make([]string, 0, len(zr.File))
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	return names
}

func TestBuild_OneSheetPerRoomWithHeaderAndRows(t *testing.T) {
	req := require.New(t)
	ts := time.Date(2025, 6, 1, 12, 30, 45, 0, time.Local).UnixMilli()

	data, err := Build(map[string][]chat.Message{
		"general": {
			{Sender: "alice", Body: "hello", Timestamp: ts},
			{Sender: "bob", Body: "", Timestamp: ts, Image: "data:image/png;base64,xxxx"},
		},
	})
	req.NoError(err)

	sheets := readArchive(t, data)
	req.Len(sheets, 1)

	rows := sheets["general.csv"]
	req.Len(rows, 3)
	req.Equal([]string{"time", "sender", "message", "image"}, rows[0])
	req.Equal([]string{"2025-06-01 12:30:45", "alice", "hello", ""}, rows[1])
	req.Equal([]string{"2025-06-01 12:30:45", "bob", "", "attached"}, rows[2])
}

func TestBuild_IncludesEmptyRooms(t *testing.T) {
	req := require.New(t)

	data, err := Build(map[string][]chat.Message{
		"quiet": nil,
		"busy":  {{Sender: "alice", Body: "hi"}},
	})
	req.NoError(err)

	sheets := readArchive(t, data)
	req.Len(sheets, 2)
	req.Len(sheets["quiet.csv"], 1) // header only
	req.Len(sheets["busy.csv"], 2)
}

func TestBuild_SanitizesEntryNames(t *testing.T) {
	req := require.New(t)

	data, err := Build(map[string][]chat.Message{
		"a/b c":       nil,
		"../../etc":   nil,
		"ok-room.v2_": nil,
		"한국어방":        nil,
	})
	req.NoError(err)

	names := entryNames(t, data)
	req.ElementsMatch([]string{"a_b_c.csv", ".._.._etc.csv", "ok-room.v2_.csv", "____.csv"}, names)
}

func TestBuild_DisambiguatesCollidingNames(t *testing.T) {
	req := require.New(t)

	data, err := Build(map[string][]chat.Message{
		"a/b": nil,
		"a b": nil,
		"a_b": nil,
	})
	req.NoError(err)

	// Sanitizing maps all three rooms to a_b; suffixes keep every entry.
	names := entryNames(t, data)
	req.ElementsMatch([]string{"a_b.csv", "a_b_2.csv", "a_b_3.csv"}, names)
}

func TestBuild_EmptyRoomNameFallsBack(t *testing.T) {
	req := require.New(t)

	data, err := Build(map[string][]chat.Message{"": nil})
	req.NoError(err)

	req.Equal([]string{"room.csv"}, entryNames(t, data))
}

func TestBuild_EmptySnapshotYieldsValidEmptyArchive(t *testing.T) {
	req := require.New(t)

	data, err := Build(map[string][]chat.Message{})
	req.NoError(err)

	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	req.NoError(err)
	req.Empty(zr.File)
}

func TestBuild_EntriesAreSortedByRoomName(t *testing.T) {
	req := require.New(t)

	data, err := Build(map[string][]chat.Message{"zeta": nil, "alpha": nil, "mid": nil})
	req.NoError(err)

	req.Equal([]string{"alpha.csv", "mid.csv", "zeta.csv"}, entryNames(t, data))
}

func TestBuild_PreservesBodiesVerbatim(t *testing.T) {
	req := require.New(t)
	body := "line one\nline two, with commas, and \"quotes\""

	data, err := Build(map[string][]chat.Message{
		"general": {{Sender: "alice", Body: body}},
	})
	req.NoError(err)

	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	req.NoError(err)
	rc, err := zr.File[0].Open()
	req.NoError(err)
	defer rc.Close()

	raw, err := io.ReadAll(rc)
	req.NoError(err)
	rows, err := csv.NewReader(bytes.NewReader(raw)).ReadAll()
	req.NoError(err)
	req.Equal(body, rows[1][2])
}
