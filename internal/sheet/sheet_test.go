package sheet

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/csv"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/rshade/phonelookup/internal/engine"
)

func jpegBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for y := range 8 {
		for x := range 8 {
			img.Set(x, y, color.RGBA{R: 10, G: 120, B: 200, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, nil))
	return buf.Bytes()
}

func writeXLSX(t *testing.T, path string, rows [][]string) {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	for r, row := range rows {
		for c, v := range row {
			cell, err := excelize.CoordinatesToCellName(c+1, r+1)
			require.NoError(t, err)
			require.NoError(t, f.SetCellValue("Sheet1", cell, v))
		}
	}
	require.NoError(t, f.SaveAs(path))
}

func TestReadTable_CSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "in.csv")
	content := "\ufeffName, number ,City\nAli,03001234567,Lahore\nSara,923211234567\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	tbl, err := ReadTable(path, "Number")
	require.NoError(t, err)

	assert.Equal(t, []string{"Name", "number", "City"}, tbl.Header)
	assert.Equal(t, 1, tbl.NumberColumn)
	require.Len(t, tbl.Records, 2)
	assert.Equal(t, "03001234567", tbl.Records[0].Number)
	assert.Equal(t, []string{"Sara", "923211234567", ""}, tbl.Records[1].Fields, "short rows are padded")
	assert.Equal(t, 1, tbl.Records[1].Index)
}

func TestReadTable_XLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "in.xlsx")
	writeXLSX(t, path, [][]string{
		{"Number", "Note"},
		{"03001234567", "first"},
		{"923211234567", "second"},
	})

	tbl, err := ReadTable(path, "number")
	require.NoError(t, err)
	assert.Equal(t, 0, tbl.NumberColumn)
	require.Len(t, tbl.Records, 2)
	assert.Equal(t, "923211234567", tbl.Records[1].Number)
	assert.Equal(t, "second", tbl.Records[1].Fields[1])
}

func TestReadTable_KeepsUnlabelledColumns(t *testing.T) {
	t.Run("csv", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "in.csv")
		content := "Number,Name\n03001234567,Ali,note-kept\n923211234567,Sara\n"
		require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

		tbl, err := ReadTable(path, "Number")
		require.NoError(t, err)
		assert.Equal(t, []string{"Number", "Name", "Column_3"}, tbl.Header)
		assert.Equal(t, []string{"03001234567", "Ali", "note-kept"}, tbl.Records[0].Fields)
		assert.Equal(t, []string{"923211234567", "Sara", ""}, tbl.Records[1].Fields)
	})

	t.Run("xlsx", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "in.xlsx")
		writeXLSX(t, path, [][]string{
			{"Number", "", "Name"},
			{"03001234567", "x", "Ali", "unlabelled data"},
		})

		tbl, err := ReadTable(path, "Number")
		require.NoError(t, err)
		assert.Equal(t, []string{"Number", "Column_2", "Name", "Column_4"}, tbl.Header)
		assert.Equal(t, []string{"03001234567", "x", "Ali", "unlabelled data"}, tbl.Records[0].Fields)
	})
}

func TestFillHeader_AvoidsExistingNames(t *testing.T) {
	got := fillHeader([]string{"Column_2", ""}, 3)
	assert.Equal(t, []string{"Column_2", "Column_2_2", "Column_3"}, got)
}

func TestReadTable_XLSXKeepsCellTypes(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.xlsx")

	f := excelize.NewFile()
	require.NoError(t, f.SetSheetRow("Sheet1", "A1", &[]any{"Number", "Amount", "Joined", "Active"}))
	require.NoError(t, f.SetCellStr("Sheet1", "A2", "03001234567"))
	require.NoError(t, f.SetCellFloat("Sheet1", "B2", 1250.5, -1, 64))
	require.NoError(t, f.SetCellFloat("Sheet1", "C2", 45000, -1, 64))
	dateStyle, err := f.NewStyle(&excelize.Style{NumFmt: 14})
	require.NoError(t, err)
	require.NoError(t, f.SetCellStyle("Sheet1", "C2", "C2", dateStyle))
	require.NoError(t, f.SetCellBool("Sheet1", "D2", true))
	require.NoError(t, f.SaveAs(in))
	require.NoError(t, f.Close())

	tbl, err := ReadTable(in, "Number")
	require.NoError(t, err)
	require.Len(t, tbl.Records, 1)
	typed := tbl.Records[0].Typed
	assert.NotContains(t, typed, 0, "text cells stay text")
	assert.Equal(t, engine.TypedCell{Kind: engine.CellNumber, Raw: "1250.5"}, typed[1])
	assert.Equal(t, engine.TypedCell{Kind: engine.CellNumber, Raw: "45000", NumFmt: 14}, typed[2])
	assert.Equal(t, engine.CellBool, typed[3].Kind)

	out := filepath.Join(dir, "out.xlsx")
	w, err := NewWriter(out, tbl.Header, limits)
	require.NoError(t, err)
	rows := []engine.OutputRow{{Record: tbl.Records[0], Result: engine.LookupResult{Status: engine.StatusSuccess}}}
	require.NoError(t, w.Persist(context.Background(), rows))

	g, err := excelize.OpenFile(out)
	require.NoError(t, err)
	defer g.Close()

	typ, err := g.GetCellType(SheetName, "B2")
	require.NoError(t, err)
	assert.Equal(t, excelize.CellTypeUnset, typ, "numbers are written without a string type")
	raw, err := g.GetCellValue(SheetName, "B2", excelize.Options{RawCellValue: true})
	require.NoError(t, err)
	assert.Equal(t, "1250.5", raw)

	styleID, err := g.GetCellStyle(SheetName, "C2")
	require.NoError(t, err)
	style, err := g.GetStyle(styleID)
	require.NoError(t, err)
	assert.Equal(t, 14, style.NumFmt)

	typ, err = g.GetCellType(SheetName, "D2")
	require.NoError(t, err)
	assert.Equal(t, excelize.CellTypeBool, typ)

	number, err := g.GetCellValue(SheetName, "A2")
	require.NoError(t, err)
	assert.Equal(t, "03001234567", number)
}

func TestReadTable_Errors(t *testing.T) {
	dir := t.TempDir()

	path := filepath.Join(dir, "in.csv")
	require.NoError(t, os.WriteFile(path, []byte("Phone,Name\n1,a\n"), 0o600))
	_, err := ReadTable(path, "Number")
	require.ErrorIs(t, err, ErrMissingColumn)

	_, err = ReadTable(filepath.Join(dir, "in.txt"), "Number")
	require.ErrorIs(t, err, ErrUnsupportedFormat)

	empty := filepath.Join(dir, "empty.csv")
	require.NoError(t, os.WriteFile(empty, nil, 0o600))
	_, err = ReadTable(empty, "Number")
	require.ErrorIs(t, err, ErrNoHeader)

	_, err = ReadTable(filepath.Join(dir, "missing.csv"), "Number")
	require.Error(t, err)
}

func TestFingerprint(t *testing.T) {
	a := &Table{Header: []string{"Number"}, Records: []engine.InputRecord{{Fields: []string{"1"}}}}
	b := &Table{Header: []string{"Number"}, Records: []engine.InputRecord{{Fields: []string{"1"}}}}
	assert.Equal(t, a.Fingerprint(), b.Fingerprint())

	b.Records[0].Fields[0] = "2"
	assert.NotEqual(t, a.Fingerprint(), b.Fingerprint())

	// Cell boundaries matter.
	c := &Table{Header: []string{"ab", "c"}}
	d := &Table{Header: []string{"a", "bc"}}
	assert.NotEqual(t, c.Fingerprint(), d.Fingerprint())
}

func sampleRows(thumb string) []engine.OutputRow {
	at := time.Date(2026, 6, 1, 8, 30, 0, 0, time.UTC)
	return []engine.OutputRow{
		{
			Record: engine.InputRecord{Index: 0, Number: "923001234567", Fields: []string{"923001234567", "first"}},
			Result: engine.LookupResult{
				Status:    engine.StatusSuccess,
				Names:     []string{"Ali Khan", "Ali"},
				ImageURLs: []string{"https://img/a.jpg"},
				Images:    []engine.ImagePayload{{Source: "https://img/a.jpg", Base64: thumb}},
				Attempts:  1,
				Timestamp: at,
			},
		},
		{
			Record: engine.InputRecord{Index: 1, Number: "123", Fields: []string{"123", "second"}},
			Result: engine.ErrorResult("invalid phone number", at),
		},
		engine.PendingRow(engine.InputRecord{Index: 2, Number: "923211234567", Fields: []string{"923211234567", "third"}}),
	}
}

var limits = engine.Layout{Names: 10, ImageURLs: 10, Images: 3}

func TestWriter_CSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.csv")
	w, err := NewWriter(path, []string{"Number", "Note"}, limits)
	require.NoError(t, err)
	require.NoError(t, w.Persist(context.Background(), sampleRows("QUJD")))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	got, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)

	require.Len(t, got, 4)
	assert.Equal(t, []string{
		"Number", "Note", "Lookup_Status", "Name_1", "Name_2", "Image_1", "b64_1", "Lookup_Timestamp", "Error_Message",
	}, got[0])
	assert.Equal(t, []string{
		"923001234567", "first", "Success", "Ali Khan", "Ali", "https://img/a.jpg", "QUJD", "2026-06-01T08:30:00Z", "",
	}, got[1])
	assert.Equal(t, "Error", got[2][2])
	assert.Equal(t, "invalid phone number", got[2][8])
	assert.Equal(t, []string{"923211234567", "third", "Pending"}, got[3][:3])
}

func TestWriter_XLSXEmbedsThumbnails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.xlsx")
	thumb := base64.StdEncoding.EncodeToString(jpegBytes(t))
	w, err := NewWriter(path, []string{"Number", "Note"}, limits, WithStyle(Style{Embed: true}))
	require.NoError(t, err)
	require.NoError(t, w.Persist(context.Background(), sampleRows(thumb)))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(SheetName)
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, "b64_1", rows[0][6])
	assert.Equal(t, thumb, rows[1][6])

	pics, err := f.GetPictures(SheetName, "G2")
	require.NoError(t, err)
	assert.Len(t, pics, 1)

	height, err := f.GetRowHeight(SheetName, 2)
	require.NoError(t, err)
	assert.InDelta(t, DefaultRowHeight, height, 0.01)
}

func TestWriter_RejectsUnknownFormat(t *testing.T) {
	_, err := NewWriter("out.ods", nil, limits)
	require.ErrorIs(t, err, ErrUnsupportedFormat)
}

type fakeImages struct {
	jpeg []byte
	fail map[string]bool
}

func (f *fakeImages) FromURL(_ context.Context, url string) ([]byte, error) {
	if f.fail[url] {
		return nil, errors.New("HTTP 404")
	}
	return f.jpeg, nil
}

func (f *fakeImages) FromBase64(payload string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(payload)
}

func TestEmbedImages(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "results.xlsx")
	out := filepath.Join(dir, "embedded.xlsx")
	pic := jpegBytes(t)

	rows := sampleRows(base64.StdEncoding.EncodeToString(pic))
	// Second row gets two URLs and no thumbnail; one of them is broken.
	rows[1].Result = engine.LookupResult{
		Status:    engine.StatusSuccess,
		ImageURLs: []string{"https://img/broken.jpg", "https://img/b.jpg"},
		Attempts:  1,
	}
	rows[1].Result.Images = []engine.ImagePayload{{Source: "https://img/x.jpg", Error: "HTTP 500"}}
	w, err := NewWriter(in, []string{"Number", "Note"}, limits)
	require.NoError(t, err)
	require.NoError(t, w.Persist(context.Background(), rows))

	src := &fakeImages{jpeg: pic, fail: map[string]bool{"https://img/broken.jpg": true}}
	stats, err := EmbedImages(context.Background(), in, out, src, EmbedOptions{})
	require.NoError(t, err)

	assert.Equal(t, 3, stats.Rows)
	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, 0, stats.Downloaded, "the only b64 slot of row 2 is tried with the first URL")
	assert.Equal(t, 1, stats.Embedded)

	f, err := excelize.OpenFile(out)
	require.NoError(t, err)
	defer f.Close()
	pics, err := f.GetPictures(SheetName, "H2")
	require.NoError(t, err)
	assert.Len(t, pics, 1)
}

func TestEmbedImages_RequiresB64Columns(t *testing.T) {
	in := filepath.Join(t.TempDir(), "plain.xlsx")
	writeXLSX(t, in, [][]string{{"Number"}, {"1"}})

	_, err := EmbedImages(context.Background(), in, in, &fakeImages{}, EmbedOptions{})
	require.ErrorIs(t, err, ErrMissingColumn)
	assert.True(t, strings.Contains(err.Error(), "b64_"))
}
