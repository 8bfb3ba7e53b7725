package images

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/binary"
	"hash/crc32"
	"image"
	"image/color"
	"image/gif"
	"image/png"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rshade/phonelookup/internal/engine/cache"
)

func pngBytes(t *testing.T, w, h int, c color.Color) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func decodeJPEG(t *testing.T, data []byte) image.Image {
	t.Helper()
	img, format, err := image.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	require.Equal(t, "jpeg", format)
	return img
}

func TestThumbnail_ShrinksKeepingAspect(t *testing.T) {
	out, err := Thumbnail(pngBytes(t, 400, 200, color.NRGBA{R: 200, A: 255}), Options{MaxWidth: 100, MaxHeight: 100, Quality: 85})
	require.NoError(t, err)

	img := decodeJPEG(t, out)
	assert.Equal(t, 100, img.Bounds().Dx())
	assert.Equal(t, 50, img.Bounds().Dy())
}

func TestThumbnail_NeverEnlarges(t *testing.T) {
	out, err := Thumbnail(pngBytes(t, 40, 30, color.Black), Options{})
	require.NoError(t, err)

	img := decodeJPEG(t, out)
	assert.Equal(t, image.Rect(0, 0, 40, 30), img.Bounds())
}

func TestThumbnail_FlattensTransparencyOntoWhite(t *testing.T) {
	out, err := Thumbnail(pngBytes(t, 20, 20, color.NRGBA{}), Options{})
	require.NoError(t, err)

	r, g, b, _ := decodeJPEG(t, out).At(10, 10).RGBA()
	assert.GreaterOrEqual(t, r>>8, uint32(245))
	assert.GreaterOrEqual(t, g>>8, uint32(245))
	assert.GreaterOrEqual(t, b>>8, uint32(245))
}

func TestThumbnail_GIF(t *testing.T) {
	pal := image.NewPaletted(image.Rect(0, 0, 300, 300), color.Palette{color.Black, color.White})
	var buf bytes.Buffer
	require.NoError(t, gif.Encode(&buf, pal, nil))

	out, err := Thumbnail(buf.Bytes(), Options{MaxWidth: 50, MaxHeight: 80})
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 50, 50), decodeJPEG(t, out).Bounds())
}

func TestThumbnail_Unsupported(t *testing.T) {
	_, err := Thumbnail([]byte("definitely not an image"), Options{})
	require.ErrorIs(t, err, ErrUnsupportedImage)
}

// pngHeader returns a PNG holding only an IHDR chunk for a w x h grayscale
// image, enough for image.DecodeConfig.
func pngHeader(w, h uint32) []byte {
	ihdr := make([]byte, 13)
	binary.BigEndian.PutUint32(ihdr[0:4], w)
	binary.BigEndian.PutUint32(ihdr[4:8], h)
	ihdr[8] = 8 // bit depth; colour type, compression, filter, interlace stay 0

	var buf bytes.Buffer
	buf.WriteString("\x89PNG\r\n\x1a\n")
	_ = binary.Write(&buf, binary.BigEndian, uint32(len(ihdr)))
	chunk := append([]byte("IHDR"), ihdr...)
	buf.Write(chunk)
	_ = binary.Write(&buf, binary.BigEndian, crc32.ChecksumIEEE(chunk))
	return buf.Bytes()
}

func TestThumbnail_RejectsOversizedImages(t *testing.T) {
	_, err := Thumbnail(pngHeader(15000, 15000), Options{})
	require.ErrorIs(t, err, ErrImageTooLarge)
	assert.Contains(t, err.Error(), "15000x15000")

	p := NewPipeline(Config{})
	_, err = p.FromBase64(base64.StdEncoding.EncodeToString(pngHeader(MaxSourcePixels, 2)))
	require.ErrorIs(t, err, ErrImageTooLarge)
}

func TestDecodeBase64(t *testing.T) {
	raw := []byte{0xfb, 0xff, 0xfe, 0x01, 0x02}
	std := base64.StdEncoding.EncodeToString(raw)
	url := base64.URLEncoding.EncodeToString(raw)

	tests := []struct {
		name    string
		in      string
		wantErr bool
	}{
		{"standard", std, false},
		{"no padding", base64.RawStdEncoding.EncodeToString(raw), false},
		{"url safe", url, false},
		{"data url", "data:image/png;base64," + std, false},
		{"wrapped lines", std[:4] + "\n" + std[4:], false},
		{"empty", "", true},
		{"garbage", "!!!!", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeBase64(tt.in)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidBase64)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, raw, got)
		})
	}
}

func TestPipeline_FromBase64(t *testing.T) {
	p := NewPipeline(Config{Thumbnail: Options{MaxWidth: 10, MaxHeight: 10}})
	payload := base64.StdEncoding.EncodeToString(pngBytes(t, 40, 20, color.White))

	out, err := p.FromBase64(payload)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 10, 5), decodeJPEG(t, out).Bounds())

	_, err = p.FromBase64("%%%")
	require.ErrorIs(t, err, ErrInvalidBase64)
}

func TestPipeline_FromURL_UsesCache(t *testing.T) {
	body := pngBytes(t, 200, 200, color.White)
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(body)
	}))
	t.Cleanup(srv.Close)

	store, err := cache.NewFileStore(t.TempDir(), true, cache.DefaultTTL)
	require.NoError(t, err)
	p := NewPipeline(Config{Thumbnail: Options{MaxWidth: 100, MaxHeight: 100}}, WithCache(store))

	for range 2 {
		out, err := p.FromURL(context.Background(), srv.URL+"/a.png")
		require.NoError(t, err)
		assert.Equal(t, image.Rect(0, 0, 100, 100), decodeJPEG(t, out).Bounds())
	}
	assert.Equal(t, int32(1), hits.Load(), "second fetch served from cache")

	_, err = p.FromURL(context.Background(), srv.URL+"/missing")
	require.ErrorIs(t, err, ErrDownload)
	assert.Contains(t, err.Error(), "HTTP 404")
}

func TestPipeline_FromURL_Errors(t *testing.T) {
	p := NewPipeline(Config{DownloadTimeout: 50 * time.Millisecond})

	_, err := p.FromURL(context.Background(), "ftp://example.test/a.png")
	require.ErrorIs(t, err, ErrDownload)

	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	}))
	t.Cleanup(srv.Close)

	_, err = p.FromURL(context.Background(), srv.URL+"/slow.png")
	require.ErrorIs(t, err, ErrDownload)
	assert.Contains(t, err.Error(), "timeout")
}
