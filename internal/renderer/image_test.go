package renderer

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/binary"
	"hash/crc32"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dynodocs/template-engine/pkg/designformat"
)

func redPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 4, 4))
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			img.Set(x, y, color.NRGBA{R: 255, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// hugePNG declares a 100000x100000 image but carries no pixel data
func hugePNG() []byte {
	ihdr := make([]byte, 13)
	binary.BigEndian.PutUint32(ihdr[0:], 100000)
	binary.BigEndian.PutUint32(ihdr[4:], 100000)
	ihdr[8], ihdr[9] = 8, 2

	var buf bytes.Buffer
	buf.WriteString("\x89PNG\r\n\x1a\n")
	binary.Write(&buf, binary.BigEndian, uint32(len(ihdr)))
	chunk := append([]byte("IHDR"), ihdr...)
	buf.Write(chunk)
	binary.Write(&buf, binary.BigEndian, crc32.ChecksumIEEE(chunk))
	return buf.Bytes()
}

func TestSourceLoader_FilesNeedBaseDir(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "logo.png")
	require.NoError(t, os.WriteFile(path, redPNG(t), 0644))

	_, err := NewSourceLoader().Load(context.Background(), path)
	assert.ErrorIs(t, err, ErrSourceNotAllowed)

	l := NewSourceLoader()
	l.BaseDir = dir
	img, err := l.Load(context.Background(), "logo.png")
	require.NoError(t, err)
	assert.Equal(t, 4, img.Bounds().Dx())
}

func TestSourceLoader_StaysInsideBaseDir(t *testing.T) {
	root := t.TempDir()
	base := filepath.Join(root, "designs")
	require.NoError(t, os.MkdirAll(base, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "secret.png"), redPNG(t), 0644))

	l := NewSourceLoader()
	l.BaseDir = base
	_, err := l.Load(context.Background(), "../secret.png")
	assert.Error(t, err)
}

func TestSourceLoader_RefusesPrivateHosts(t *testing.T) {
	data := redPNG(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(data)
	}))
	defer srv.Close()

	_, err := NewSourceLoader().Load(context.Background(), srv.URL+"/logo.png")
	assert.ErrorIs(t, err, ErrSourceNotAllowed)

	_, err = NewSourceLoader().Load(context.Background(), "http://169.254.169.254/latest/meta-data")
	assert.ErrorIs(t, err, ErrSourceNotAllowed)

	l := NewSourceLoader()
	l.AllowPrivate = true
	img, err := l.Load(context.Background(), srv.URL+"/logo.png")
	require.NoError(t, err)
	assert.Equal(t, 4, img.Bounds().Dy())
}

func TestSourceLoader_RejectsHugeDimensions(t *testing.T) {
	src := "data:image/png;base64," + base64.StdEncoding.EncodeToString(hugePNG())
	_, err := NewSourceLoader().Load(context.Background(), src)
	assert.ErrorIs(t, err, ErrImageTooLarge)
}

func TestRasterizer_DoesNotReadServerFiles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "secret.png")
	require.NoError(t, os.WriteFile(path, redPNG(t), 0644))

	d := &designformat.Design{Pages: []designformat.Page{{Elements: []designformat.Element{
		{Type: "image", X: 10, Y: 10, Width: designformat.Float(20), Height: designformat.Float(20), Src: "{{missing}}", Fallback: path},
	}}}}

	img, err := NewRasterizer(nil).Render(context.Background(), Layout(d, nil, 595))
	require.NoError(t, err)
	got := color.NRGBAModel.Convert(img.At(20, 20)).(color.NRGBA)
	assert.Equal(t, placeholderFill, got)
}
