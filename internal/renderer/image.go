package renderer

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"
)

const (
	maxImageBytes  = 20 << 20
	maxImagePixels = 40_000_000
)

var (
	ErrSourceNotAllowed = errors.New("image source not allowed")
	ErrImageTooLarge    = errors.New("image dimensions too large")
)

// ImageLoader fetches image sources referenced by a design
type ImageLoader interface {
	Load(ctx context.Context, src string) (image.Image, error)
}

// SourceLoader loads data URIs and http(s) URLs. Local files are read only
// when BaseDir is set, and never from outside it. Hosts that resolve to
// loopback, private or link-local addresses are refused unless
// AllowPrivate is set.
type SourceLoader struct {
	Client       *http.Client
	BaseDir      string
	AllowPrivate bool
}

// NewSourceLoader creates a loader with a bounded HTTP client
func NewSourceLoader() *SourceLoader {
	l := &SourceLoader{}
	l.Client = l.httpClient()
	return l
}

// httpClient returns Client, or one whose dialer refuses addresses that
// fail checkAddress
func (l *SourceLoader) httpClient() *http.Client {
	if l.Client != nil {
		return l.Client
	}
	dialer := &net.Dialer{
		Timeout: 10 * time.Second,
		Control: func(network, address string, _ syscall.RawConn) error {
			return l.checkAddress(address)
		},
	}
	return &http.Client{
		Timeout:   15 * time.Second,
		Transport: &http.Transport{DialContext: dialer.DialContext},
	}
}

// Load decodes the image behind src
func (l *SourceLoader) Load(ctx context.Context, src string) (image.Image, error) {
	src = strings.TrimSpace(src)
	switch {
	case src == "":
		return nil, fmt.Errorf("empty image source")
	case strings.HasPrefix(src, "data:"):
		return decodeDataURI(src)
	case strings.HasPrefix(src, "http://"), strings.HasPrefix(src, "https://"):
		return l.fetch(ctx, src)
	case l.BaseDir == "":
		return nil, fmt.Errorf("%w: %s", ErrSourceNotAllowed, src)
	default:
		return l.open(src)
	}
}

func (l *SourceLoader) checkAddress(address string) error {
	if l.AllowPrivate {
		return nil
	}
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return err
	}
	ip := net.ParseIP(host)
	if ip == nil || !publicIP(ip) {
		return fmt.Errorf("%w: %s", ErrSourceNotAllowed, host)
	}
	return nil
}

func publicIP(ip net.IP) bool {
	return !(ip.IsLoopback() || ip.IsPrivate() || ip.IsUnspecified() ||
		ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() ||
		ip.IsInterfaceLocalMulticast() || ip.IsMulticast())
}

func decodeDataURI(src string) (image.Image, error) {
	comma := strings.IndexByte(src, ',')
	if comma < 0 {
		return nil, fmt.Errorf("malformed data uri")
	}
	meta, payload := src[len("data:"):comma], src[comma+1:]

	var data []byte
	if strings.HasSuffix(meta, ";base64") {
		decoded, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to decode base64 image: %w", err)
		}
		data = decoded
	} else {
		unescaped, err := url.PathUnescape(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to unescape data uri: %w", err)
		}
		data = []byte(unescaped)
	}

	return decodeBounded(data)
}

func (l *SourceLoader) fetch(ctx context.Context, src string) (image.Image, error) {
	client := l.httpClient()

	if !l.AllowPrivate {
		u, err := url.Parse(src)
		if err != nil {
			return nil, fmt.Errorf("invalid image url: %w", err)
		}
		if ip := net.ParseIP(u.Hostname()); ip != nil && !publicIP(ip) {
			return nil, fmt.Errorf("%w: %s", ErrSourceNotAllowed, u.Hostname())
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to fetch image: status %d", resp.StatusCode)
	}

	data, err := readBounded(resp.Body)
	if err != nil {
		return nil, err
	}
	return decodeBounded(data)
}

func (l *SourceLoader) open(path string) (image.Image, error) {
	path = filepath.Join(l.BaseDir, filepath.Clean(string(filepath.Separator)+filepath.FromSlash(path)))
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	defer f.Close()

	data, err := readBounded(f)
	if err != nil {
		return nil, err
	}
	return decodeBounded(data)
}

func readBounded(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxImageBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read image: %w", err)
	}
	if len(data) > maxImageBytes {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrImageTooLarge, maxImageBytes)
	}
	return data, nil
}

// decodeBounded checks the declared dimensions before decoding pixels
func decodeBounded(data []byte) (image.Image, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || int64(cfg.Width)*int64(cfg.Height) > maxImagePixels {
		return nil, fmt.Errorf("%w: %dx%d", ErrImageTooLarge, cfg.Width, cfg.Height)
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	return img, nil
}

// fitImage scales img to cover a w×h box, cropping the overflow like
// object-fit: cover
func fitImage(img image.Image, w, h int) image.Image {
	if w <= 0 && h <= 0 {
		return img
	}
	if w <= 0 || h <= 0 {
		return imaging.Resize(img, w, h, imaging.Lanczos)
	}
	return imaging.Fill(img, w, h, imaging.Center, imaging.Lanczos)
}
