// Package thumbnail renders small previews of cached image files. Nothing in
// here fails loudly: a file that cannot be previewed simply has no preview.
package thumbnail

import (
	"bytes"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"
	logging "github.com/ipfs/go-log/v2"
	"github.com/spf13/afero"
)

var log = logging.Logger("mirror/thumbnail")

const (
	// Size is the width and height of a generated thumbnail.
	Size = 72

	DefaultMaxGenerateBytes = 1_000_000
	DefaultMaxDirectBytes   = 100_000
)

type Maker struct {
	fs  afero.Fs
	dir string
	// MaxGenerateBytes is the largest file a thumbnail is generated for.
	MaxGenerateBytes int64
	// MaxDirectBytes is the largest file shown as is, without a thumbnail.
	MaxDirectBytes int64
}

func New(fs afero.Fs, dir string) *Maker {
	return &Maker{
		fs:               fs,
		dir:              dir,
		MaxGenerateBytes: DefaultMaxGenerateBytes,
		MaxDirectBytes:   DefaultMaxDirectBytes,
	}
}

// Path is where the thumbnail of a file revision lives. Revisions never
// change content, so thumbnails are never invalidated.
func (m *Maker) Path(fileID string) string {
	return filepath.Join(m.dir, fileID+".png")
}

// Generate writes the thumbnail of localFile for fileID, unless one already
// exists, and returns its path.
func (m *Maker) Generate(localFile, fileID string) (string, bool) {
	if fileID == "" {
		return "", false
	}
	dest := m.Path(fileID)
	if ok, _ := afero.Exists(m.fs, dest); ok {
		return dest, true
	}
	img, ok := m.decode(localFile, m.MaxGenerateBytes)
	if !ok {
		return "", false
	}

	thumb := imaging.Fill(img, Size, Size, imaging.Center, imaging.Lanczos)
	var buf bytes.Buffer
	if err := png.Encode(&buf, thumb); err != nil {
		log.Debugw("Encoding thumbnail failed", "file", localFile, "err", err)
		return "", false
	}
	if err := m.fs.MkdirAll(m.dir, 0o755); err != nil {
		log.Warnw("Creating thumbnail dir failed", "dir", m.dir, "err", err)
		return "", false
	}
	if err := afero.WriteFile(m.fs, dest, buf.Bytes(), 0o644); err != nil {
		log.Warnw("Writing thumbnail failed", "path", dest, "err", err)
		m.fs.Remove(dest)
		return "", false
	}
	return dest, true
}

// Direct decodes localFile for display as is, when it is small enough.
func (m *Maker) Direct(localFile string) (image.Image, bool) {
	return m.decode(localFile, m.MaxDirectBytes)
}

func (m *Maker) decode(localFile string, limit int64) (image.Image, bool) {
	info, err := m.fs.Stat(localFile)
	if err != nil || info.IsDir() || info.Size() > limit {
		return nil, false
	}
	f, err := m.fs.OpenFile(localFile, os.O_RDONLY, 0)
	if err != nil {
		return nil, false
	}
	defer f.Close()
	img, err := imaging.Decode(f, imaging.AutoOrientation(true))
	if err != nil {
		log.Debugw("Not an image", "file", localFile, "err", err)
		return nil, false
	}
	return img, true
}
