// SPDX-License-Identifier: MIT
//
// Package source resolves audio handles to decoded PCM streams. Handles are
// file paths, either absolute or relative to an asset directory holding the
// bundled tracks.
package source

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"peakbeat/internal/domain"

	"github.com/dhowden/tag"
)

// Format describes the PCM produced by a Stream.
type Format struct {
	SampleRate float64
	Channels   int
}

// Stream yields interleaved float32 frames in [-1, 1].
type Stream interface {
	Format() Format
	// Read fills dst with whole frames and returns the number of frames read.
	// It returns 0, io.EOF once the source is exhausted.
	Read(dst []float32) (int, error)
	Close() error
}

// Provider opens streams for handles. Missing assets are reported with
// domain.ErrSourceNotFound, everything else with domain.ErrUnreadableSource.
type Provider interface {
	Open(handle string) (Stream, error)
}

// Metadata is the descriptive information found in an asset's tags.
type Metadata struct {
	Title    string
	Artist   string
	Album    string
	FileType string
}

type opener func(f *os.File) (Stream, error)

var openers = map[string]opener{
	".wav":  openWAV,
	".wave": openWAV,
	".mp3":  openMP3,
}

// FileProvider opens WAV and MP3 files from disk.
type FileProvider struct {
	assetDir string
}

// Compile-time check for interface implementation.
var _ Provider = (*FileProvider)(nil)

// NewFileProvider returns a provider resolving relative handles against
// assetDir. An empty assetDir resolves them against the working directory.
func NewFileProvider(assetDir string) *FileProvider {
	return &FileProvider{assetDir: assetDir}
}

// Resolve maps a handle to the path it would be opened from.
func (p *FileProvider) Resolve(handle string) string {
	if handle == "" || filepath.IsAbs(handle) || p.assetDir == "" {
		return handle
	}
	return filepath.Join(p.assetDir, handle)
}

// Open resolves and decodes handle.
func (p *FileProvider) Open(handle string) (Stream, error) {
	path := p.Resolve(handle)
	if path == "" {
		return nil, fmt.Errorf("%w: empty handle", domain.ErrSourceNotFound)
	}

	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", domain.ErrSourceNotFound, path)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrUnreadableSource, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: %s is a directory", domain.ErrUnreadableSource, path)
	}

	open, ok := openers[strings.ToLower(filepath.Ext(path))]
	if !ok {
		return nil, fmt.Errorf("%w: unsupported format '%s'", domain.ErrUnreadableSource, filepath.Ext(path))
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrUnreadableSource, err)
	}
	stream, err := open(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrUnreadableSource, path, err)
	}
	return stream, nil
}

// Describe reads tag metadata for handle. Assets without tags get their file
// name as the title.
func (p *FileProvider) Describe(handle string) (Metadata, error) {
	path := p.Resolve(handle)
	meta := Metadata{
		Title:    strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
		FileType: strings.TrimPrefix(strings.ToUpper(filepath.Ext(path)), "."),
	}

	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return meta, fmt.Errorf("%w: %s", domain.ErrSourceNotFound, path)
	}
	if err != nil {
		return meta, fmt.Errorf("%w: %v", domain.ErrUnreadableSource, err)
	}
	defer f.Close()

	m, err := tag.ReadFrom(f)
	if err != nil {
		// Untagged files are common; the defaults stand.
		return meta, nil
	}
	if m.Title() != "" {
		meta.Title = m.Title()
	}
	meta.Artist = m.Artist()
	meta.Album = m.Album()
	if ft := string(m.FileType()); ft != "" {
		meta.FileType = ft
	}
	return meta, nil
}

// ReadFull keeps reading until dst is full or the stream ends. It returns the
// frames read; io.EOF is only returned when no frame was read.
func ReadFull(s Stream, dst []float32) (int, error) {
	channels := s.Format().Channels
	total := 0
	for total*channels < len(dst) {
		n, err := s.Read(dst[total*channels:])
		total += n
		if err == io.EOF {
			if total == 0 {
				return 0, io.EOF
			}
			return total, nil
		}
		if err != nil {
			return total, err
		}
		if n == 0 {
			break
		}
	}
	return total, nil
}
