// Package archive repacks extracted work directories into zip archives.
// Media formats that are already compressed are stored as-is; everything
// else is deflated.
package archive

import (
	"archive/zip"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/flate"
	"golang.org/x/text/unicode/norm"
)

// defaultExcludes are glob patterns always skipped while packing.
var defaultExcludes = []string{
	"*.DS_Store",
	"*.bak",
	"Thumbs.db",
}

// storeFormats are extensions stored without compression: these formats
// are already compressed and deflate only wastes time on them.
var storeFormats = map[string]bool{
	".flac": true,
	".jpeg": true,
	".jpg":  true,
	".mkv":  true,
	".mp3":  true,
	".mp4":  true,
	".m4a":  true,
	".ogg":  true,
	".png":  true,
	".rar":  true,
	".wmv":  true,
	".zip":  true,
	".exe":  true,
	".dll":  true,
}

// Options controls Pack.
type Options struct {
	// Force overwrites an existing archive.
	Force bool
	// Exclude lists additional glob patterns to skip, matched against
	// file base names.
	Exclude []string
}

// Pack archives the work directory into a zip at archivePath. Entry names
// are slash-separated, NFC-normalized relative paths.
func Pack(workDir, archivePath string, opts Options) error {
	workDir, err := filepath.Abs(workDir)
	if err != nil {
		return fmt.Errorf("resolving work directory: %w", err)
	}
	if !opts.Force {
		if _, err := os.Stat(archivePath); err == nil {
			return fmt.Errorf("archive already exists at %s", archivePath)
		}
	}

	f, err := os.Create(archivePath)
	if err != nil {
		return fmt.Errorf("creating archive: %w", err)
	}
	defer f.Close()

	zw := zip.NewWriter(f)
	zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(out, flate.BestCompression)
	})

	excludes := append(append([]string{}, defaultExcludes...), opts.Exclude...)
	err = filepath.WalkDir(workDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if excluded(d.Name(), excludes) {
			return nil
		}

		rel, err := filepath.Rel(workDir, path)
		if err != nil {
			return fmt.Errorf("relativizing %s: %w", path, err)
		}
		return addFile(zw, path, norm.NFC.String(filepath.ToSlash(rel)))
	})
	if err != nil {
		return fmt.Errorf("packing %s: %w", workDir, err)
	}

	if err := zw.Close(); err != nil {
		return fmt.Errorf("finalizing archive: %w", err)
	}
	return f.Close()
}

func addFile(zw *zip.Writer, path, name string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat %s: %w", path, err)
	}
	hdr, err := zip.FileInfoHeader(info)
	if err != nil {
		return fmt.Errorf("creating header for %s: %w", path, err)
	}
	hdr.Name = name
	hdr.Method = zip.Deflate
	if storeFormats[strings.ToLower(filepath.Ext(name))] {
		hdr.Method = zip.Store
	}

	w, err := zw.CreateHeader(hdr)
	if err != nil {
		return fmt.Errorf("adding %s: %w", name, err)
	}
	src, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}
	defer src.Close()

	if _, err := io.Copy(w, src); err != nil {
		return fmt.Errorf("writing %s: %w", name, err)
	}
	return nil
}

func excluded(name string, patterns []string) bool {
	for _, pat := range patterns {
		if ok, err := filepath.Match(pat, name); err == nil && ok {
			return true
		}
	}
	return false
}
