// Package archive extracts gzip-compressed tarballs through the types.FS
// abstraction, guarding against path traversal. Pack archives place their
// content under a single top-level directory, so extraction is normally
// combined with a filter stripping that prefix.
package archive

import (
	"archive/tar"
	"compress/gzip"
	"errors"
	"io"
	"path"
	"path/filepath"
	"strings"

	aperrors "github.com/arthur-debert/agentpack/pkg/errors"
	"github.com/arthur-debert/agentpack/pkg/types"
)

// maxFileSize caps a single extracted file. Pack components are small text
// documents; anything larger is rejected outright.
const maxFileSize = 10 << 20 // 10 MiB

// FilterFunc maps an archive entry name to a destination-relative path.
// Returning false skips the entry.
type FilterFunc func(name string) (string, bool)

// StripTopLevel returns a filter dropping the first path element of every
// entry, the layout used by pack tarballs and GitHub repository tarballs.
func StripTopLevel() FilterFunc {
	return func(name string) (string, bool) {
		_, rest, found := strings.Cut(strings.TrimPrefix(name, "./"), "/")
		if !found || rest == "" {
			return "", false
		}
		return rest, true
	}
}

// SubdirAfterTopLevel returns a filter that keeps only entries under the
// given subdirectory of the tarball's top-level directory, mapped relative
// to that subdirectory. Used to extract a single pack out of a repository
// tarball.
func SubdirAfterTopLevel(subdir string) FilterFunc {
	strip := StripTopLevel()
	prefix := path.Clean(subdir) + "/"
	return func(name string) (string, bool) {
		rest, ok := strip(name)
		if !ok {
			return "", false
		}
		if !strings.HasPrefix(rest, prefix) {
			return "", false
		}
		rel := strings.TrimPrefix(rest, prefix)
		if rel == "" {
			return "", false
		}
		return rel, true
	}
}

// ExtractTarGz extracts a gzip-compressed tarball into destDir, applying
// the filter to every entry. Only regular files and directories are
// materialized; entries escaping destDir fail the whole extraction.
func ExtractTarGz(fs types.FS, r io.Reader, destDir string, filter FilterFunc) error {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return aperrors.Wrap(err, aperrors.ErrManifestParse, "archive is not gzip-compressed")
	}
	defer func() {
		_ = gz.Close()
	}()

	if filter == nil {
		filter = func(name string) (string, bool) { return name, true }
	}

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return aperrors.Wrap(err, aperrors.ErrManifestParse, "failed to read archive entry")
		}

		rel, ok := filter(hdr.Name)
		if !ok {
			continue
		}
		target, err := secureJoin(destDir, rel)
		if err != nil {
			return err
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := fs.MkdirAll(target, 0755); err != nil {
				return aperrors.Wrapf(err, aperrors.ErrDirCreate, "failed to create directory %s", target)
			}
		case tar.TypeReg:
			if hdr.Size > maxFileSize {
				return aperrors.Newf(aperrors.ErrInvalidInput, "archive entry %s exceeds size limit", hdr.Name)
			}
			if err := fs.MkdirAll(filepath.Dir(target), 0755); err != nil {
				return aperrors.Wrapf(err, aperrors.ErrDirCreate, "failed to create directory for %s", target)
			}
			data, err := io.ReadAll(io.LimitReader(tr, maxFileSize+1))
			if err != nil {
				return aperrors.Wrapf(err, aperrors.ErrFileAccess, "failed to read archive entry %s", hdr.Name)
			}
			if int64(len(data)) > maxFileSize {
				return aperrors.Newf(aperrors.ErrInvalidInput, "archive entry %s exceeds size limit", hdr.Name)
			}
			if err := fs.WriteFile(target, data, 0644); err != nil {
				return aperrors.Wrapf(err, aperrors.ErrFileWrite, "failed to extract %s", hdr.Name)
			}
		default:
			// Symlinks, devices and the rest have no business in a pack.
		}
	}
}

// secureJoin joins rel onto destDir, rejecting absolute paths and any
// traversal outside destDir.
func secureJoin(destDir, rel string) (string, error) {
	cleaned := filepath.Clean(filepath.FromSlash(rel))
	if filepath.IsAbs(cleaned) || cleaned == ".." || strings.HasPrefix(cleaned, ".."+string(filepath.Separator)) {
		return "", aperrors.Newf(aperrors.ErrInvalidInput, "archive entry escapes destination: %s", rel)
	}
	return filepath.Join(destDir, cleaned), nil
}
