package fetcher

import (
	"archive/zip"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/cwolfbr/indflow/internal/model"
)

// ExpandBundle unpacks one downloaded document bundle and collects its PDF
// and plain-text artifacts. ZIPs may nest further ZIPs; expansion walks a
// worklist with a visited set so a duplicated or self-referencing archive
// can never loop. Per-archive failures become warnings on the bundle, not
// errors: one corrupt attachment must not discard its siblings.
func ExpandBundle(path string) (*model.AttachmentBundle, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, eris.Wrap(err, "bundle: stat download")
	}

	bundle := &model.AttachmentBundle{Root: path}

	if strings.EqualFold(filepath.Ext(path), ".pdf") {
		bundle.PDFs = append(bundle.PDFs, path)
		return bundle, nil
	}

	work := []string{path}
	visited := make(map[string]bool)

	for len(work) > 0 {
		archive := work[0]
		work = work[1:]

		abs, err := filepath.Abs(archive)
		if err != nil {
			abs = archive
		}
		if visited[abs] {
			continue
		}
		visited[abs] = true

		files, err := extractArchive(archive)
		if err != nil {
			if archive == path && len(files) == 0 {
				// Portals sometimes serve a bare document under a .zip or
				// extension-less name. Hand it to the text pass as-is.
				bundle.PDFs = append(bundle.PDFs, path)
			}
			bundle.Warnings = append(bundle.Warnings, err.Error())
		}

		for _, f := range files {
			switch strings.ToLower(filepath.Ext(f)) {
			case ".zip":
				work = append(work, f)
			case ".pdf":
				bundle.PDFs = append(bundle.PDFs, f)
			case ".txt":
				bundle.TextFiles = append(bundle.TextFiles, f)
			}
		}
	}

	return bundle, nil
}

// extractArchive extracts every entry of a ZIP into a directory named after
// the archive (path minus extension). Returns the extracted file paths.
func extractArchive(zipPath string) ([]string, error) {
	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return nil, eris.Wrapf(err, "bundle: open archive %s", filepath.Base(zipPath))
	}
	defer r.Close() //nolint:errcheck

	destDir := strings.TrimSuffix(zipPath, filepath.Ext(zipPath))
	if destDir == zipPath {
		destDir = zipPath + "_extracted"
	}
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return nil, eris.Wrap(err, "bundle: create extraction directory")
	}

	var extracted []string
	for _, f := range r.File {
		path, err := extractEntry(f, destDir)
		if err != nil {
			return extracted, err
		}
		if path != "" {
			extracted = append(extracted, path)
		}
	}

	return extracted, nil
}

// extractEntry extracts a single zip.File to the destination directory.
// Returns the extracted file path, or empty string for directories.
func extractEntry(f *zip.File, destDir string) (string, error) {
	// Sanitize against zip slip
	destPath := filepath.Join(destDir, f.Name)
	if !strings.HasPrefix(filepath.Clean(destPath), filepath.Clean(destDir)+string(os.PathSeparator)) {
		return "", eris.Errorf("bundle: illegal path %q (zip slip attempt)", f.Name)
	}

	if f.FileInfo().IsDir() {
		if err := os.MkdirAll(destPath, 0o755); err != nil {
			return "", eris.Wrap(err, "bundle: create directory")
		}
		return "", nil
	}

	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return "", eris.Wrap(err, "bundle: create parent directory")
	}

	rc, err := f.Open()
	if err != nil {
		return "", eris.Wrap(err, "bundle: open entry")
	}
	defer rc.Close() //nolint:errcheck

	out, err := os.Create(destPath)
	if err != nil {
		return "", eris.Wrap(err, "bundle: create file")
	}
	defer out.Close() //nolint:errcheck

	if _, err := io.Copy(out, rc); err != nil {
		return "", eris.Wrap(err, "bundle: write file")
	}

	return destPath, nil
}
