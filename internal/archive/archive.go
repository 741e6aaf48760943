package archive

import (
	"archive/tar"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"
)

// FixedModTime is stamped on every archive member and the gzip header so
// rebuilding the same revision pair produces byte-identical output.
// 2025-01-01 00:00:00 UTC.
var FixedModTime = time.Unix(1735689600, 0).UTC()

// ErrUnsafePath is returned when an archive member would escape the
// extraction directory.
var ErrUnsafePath = errors.New("archive member path escapes destination")

// Member is a single regular file inside the archive.
type Member struct {
	// Name is the slash-separated path inside the archive.
	Name string
	// Mode carries the permission bits stamped on the member.
	Mode os.FileMode
	// Body is the file content.
	Body []byte
}

// Write produces a deterministic tar.gz at path from the provided members.
// Members are sorted by name; ownership is normalized to root/root and all
// timestamps are fixed. On error the partial output file is removed.
func Write(path string, members []Member) (err error) {
	sorted := make([]Member, len(members))
	copy(sorted, members)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create archive: %w", err)
	}

	defer func() {
		if closeErr := out.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("close archive: %w", closeErr)
		}

		if err != nil {
			_ = os.Remove(path)
		}
	}()

	gzWriter := gzip.NewWriter(out)
	gzWriter.ModTime = FixedModTime

	tarWriter := tar.NewWriter(gzWriter)

	for _, member := range sorted {
		header := &tar.Header{
			Typeflag: tar.TypeReg,
			Name:     member.Name,
			Mode:     int64(member.Mode.Perm()),
			Size:     int64(len(member.Body)),
			ModTime:  FixedModTime,
			Uid:      0,
			Gid:      0,
			Uname:    "root",
			Gname:    "root",
			Format:   tar.FormatGNU,
		}

		if err = tarWriter.WriteHeader(header); err != nil {
			return fmt.Errorf("write header for %s: %w", member.Name, err)
		}

		if _, err = tarWriter.Write(member.Body); err != nil {
			return fmt.Errorf("write body for %s: %w", member.Name, err)
		}
	}

	if err = tarWriter.Close(); err != nil {
		return fmt.Errorf("finalize tar: %w", err)
	}

	if err = gzWriter.Close(); err != nil {
		return fmt.Errorf("finalize gzip: %w", err)
	}

	return nil
}

// Extract unpacks a tar.gz archive into destDir, preserving member
// permissions. Member paths are validated against directory traversal.
func Extract(archivePath, destDir string) error {
	in, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}

	defer func() {
		_ = in.Close()
	}()

	gzReader, err := gzip.NewReader(in)
	if err != nil {
		return fmt.Errorf("read gzip header: %w", err)
	}

	defer func() {
		_ = gzReader.Close()
	}()

	tarReader := tar.NewReader(gzReader)

	for {
		header, readErr := tarReader.Next()
		if errors.Is(readErr, io.EOF) {
			return nil
		}

		if readErr != nil {
			return fmt.Errorf("read tar entry: %w", readErr)
		}

		target, pathErr := safeJoin(destDir, header.Name)
		if pathErr != nil {
			return pathErr
		}

		switch header.Typeflag {
		case tar.TypeDir:
			if err = os.MkdirAll(target, 0o755); err != nil {
				return fmt.Errorf("create directory %s: %w", header.Name, err)
			}
		case tar.TypeReg:
			if err = writeFile(target, header, tarReader); err != nil {
				return err
			}
		default:
			// Links and specials never appear in packages we produce.
			continue
		}
	}
}

// safeJoin joins an archive member name onto destDir, rejecting traversal.
func safeJoin(destDir, name string) (string, error) {
	cleaned := filepath.Clean(filepath.FromSlash(name))
	if filepath.IsAbs(cleaned) || cleaned == ".." || strings.HasPrefix(cleaned, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%s: %w", name, ErrUnsafePath)
	}

	return filepath.Join(destDir, cleaned), nil
}

// writeFile creates a regular file from a tar entry with the recorded mode.
func writeFile(target string, header *tar.Header, reader io.Reader) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("create parent of %s: %w", header.Name, err)
	}

	file, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, header.FileInfo().Mode().Perm())
	if err != nil {
		return fmt.Errorf("create %s: %w", header.Name, err)
	}

	//nolint:gosec // Package archives are produced by this tool, sizes are bounded.
	if _, err = io.Copy(file, reader); err != nil {
		_ = file.Close()

		return fmt.Errorf("extract %s: %w", header.Name, err)
	}

	if err = file.Close(); err != nil {
		return fmt.Errorf("close %s: %w", header.Name, err)
	}

	return nil
}
