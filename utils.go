package dronedet

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	log "github.com/sirupsen/logrus"
)

// imageExtensions are the file extensions (lower case, without the dot) accepted as images.
var imageExtensions = map[string]bool{
	"jpg": true, "jpeg": true, "png": true, "bmp": true, "gif": true, "tif": true, "tiff": true,
}

// filesByExtInDir returns all regular files with file extension ext found directly in directory
// dirPath, sorted by name. All files are returned if ext is empty.
func filesByExtInDir(dirPath, ext string) ([]string, error) {
	entries, err := os.ReadDir(dirPath)
	if err != nil {
		return nil, fmt.Errorf("cannot read directory %q: %w", dirPath, err)
	}

	files := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		// Must be a regular file or a symlink and have the requested extension/suffix.
		if (!e.Type().IsRegular() && e.Type()&os.ModeSymlink == 0) || !strings.HasSuffix(name, ext) {
			continue
		}
		files = append(files, filepath.Join(dirPath, name))
	}
	sort.Strings(files)

	return files, nil
}

// splitPath splits the given file path into the dir name, the base name without extension and the
// extension (without the dot).
func splitPath(path string) (dir, baseNoExt, ext string, err error) {
	dir, file := filepath.Split(path)
	ext = filepath.Ext(file)
	if ext == "" {
		return "", "", "", fmt.Errorf("missing file extension in %q", path)
	}

	dir = strings.TrimSuffix(dir, string(os.PathSeparator))
	baseNoExt = file[0 : len(file)-len(ext)]
	ext = ext[1:]

	return dir, baseNoExt, ext, nil
}

// imageIndex maps image base names without extension to the image file path.
type imageIndex map[string]string

// indexImages lists the images in dirPath. Files without a known image extension are ignored.
func indexImages(dirPath string) (imageIndex, error) {
	files, err := filesByExtInDir(dirPath, "")
	if err != nil {
		return nil, err
	}

	index := make(imageIndex, len(files))
	for _, path := range files {
		_, baseNoExt, ext, err := splitPath(path)
		if err != nil || !imageExtensions[strings.ToLower(ext)] {
			continue
		}
		if prev, ok := index[baseNoExt]; ok {
			log.Warnf("Ambiguous image name %q, using %q", prev, path)
		}
		index[baseNoExt] = path
	}

	return index, nil
}

// lookup returns the image that belongs to the label or annotation file at path.
func (idx imageIndex) lookup(path string) (string, error) {
	_, baseNoExt, _, err := splitPath(path)
	if err != nil {
		return "", err
	}
	imagePath, ok := idx[baseNoExt]
	if !ok {
		return "", fmt.Errorf("no image file for %q", path)
	}
	return imagePath, nil
}

// readLines returns a slice of lines read from the file at path.
func readLines(path string) (lines []string, err error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read file %q: %w", path, err)
	}
	defer closeWithErrCheck(file, &err)

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read %q as lines: %w", path, err)
	}

	return lines, nil
}

// writeLines writes lines to path, each terminated by a newline. The data is written to a
// temporary file first, which then replaces path, so that a failed write leaves no partial file.
func writeLines(path string, lines []string) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-"+filepath.Base(path)+"-*")
	if err != nil {
		return fmt.Errorf("cannot create file for %q: %w", path, err)
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp.Name())
		}
	}()

	w := bufio.NewWriter(tmp)
	for _, l := range lines {
		if _, err = w.WriteString(l); err != nil {
			_ = tmp.Close()
			return err
		}
		if err = w.WriteByte('\n'); err != nil {
			_ = tmp.Close()
			return err
		}
	}
	if err = w.Flush(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	if err = os.Chmod(tmp.Name(), 0644); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// closeWithErrCheck calls c.Close(). If it returns an error, and (*e == nil), e is set to that
// error.
func closeWithErrCheck(c io.Closer, e *error) {
	err := c.Close()
	if err != nil && *e == nil {
		*e = err
	}
}
