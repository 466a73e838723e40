package redact

import (
	"fmt"
	"os"
	"path/filepath"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

const (
	encodingUTF8   = "utf-8"
	encodingLatin1 = "iso-8859-1"
)

// readSource reads a text or code file. Content that is not valid UTF-8 is
// decoded as ISO-8859-1.
func readSource(path string, maxBytes int64) (string, string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", "", invalidInput("stat %s: %v", path, err)
	}
	if maxBytes > 0 && info.Size() > maxBytes {
		return "", "", invalidInput("file size %d exceeds limit %d bytes", info.Size(), maxBytes)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", "", invalidInput("reading %s: %v", path, err)
	}
	if utf8.Valid(raw) {
		return string(raw), encodingUTF8, nil
	}
	decoded, err := charmap.ISO8859_1.NewDecoder().Bytes(raw)
	if err != nil {
		return "", "", invalidInput("decoding %s: %v", path, err)
	}
	return string(decoded), encodingLatin1, nil
}

// encodeOutput converts content back to the source file's encoding.
func encodeOutput(content, enc string) ([]byte, error) {
	if enc != encodingLatin1 {
		return []byte(content), nil
	}
	out, err := charmap.ISO8859_1.NewEncoder().Bytes([]byte(content))
	if err != nil {
		return nil, fmt.Errorf("encoding output as %s: %w", enc, err)
	}
	return out, nil
}

// writeFileAtomic writes data to a temp file next to path and renames it
// into place, so readers never see a partial file.
func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return err
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		cleanup()
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return err
	}
	return nil
}
