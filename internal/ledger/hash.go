package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/seanblong/docqa/pkg/models"
)

// hashBufferSize is the fixed read size used while hashing.
const hashBufferSize = 4096

// HashFile returns the hex SHA-256 of the full contents of the file at path.
// Read failures wrap models.ErrFileRead.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("%w: open %s: %w", models.ErrFileRead, path, err)
	}
	defer f.Close()

	sum, err := HashReader(f)
	if err != nil {
		return "", fmt.Errorf("%w: read %s: %w", models.ErrFileRead, path, err)
	}
	return sum, nil
}

// HashReader streams r through SHA-256 until EOF.
func HashReader(r io.Reader) (string, error) {
	h := sha256.New()
	buf := make([]byte, hashBufferSize)
	if _, err := io.CopyBuffer(h, onlyReader{r}, buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// onlyReader hides WriterTo so io.CopyBuffer honours the buffer size.
type onlyReader struct{ io.Reader }
