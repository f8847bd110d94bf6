package digest

import (
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/afero"
)

// ChunkSize is the read size used while hashing, so memory use stays
// constant regardless of file size.
const ChunkSize = 1 << 20

type Sum [md5.Size]byte

func (s Sum) String() string {
	return hex.EncodeToString(s[:])
}

// File returns the MD5 digest of the file at path.
func File(fs afero.Fs, path string) (Sum, error) {
	var sum Sum

	f, err := fs.Open(path)
	if err != nil {
		return sum, fmt.Errorf("failed to open %s for digest: %w", path, err)
	}

	defer func(f afero.File) {
		_ = f.Close()
	}(f)

	h := md5.New()
	if err := copyChunks(h, f); err != nil {
		return sum, fmt.Errorf("failed to read %s for digest: %w", path, err)
	}

	copy(sum[:], h.Sum(nil))
	return sum, nil
}

func copyChunks(w io.Writer, r io.Reader) error {
	buf := make([]byte, ChunkSize)

	for {
		n, err := r.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				return werr
			}
		}

		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
	}
}
