package connectors

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"

	"nfce/internal"
)

// MailArchive keeps a copy of every fetched message on disk, named by the
// hash of its content, so a receipt can be parsed again later.
type MailArchive struct {
	dir string
}

func NewMailArchive(dir string) *MailArchive {
	return &MailArchive{dir: dir}
}

func (a *MailArchive) Store(msg internal.FetchedMailMessage) (string, error) {
	sum := sha256.Sum256(msg.Raw)
	hash := hex.EncodeToString(sum[:])

	if err := os.MkdirAll(a.dir, 0o755); err != nil {
		return "", err
	}

	rawPath := filepath.Join(a.dir, hash+".eml")
	if _, err := os.Stat(rawPath); os.IsNotExist(err) {
		if err := os.WriteFile(rawPath, msg.Raw, 0o644); err != nil {
			return "", err
		}
	}
	return rawPath, nil
}
