package chat

import (
	"fmt"
	"mime"
	"os"
	"path/filepath"

	"github.com/ChattingLord/roomlink/internal/utils"
)

// Attachment is a file carried inline in a chat message.
type Attachment struct {
	// Name is the filename (without directory)
	Name string

	// Type is the MIME type of the file (e.g., "application/pdf", "text/plain")
	Type string

	// Size is the file size in bytes
	Size int64

	Data []byte
}

// LoadAttachment reads the file at path. Files over maxSize are rejected
// before anything is read.
func LoadAttachment(path string, maxSize int64) (*Attachment, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to get absolute path: %w", path, err)
	}

	stat, err := os.Stat(absPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%s: file does not exist", path)
		}
		return nil, fmt.Errorf("%s: failed to stat file: %w", path, err)
	}

	if stat.IsDir() {
		return nil, fmt.Errorf("%s: is a directory", path)
	}

	if stat.Size() > maxSize {
		return nil, fmt.Errorf("%w: %s is %s, limit is %s", ErrFileTooLarge,
			stat.Name(), utils.FormatSize(stat.Size()), utils.FormatSize(maxSize))
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("%s: cannot read file (check permissions): %w", path, err)
	}

	return &Attachment{
		Name: filepath.Base(absPath),
		Type: mimeType(absPath),
		Size: int64(len(data)),
		Data: data,
	}, nil
}

// Save writes the attachment into dir without overwriting existing files and
// returns the path written.
func (a *Attachment) Save(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}

	path := utils.UniqueFilename(filepath.Join(dir, filepath.Base(a.Name)))
	if err := os.WriteFile(path, a.Data, 0o644); err != nil {
		return "", err
	}
	return path, nil
}

// mimeType detects the MIME type from the file extension.
func mimeType(path string) string {
	if t := mime.TypeByExtension(filepath.Ext(path)); t != "" {
		return t
	}
	return "application/octet-stream"
}
