// Package storage keeps uploaded documents on local disk and describes them
// the way a hosted object store would.
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

const DefaultFolder = "my-documents"

// sniffLen is how much of an upload is inspected to identify its type.
const sniffLen = 512

var (
	ErrEmptyFile       = errors.New("file is empty")
	ErrTooLarge        = errors.New("file exceeds the upload limit")
	ErrUnsupportedType = errors.New("only PDF, PNG and JPEG documents are accepted")
	ErrNotFound        = errors.New("document not found")

	unsafeFolderChars = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)
)

// documentTypes maps the accepted sniffed content types to the extension
// files are stored with.
var documentTypes = map[string]string{
	"application/pdf": ".pdf",
	"image/png":       ".png",
	"image/jpeg":      ".jpg",
}

// allowedNames are the filename extensions accepted on upload. A name
// without an extension is identified by content alone.
var allowedNames = map[string]bool{
	"":      true,
	".pdf":  true,
	".png":  true,
	".jpg":  true,
	".jpeg": true,
}

// Object describes a stored document.
type Object struct {
	PublicID         string    `json:"public_id"`
	SecureURL        string    `json:"secure_url"`
	Bytes            int64     `json:"bytes"`
	Format           string    `json:"format"`
	Folder           string    `json:"folder"`
	OriginalFilename string    `json:"original_filename"`
	CreatedAt        time.Time `json:"created_at"`
}

type DiskStore struct {
	root     string
	baseURL  string
	maxBytes int64
}

// NewDiskStore creates root if needed. baseURL is the public prefix under
// which root is served; maxBytes of zero means unlimited.
func NewDiskStore(root, baseURL string, maxBytes int64) (*DiskStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create upload directory %s: %w", root, err)
	}
	return &DiskStore{
		root:     root,
		baseURL:  strings.TrimRight(baseURL, "/"),
		maxBytes: maxBytes,
	}, nil
}

// Save writes r under folder with a generated name. The stored extension
// follows the sniffed content, never the uploaded name.
func (s *DiskStore) Save(ctx context.Context, folder, filename string, r io.Reader) (Object, error) {
	if err := ctx.Err(); err != nil {
		return Object{}, err
	}

	base := filepath.Base(filename)
	if !allowedNames[strings.ToLower(filepath.Ext(base))] {
		return Object{}, ErrUnsupportedType
	}

	head := make([]byte, sniffLen)
	n, err := io.ReadFull(r, head)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return Object{}, fmt.Errorf("failed to read upload: %w", err)
	}
	if n == 0 {
		return Object{}, ErrEmptyFile
	}
	head = head[:n]
	ext, ok := documentTypes[contentType(head)]
	if !ok {
		return Object{}, ErrUnsupportedType
	}

	folder = sanitizeFolder(folder)
	id := uuid.NewString()

	dir := filepath.Join(s.root, folder)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Object{}, fmt.Errorf("failed to create folder: %w", err)
	}

	dest := filepath.Join(dir, id+ext)
	f, err := os.OpenFile(dest, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return Object{}, fmt.Errorf("failed to create file: %w", err)
	}

	src := io.MultiReader(bytes.NewReader(head), r)
	if s.maxBytes > 0 {
		src = io.LimitReader(src, s.maxBytes+1)
	}
	written, err := io.Copy(f, src)
	closeErr := f.Close()
	switch {
	case err != nil:
		os.Remove(dest)
		return Object{}, fmt.Errorf("failed to write file: %w", err)
	case closeErr != nil:
		os.Remove(dest)
		return Object{}, fmt.Errorf("failed to close file: %w", closeErr)
	case s.maxBytes > 0 && written > s.maxBytes:
		os.Remove(dest)
		return Object{}, ErrTooLarge
	}

	publicID := path.Join(folder, id)
	return Object{
		PublicID:         publicID,
		SecureURL:        s.baseURL + "/" + publicID + ext,
		Bytes:            written,
		Format:           strings.TrimPrefix(ext, "."),
		Folder:           folder,
		OriginalFilename: strings.TrimSuffix(base, filepath.Ext(base)),
		CreatedAt:        time.Now().UTC(),
	}, nil
}

// ReadURL loads the document a SecureURL of this store points at. ok is
// false when fileURL is not under the store's base URL.
func (s *DiskStore) ReadURL(fileURL string) (data []byte, ok bool, err error) {
	if s.baseURL == "" || !strings.HasPrefix(fileURL, s.baseURL+"/") {
		return nil, false, nil
	}

	rel := strings.TrimPrefix(fileURL, s.baseURL+"/")
	if i := strings.IndexAny(rel, "?#"); i >= 0 {
		rel = rel[:i]
	}
	rel = strings.TrimPrefix(path.Clean("/"+rel), "/")
	if rel == "" {
		return nil, true, ErrNotFound
	}

	f, err := os.OpenInRoot(s.root, filepath.FromSlash(rel))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, true, ErrNotFound
		}
		return nil, true, fmt.Errorf("failed to open document: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, true, fmt.Errorf("failed to stat document: %w", err)
	}
	if info.IsDir() {
		return nil, true, ErrNotFound
	}

	data, err = io.ReadAll(f)
	if err != nil {
		return nil, true, fmt.Errorf("failed to read document: %w", err)
	}
	return data, true, nil
}

func sanitizeFolder(folder string) string {
	folder = strings.Trim(unsafeFolderChars.ReplaceAllString(strings.TrimSpace(folder), "-"), "-")
	if folder == "" {
		return DefaultFolder
	}
	return folder
}

func contentType(head []byte) string {
	ctype := http.DetectContentType(head)
	if i := strings.IndexByte(ctype, ';'); i >= 0 {
		ctype = ctype[:i]
	}
	return ctype
}
