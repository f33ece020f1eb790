package pdf

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"htmlpdf-service/internal/models"
)

const indexFileName = "_index.json"

// Index is the JSON array catalog stored at <pdfRoot>/_index.json.
//
// Appends are serialized within this process and land via rename, but the
// file is still read-modify-written: two processes appending at once can lose
// an entry. List reconciles against the directory tree for that reason.
type Index struct {
	mu   sync.Mutex
	path string
}

func NewIndex(pdfRoot string) *Index {
	return &Index{path: filepath.Join(pdfRoot, indexFileName)}
}

// Path returns the index file location.
func (i *Index) Path() string {
	return i.path
}

// Load reads all entries. A missing file is an empty index.
func (i *Index) Load() ([]models.PdfIndexEntry, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.loadLocked()
}

func (i *Index) loadLocked() ([]models.PdfIndexEntry, error) {
	raw, err := os.ReadFile(i.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read index: %w", err)
	}
	if len(strings.TrimSpace(string(raw))) == 0 {
		return nil, nil
	}
	var entries []models.PdfIndexEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("decode index: %w", err)
	}
	return entries, nil
}

// Append adds one entry to the index.
func (i *Index) Append(entry models.PdfIndexEntry) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	entries, err := i.loadLocked()
	if err != nil {
		// A corrupt index is replaced; the disk scan still finds older files.
		entries = nil
	}
	entries = append(entries, entry)

	raw, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("encode index: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(i.path), 0o755); err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(i.path), ".index-*.json")
	if err != nil {
		return fmt.Errorf("create index temp: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return fmt.Errorf("write index: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close index temp: %w", err)
	}
	if err := os.Rename(tmp.Name(), i.path); err != nil {
		return fmt.Errorf("replace index: %w", err)
	}
	return nil
}

// scanDisk lists every <pdfRoot>/<YYYYMMDD>/*.pdf file.
func scanDisk(pdfRoot, urlPrefix string) ([]models.PdfIndexEntry, error) {
	dirs, err := os.ReadDir(pdfRoot)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read pdf root: %w", err)
	}

	var out []models.PdfIndexEntry
	for _, d := range dirs {
		if !d.IsDir() || !isDateKey(d.Name()) {
			continue
		}
		files, err := os.ReadDir(filepath.Join(pdfRoot, d.Name()))
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", d.Name(), err)
		}
		for _, f := range files {
			if f.IsDir() || !strings.EqualFold(filepath.Ext(f.Name()), ".pdf") {
				continue
			}
			info, err := f.Info()
			// Empty files are reservations still being printed.
			if err != nil || info.Size() == 0 {
				continue
			}
			out = append(out, models.PdfIndexEntry{
				URL:       fileURL(urlPrefix, d.Name(), f.Name()),
				FileName:  f.Name(),
				Size:      info.Size(),
				DateKey:   d.Name(),
				CreatedAt: info.ModTime(),
			})
		}
	}
	return out, nil
}

// reconcile unions index and disk entries by URL, preferring index records,
// filters by template id when set, and sorts newest first.
func reconcile(indexed, scanned []models.PdfIndexEntry, templateID string) []models.PdfIndexEntry {
	byURL := make(map[string]models.PdfIndexEntry, len(indexed)+len(scanned))
	for _, e := range scanned {
		byURL[e.URL] = e
	}
	for _, e := range indexed {
		byURL[e.URL] = e
	}

	out := make([]models.PdfIndexEntry, 0, len(byURL))
	for _, e := range byURL {
		if templateID != "" && e.TemplateID != templateID {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(a, b int) bool {
		if out[a].CreatedAt.Equal(out[b].CreatedAt) {
			return out[a].URL < out[b].URL
		}
		return out[a].CreatedAt.After(out[b].CreatedAt)
	})
	return out
}

func fileURL(prefix, dateKey, fileName string) string {
	return path.Join("/", prefix, pdfDirName, dateKey, fileName)
}

func isDateKey(s string) bool {
	if len(s) != 8 {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
