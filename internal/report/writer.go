package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/veracity/internal/model"
)

// Writer persists reports as one pretty-printed JSON file per calendar month.
type Writer struct {
	dir   string
	locks sync.Map // path -> *sync.Mutex
}

// NewWriter creates a Writer rooted at dir. The directory is created on the
// first write.
func NewWriter(dir string) *Writer {
	return &Writer{dir: dir}
}

// PathFor returns the report file for the month containing t.
func (w *Writer) PathFor(t time.Time) string {
	return filepath.Join(w.dir, fmt.Sprintf("report_%04d_%02d.json", t.Year(), int(t.Month())))
}

// Write stores r under its generation month, replacing any earlier snapshot
// for that month. The file is replaced atomically so readers see either the
// old or the new report.
func (w *Writer) Write(r *model.Report) (string, error) {
	unlock := w.Lock(r.Timestamp.Time)
	defer unlock()
	return w.write(r)
}

// Lock holds the report file for the month containing t until the returned
// function is called. Callers that read the log and then write must hold it
// for the whole sequence so the newest snapshot is written last.
func (w *Writer) Lock(t time.Time) (unlock func()) {
	mu := w.lockFor(w.PathFor(t))
	mu.Lock()
	return mu.Unlock
}

// write persists r. The caller holds the lock for its month.
func (w *Writer) write(r *model.Report) (string, error) {
	path := w.PathFor(r.Timestamp.Time)

	data, err := json.MarshalIndent(r, "", "    ")
	if err != nil {
		return "", eris.Wrap(err, "report: marshal")
	}
	data = append(data, '\n')

	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return "", eris.Wrapf(err, "report: create dir %s", w.dir)
	}

	tmp, err := os.CreateTemp(w.dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return "", eris.Wrap(err, "report: create temp file")
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()        //nolint:errcheck
		os.Remove(tmpName) //nolint:errcheck
		return "", eris.Wrapf(err, "report: write %s", tmpName)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName) //nolint:errcheck
		return "", eris.Wrapf(err, "report: close %s", tmpName)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName) //nolint:errcheck
		return "", eris.Wrapf(err, "report: replace %s", path)
	}
	return path, nil
}

// Read loads the persisted report for the month containing t. It returns
// false when no report has been written for that month.
func (w *Writer) Read(t time.Time) (*model.Report, bool, error) {
	path := w.PathFor(t)
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, eris.Wrapf(err, "report: read %s", path)
	}

	var r model.Report
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, false, eris.Wrapf(err, "report: decode %s", path)
	}
	return &r, true, nil
}

func (w *Writer) lockFor(path string) *sync.Mutex {
	mu, _ := w.locks.LoadOrStore(path, &sync.Mutex{})
	return mu.(*sync.Mutex)
}
