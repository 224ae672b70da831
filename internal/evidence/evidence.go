// Package evidence writes forensic page captures for later manual inspection.
package evidence

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

const stampLayout = "20060102-150405"

// Paths of one saved capture; both files share the timestamp prefix.
type Paths struct {
	Stamp string
	HTML  string
	PNG   string
}

type Writer struct {
	Dir string
	Now func() time.Time // nil means time.Now
}

func NewWriter(dir string) *Writer {
	return &Writer{Dir: dir}
}

// Save writes <Dir>/<stamp>.txt with the page HTML and <Dir>/<stamp>.png with
// the screenshot, creating Dir if needed. A second capture within the same
// second gets a -1, -2, ... suffix instead of overwriting the first.
func (w *Writer) Save(html string, png []byte) (Paths, error) {
	now := time.Now
	if w.Now != nil {
		now = w.Now
	}
	base := now().Format(stampLayout)

	if err := os.MkdirAll(w.Dir, 0o755); err != nil {
		return Paths{}, fmt.Errorf("evidence dir: %w", err)
	}

	var (
		p Paths
		f *os.File
	)
	for n := 0; ; n++ {
		stamp := base
		if n > 0 {
			stamp = fmt.Sprintf("%s-%d", base, n)
		}
		p = Paths{
			Stamp: stamp,
			HTML:  filepath.Join(w.Dir, stamp+".txt"),
			PNG:   filepath.Join(w.Dir, stamp+".png"),
		}
		var err error
		f, err = os.OpenFile(p.HTML, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err == nil {
			break
		}
		if !errors.Is(err, fs.ErrExist) {
			return Paths{}, fmt.Errorf("write html: %w", err)
		}
	}

	_, err := f.WriteString(html)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return Paths{}, fmt.Errorf("write html: %w", err)
	}
	if err := os.WriteFile(p.PNG, png, 0o644); err != nil {
		return Paths{}, fmt.Errorf("write screenshot: %w", err)
	}
	return p, nil
}
