package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"embykeeper/internal/common/fsutil"
	"embykeeper/pkg/types"
)

// ModelExt is the extension of named model files.
const ModelExt = ".traineddata"

// LoadDir scans a directory for *.traineddata files and builds the list of
// named models. Name is the filename without extension; the JSON sidecar
// <name>.json supplies the declared charset. A missing directory yields an
// empty list: nothing has been downloaded yet.
func LoadDir(dir string) ([]types.Model, error) {
	base, err := fsutil.ExpandHome(dir)
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(base)
	if err != nil {
		return nil, fmt.Errorf("abs path: %w", err)
	}
	entries, err := os.ReadDir(abs)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read dir: %w", err)
	}
	var models []types.Model
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(strings.ToLower(name), ModelExt) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		m := types.Model{
			Name:      name[:len(name)-len(ModelExt)],
			Path:      filepath.Join(abs, name),
			SizeBytes: info.Size(),
		}
		if meta, ok := readMeta(filepath.Join(abs, m.Name+".json")); ok {
			m.HasMeta = true
			m.Charset = meta.Charset
		}
		models = append(models, m)
	}
	sort.Slice(models, func(i, j int) bool { return models[i].Name < models[j].Name })
	return models, nil
}

type meta struct {
	Charset string `json:"charset"`
}

func readMeta(p string) (meta, bool) {
	var m meta
	b, err := os.ReadFile(p)
	if err != nil {
		return m, false
	}
	if err := json.Unmarshal(b, &m); err != nil {
		return m, false
	}
	return m, true
}
