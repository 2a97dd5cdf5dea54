package classifier

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// ErrNoMetadata is returned when no model metadata document is configured.
var ErrNoMetadata = eris.New("classifier: model metadata not found")

// Metadata is the free-form model description served by /model-info.
type Metadata map[string]any

// LoadMetadata reads a JSON or YAML metadata document. YAML is chosen by a
// .yaml or .yml extension.
func LoadMetadata(path string) (Metadata, error) {
	if path == "" {
		return nil, ErrNoMetadata
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, eris.Wrapf(ErrNoMetadata, "path %s", path)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "classifier: read metadata %s", path)
	}

	var md Metadata
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &md)
	default:
		err = json.Unmarshal(data, &md)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "classifier: decode metadata %s", path)
	}
	if md == nil {
		md = Metadata{}
	}
	return md, nil
}
