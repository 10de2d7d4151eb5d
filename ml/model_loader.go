package ml

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// modelEnvelope is the on-disk form of a regressor: a type tag plus the
// type-specific parameters.
type modelEnvelope struct {
	Type   string          `json:"type"`
	Params json.RawMessage `json:"params"`
}

// SaveModel writes model to path atomically.
func SaveModel(path string, model Regressor) error {
	if model.NumFeatures() == 0 {
		return ErrNotTrained
	}
	params, err := json.Marshal(model)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(modelEnvelope{Type: model.Type(), Params: params})
	if err != nil {
		return err
	}
	return WriteFileAtomic(path, payload, 0o644)
}

// LoadModel restores a regressor saved by SaveModel.
func LoadModel(path string) (Regressor, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var env modelEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, fmt.Errorf("decode model %s: %w", path, err)
	}

	var model Regressor
	switch env.Type {
	case ModelTypeLinear:
		model = &LinearRegression{}
	case ModelTypeRandomForest:
		model = &RandomForest{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownModelType, env.Type)
	}
	if err := json.Unmarshal(env.Params, model); err != nil {
		return nil, fmt.Errorf("decode %s params: %w", env.Type, err)
	}
	if model.NumFeatures() == 0 {
		return nil, fmt.Errorf("model %s: %w", path, ErrNotTrained)
	}
	return model, nil
}

// WriteFileAtomic writes data to a temporary file in the target directory and
// renames it over path, so readers never observe a partial file.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	cleanup := func() { os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return err
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		cleanup()
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return err
	}
	return nil
}
