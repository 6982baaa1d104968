// Package checkpoint persists per-attribute port datasets between the scrape
// and provisioning phases, so a provisioning retry can start from files
// without re-scraping the gateway.
package checkpoint

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gwprov/internal/logging"
	"gwprov/internal/portdata"
)

// ErrMissing is returned by Load when no checkpoint exists for the attribute.
var ErrMissing = errors.New("checkpoint missing")

// Dir returns the per-gateway checkpoint directory under output.
func Dir(output, gateway string) string {
	return filepath.Join(output, "gw"+gateway)
}

// Path returns the checkpoint file for attr, e.g. <output>/gw101/dataset_imei.json.
func Path(output, gateway string, attr portdata.Attribute) string {
	return filepath.Join(Dir(output, gateway), fmt.Sprintf("dataset_%s.json", attr))
}

// Save writes ds atomically and returns the file path.
func Save(output, gateway string, ds *portdata.Dataset) (string, error) {
	path := Path(output, gateway, ds.Attribute)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("failed to create checkpoint directory: %w", err)
	}

	data, err := json.MarshalIndent(ds, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode %s dataset: %w", ds.Attribute, err)
	}
	data = append(data, '\n')

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("failed to rename temp file: %w", err)
	}

	logging.Store("checkpoint saved: %s (%d/%d ports)", path, ds.Resolved(), portdata.PortCount)
	return path, nil
}

// Load reads the checkpoint for attr. A missing file yields ErrMissing.
func Load(output, gateway string, attr portdata.Attribute) (*portdata.Dataset, error) {
	path := Path(output, gateway, attr)
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", path, ErrMissing)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read checkpoint: %w", err)
	}

	ds := portdata.NewDataset(attr)
	if err := json.Unmarshal(data, ds); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return ds, nil
}

// LoadOrEmpty is Load for the provisioning start-up path: a missing or
// unreadable checkpoint is logged and replaced by an all-null dataset, so
// every port depending on it is skipped.
func LoadOrEmpty(output, gateway string, attr portdata.Attribute) *portdata.Dataset {
	ds, err := Load(output, gateway, attr)
	if err != nil {
		logging.Get(logging.CategoryStore).Warn("no usable %s checkpoint for gateway %s, ports will be skipped: %v",
			attr.Label(), gateway, err)
		return portdata.NewDataset(attr)
	}
	return ds
}
