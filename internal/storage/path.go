package storage

import (
	"fmt"
	"path"
	"regexp"
	"strings"
)

var pathComponentPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]{0,127}$`)

// BuildDatasetPath returns the object key holding a dataset's parquet table.
func BuildDatasetPath(datasetID string) (string, error) {
	if err := validatePathComponent(datasetID, "dataset id"); err != nil {
		return "", err
	}
	return path.Join(datasetID, "table.parquet"), nil
}

// BuildSourcePath returns the object key for the file a dataset was uploaded from.
func BuildSourcePath(datasetID, fileName string) (string, error) {
	if err := validatePathComponent(datasetID, "dataset id"); err != nil {
		return "", err
	}
	base := path.Base(strings.ReplaceAll(strings.TrimSpace(fileName), `\`, "/"))
	if base == "." || base == "/" || base == "" {
		base = "upload"
	}
	if err := validatePathComponent(base, "file name"); err != nil {
		return "", err
	}
	return path.Join(datasetID, "source", base), nil
}

func validatePathComponent(value, field string) error {
	if !pathComponentPattern.MatchString(value) {
		return fmt.Errorf("invalid %s: %q", field, value)
	}
	return nil
}
