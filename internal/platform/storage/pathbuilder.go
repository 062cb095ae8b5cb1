package storage

import (
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/partshub/api/internal/platform/textutil"
)

// ExportKind captures the report family for storage layout decisions.
type ExportKind string

const (
	KindShipmentAnalysis ExportKind = "shipment-analysis"
)

// PathParams provide the identifiers needed to compose an export object key.
type PathParams struct {
	Prefix    string
	Name      string
	ObjectID  string
	CreatedAt time.Time
	Extension string
}

// PathBuilder composes the object path for a given export kind.
type PathBuilder func(PathParams) (string, error)

var pathBuilders = map[ExportKind]PathBuilder{
	KindShipmentAnalysis: buildShipmentAnalysisPath,
}

// BuildObjectPath resolves the storage object path for the given kind.
func BuildObjectPath(kind ExportKind, params PathParams) (string, error) {
	builder, ok := pathBuilders[kind]
	if !ok {
		return "", fmt.Errorf("storage: unsupported export kind %q", kind)
	}
	return builder(params)
}

// buildShipmentAnalysisPath lays objects out as <prefix>/shipments/YYYY/MM/DD/<slug>-<id>.csv.
func buildShipmentAnalysisPath(params PathParams) (string, error) {
	objectID, err := validateSegment("objectID", params.ObjectID)
	if err != nil {
		return "", err
	}
	if params.CreatedAt.IsZero() {
		return "", fmt.Errorf("storage: createdAt is required")
	}
	prefix, err := validatePrefix(params.Prefix)
	if err != nil {
		return "", err
	}
	ext := strings.TrimPrefix(strings.TrimSpace(params.Extension), ".")
	if ext == "" {
		ext = "csv"
	}
	if _, err := validateSegment("extension", ext); err != nil {
		return "", err
	}

	base := strings.ToLower(objectID)
	if slug := textutil.Slugify(params.Name); slug != "" {
		base = slug + "-" + base
	}
	created := params.CreatedAt.UTC()
	return path.Join(prefix, "shipments", created.Format("2006"), created.Format("01"), created.Format("02"), base+"."+ext), nil
}

func validatePrefix(value string) (string, error) {
	value = strings.Trim(strings.TrimSpace(value), "/")
	if value == "" {
		return "", nil
	}
	for _, segment := range strings.Split(value, "/") {
		if _, err := validateSegment("prefix", segment); err != nil {
			return "", err
		}
	}
	return value, nil
}

func validateSegment(name, value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", fmt.Errorf("storage: %s is required", name)
	}
	if strings.ContainsAny(value, "/\\") {
		return "", fmt.Errorf("storage: %s contains invalid path characters", name)
	}
	if strings.Contains(value, "..") {
		return "", fmt.Errorf("storage: %s contains invalid traversal sequence", name)
	}
	return value, nil
}
