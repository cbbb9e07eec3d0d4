package export

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/ppiankov/kubeprobe/internal/checker"
)

// Format represents the export format type.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
	FormatText Format = "text"
)

// ExportMetadata contains metadata about the export.
type ExportMetadata struct {
	GeneratedAt      time.Time `json:"generatedAt" yaml:"generatedAt"`
	KubeprobeVersion string    `json:"kubeprobeVersion" yaml:"kubeprobeVersion"`
	ClusterDomain    string    `json:"clusterDomain,omitempty" yaml:"clusterDomain,omitempty"`
	Namespace        string    `json:"namespace,omitempty" yaml:"namespace,omitempty"`
}

// Exporter renders cycle reports in various formats.
type Exporter struct {
	Format   Format
	Metadata ExportMetadata
}

// ParseFormat validates a format name. Empty means text.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(s)) {
	case "", FormatText:
		return FormatText, nil
	case FormatJSON:
		return FormatJSON, nil
	case FormatYAML, "yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("unsupported format: %s (must be text, json, or yaml)", s)
	}
}

// DetectFormat detects the export format from the file extension.
func DetectFormat(path string) Format {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".json":
		return FormatJSON
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatText
	}
}

// Export writes the report in the configured format.
func (e *Exporter) Export(report *checker.CycleReport, w io.Writer) error {
	if report == nil {
		return fmt.Errorf("no report to export")
	}

	switch e.Format {
	case FormatJSON:
		return exportJSON(report, e.Metadata, w)
	case FormatYAML:
		return exportYAML(report, e.Metadata, w)
	case FormatText, "":
		return exportText(report, w)
	default:
		return fmt.Errorf("unsupported format: %s", e.Format)
	}
}
