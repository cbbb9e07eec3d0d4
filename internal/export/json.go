package export

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/ppiankov/kubeprobe/internal/checker"
	"gopkg.in/yaml.v3"
)

// ReportExport wraps the report with metadata and a summary.
type ReportExport struct {
	Metadata ExportMetadata       `json:"metadata" yaml:"metadata"`
	Summary  checker.CycleSummary `json:"summary" yaml:"summary"`
	Report   *checker.CycleReport `json:"report" yaml:"report"`
}

func wrap(report *checker.CycleReport, metadata ExportMetadata) ReportExport {
	return ReportExport{
		Metadata: metadata,
		Summary:  report.Summary(),
		Report:   report,
	}
}

// exportJSON exports the report as indented JSON with metadata.
func exportJSON(report *checker.CycleReport, metadata ExportMetadata, w io.Writer) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(wrap(report, metadata))
}

// exportYAML exports the report as YAML with metadata.
func exportYAML(report *checker.CycleReport, metadata ExportMetadata, w io.Writer) error {
	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)
	if err := encoder.Encode(wrap(report, metadata)); err != nil {
		return fmt.Errorf("encode yaml: %w", err)
	}
	return encoder.Close()
}
