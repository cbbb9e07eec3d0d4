package export

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/ppiankov/kubeprobe/internal/checker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func sampleReport() *checker.CycleReport {
	return &checker.CycleReport{
		StartedAt: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
		Duration:  1500 * time.Millisecond,
		Services: []checker.ServiceReport{
			{
				Service:   "web",
				Namespace: "default",
				Hostname:  "web.default.svc.cluster.local",
				ClusterIP: "10.0.0.5",
				Ports: []checker.PortResult{
					{Port: 80, Hostname: true, IP: false},
					{Port: 443, Hostname: true, IP: true},
				},
			},
			{
				Service:   "db",
				Namespace: "data",
				Hostname:  "db.data.svc.cluster.local",
				Ports:     []checker.PortResult{{Port: 5432, Hostname: true, IPSkipped: true}},
			},
			{
				Service:   "empty",
				Namespace: "default",
				Hostname:  "empty.default.svc.cluster.local",
				Ports:     []checker.PortResult{},
			},
		},
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		input   string
		want    Format
		wantErr bool
	}{
		{"", FormatText, false},
		{"text", FormatText, false},
		{"JSON", FormatJSON, false},
		{"yaml", FormatYAML, false},
		{"yml", FormatYAML, false},
		{"html", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseFormat(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  Format
	}{
		{"json extension", "report.json", FormatJSON},
		{"yaml extension", "report.yaml", FormatYAML},
		{"yml extension", "report.yml", FormatYAML},
		{"text extension", "report.txt", FormatText},
		{"no extension", "report", FormatText},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectFormat(tt.input))
		})
	}
}

func TestExportJSON(t *testing.T) {
	var buf bytes.Buffer
	exporter := Exporter{
		Format: FormatJSON,
		Metadata: ExportMetadata{
			GeneratedAt:      time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
			KubeprobeVersion: "1.2.3",
			ClusterDomain:    "svc.cluster.local",
		},
	}

	require.NoError(t, exporter.Export(sampleReport(), &buf))

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))

	metadata := decoded["metadata"].(map[string]interface{})
	assert.Equal(t, "1.2.3", metadata["kubeprobeVersion"])

	summary := decoded["summary"].(map[string]interface{})
	assert.Equal(t, float64(3), summary["services"])
	assert.Equal(t, float64(1), summary["ip_failures"])

	report := decoded["report"].(map[string]interface{})
	services := report["services"].([]interface{})
	require.Len(t, services, 3)
	web := services[0].(map[string]interface{})
	assert.Equal(t, "10.0.0.5", web["ip_address"])
}

func TestExportYAML(t *testing.T) {
	var buf bytes.Buffer
	exporter := Exporter{Format: FormatYAML, Metadata: ExportMetadata{KubeprobeVersion: "1.2.3"}}

	require.NoError(t, exporter.Export(sampleReport(), &buf))

	var decoded struct {
		Metadata ExportMetadata       `yaml:"metadata"`
		Summary  checker.CycleSummary `yaml:"summary"`
	}
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "1.2.3", decoded.Metadata.KubeprobeVersion)
	assert.Equal(t, 3, decoded.Summary.Ports)
	assert.Equal(t, 1, decoded.Summary.IPSkipped)
}

func TestExportText(t *testing.T) {
	var buf bytes.Buffer
	exporter := Exporter{Format: FormatText}

	require.NoError(t, exporter.Export(sampleReport(), &buf))

	out := buf.String()
	assert.Contains(t, out, "web")
	assert.Contains(t, out, "FAIL")
	assert.Contains(t, out, "skipped")
	assert.Contains(t, out, "NO PORTS")
	assert.True(t, strings.Contains(out, "Services: 3 (1 unhealthy)"))
}

func TestExport_NilReport(t *testing.T) {
	exporter := Exporter{Format: FormatJSON}
	assert.Error(t, exporter.Export(nil, &bytes.Buffer{}))
}
