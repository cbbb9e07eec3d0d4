package export

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/ppiankov/kubeprobe/internal/checker"
)

// exportText renders one table row per service port followed by a summary line.
func exportText(report *checker.CycleReport, w io.Writer) error {
	table := tablewriter.NewWriter(w)
	table.Header([]string{"Namespace", "Service", "Port", "Hostname", "Cluster IP", "Status"})

	for _, svc := range report.Services {
		if len(svc.Ports) == 0 {
			if err := table.Append([]string{svc.Namespace, svc.Service, "-", "-", "-", "NO PORTS"}); err != nil {
				return err
			}
			continue
		}
		for _, p := range svc.Ports {
			ipLabel := checkLabel(p.IP)
			if p.IPSkipped {
				ipLabel = "skipped"
			}
			status := "✓ OK"
			if !p.Healthy() {
				status = "✗ FAIL"
			}
			if err := table.Append([]string{
				svc.Namespace,
				svc.Service,
				strconv.Itoa(int(p.Port)),
				checkLabel(p.Hostname),
				ipLabel,
				status,
			}); err != nil {
				return err
			}
		}
	}

	if err := table.Render(); err != nil {
		return err
	}

	s := report.Summary()
	_, err := fmt.Fprintf(w, "\nServices: %d (%d unhealthy) | Ports: %d | Hostname failures: %d | IP failures: %d | Took: %s\n",
		s.Services, s.UnhealthyServices, s.Ports, s.HostnameFailures, s.IPFailures, report.Duration.Round(time.Millisecond))
	return err
}

func checkLabel(ok bool) string {
	if ok {
		return "pass"
	}
	return "fail"
}
