package metrics

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/AmbrSb/LServer/internal/stats"
	"github.com/AmbrSb/LServer/server"
)

type fakeSource struct {
	samples map[server.Handle]stats.Sample
	infos   map[server.Handle]stats.ServerInfo
}

func (f fakeSource) GetStats() map[server.Handle]stats.Sample           { return f.samples }
func (f fakeSource) GetServersInfo() map[server.Handle]stats.ServerInfo { return f.infos }

func TestCollectorExportsServerAndContextMetrics(t *testing.T) {
	source := fakeSource{
		samples: map[server.Handle]stats.Sample{
			1: {
				AcceptedCnt: 42,
				SessionPoolStats: stats.PoolStats{
					NumItemsTotal:    10,
					NumItemsInFlight: 3,
				},
				SessionStatsDelta: stats.SessionStatsDelta{
					TransactionsCnt: 7,
					BytesReceived:   1024,
					BytesSent:       2048,
				},
			},
		},
		infos: map[server.Handle]stats.ServerInfo{
			1: {
				Contexts: []stats.ContextInfo{
					{Index: 0, ThreadsCnt: 4, ActiveSessionsCnt: 2, StrandPoolSize: 8, StrandPoolInFlight: 1, Active: true},
				},
			},
		},
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(newCollector(source))

	families, err := registry.Gather()
	if err != nil {
		t.Fatalf("Gather failed: %v", err)
	}

	got := gaugeValue(t, families, "lserver_server_accepted_total")
	if got != 42 {
		t.Fatalf("accepted_total = %v, want 42", got)
	}
	got = gaugeValue(t, families, "lserver_context_sessions")
	if got != 2 {
		t.Fatalf("context_sessions = %v, want 2", got)
	}
	got = gaugeValue(t, families, "lserver_context_active")
	if got != 1 {
		t.Fatalf("context_active = %v, want 1", got)
	}
}

func gaugeValue(t *testing.T, families []*dto.MetricFamily, name string) float64 {
	t.Helper()
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
		if len(fam.Metric) == 0 {
			t.Fatalf("metric family %q has no samples", name)
		}
		m := fam.Metric[0]
		if c := m.GetCounter(); c != nil {
			return c.GetValue()
		}
		if g := m.GetGauge(); g != nil {
			return g.GetValue()
		}
		t.Fatalf("metric family %q is neither counter nor gauge", name)
	}
	t.Fatalf("metric family %q not found among %d families", name, len(families))
	return 0
}

func TestHandleLabelFormatsAsDecimal(t *testing.T) {
	if got := handleLabel(server.Handle(7)); !strings.EqualFold(got[0], "7") {
		t.Fatalf("handleLabel(7) = %v, want [\"7\"]", got)
	}
}
