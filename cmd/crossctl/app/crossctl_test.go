package app

import (
	"bytes"
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	arbitergrpc "github.com/autopeer-io/crossway/internal/crossway/arbiter/server/grpc"
)

func newFakeAgent(t *testing.T) (*httptest.Server, *[]string) {
	t.Helper()
	var posted []string
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/status", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"vehicleID":"v7","mode":"centralized","lane":{"entryPoint":1,"exitPoint":3},` +
			`"state":"entering","vehicleStatus":"CROSSING","granted":true,"holding":false,"since":"2026-01-02T03:04:05Z"}`))
	})
	mux.HandleFunc("GET /v1/neighbors", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`[{"peerID":"v8","address":"10.0.0.8","port":5007,"lane":{"entryPoint":0,"exitPoint":2},` +
			`"status":"REQUESTING","lastSeen":"2026-01-02T03:04:05Z"}]`))
	})
	mux.HandleFunc("GET /v1/episodes", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("limit") != "5" {
			http.Error(w, `{"error":"unexpected limit"}`, http.StatusBadRequest)
			return
		}
		_, _ = w.Write([]byte(`[{"id":"0190a1b2","mode":"adhoc","lane":{"entryPoint":0,"exitPoint":2},` +
			`"requestedAt":"2026-01-02T03:04:05Z","grantedAt":"2026-01-02T03:04:08Z","closedAt":"2026-01-02T03:04:12Z","retries":0}]`))
	})
	mux.HandleFunc("POST /v1/events/{event}", func(w http.ResponseWriter, r *http.Request) {
		posted = append(posted, r.PathValue("event"))
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte(`{}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &posted
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewCrossctlCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestAgentCommands(t *testing.T) {
	srv, posted := newFakeAgent(t)

	tests := []struct {
		name    string
		args    []string
		want    []string
		wantErr bool
	}{
		{name: "status", args: []string{"status"}, want: []string{"VEHICLE", "v7", "centralized", "E1->X3", "entering", "CROSSING", "true"}},
		{name: "neighbors", args: []string{"neighbors"}, want: []string{"PEER", "v8", "10.0.0.8:5007", "E0->X2", "REQUESTING"}},
		{name: "episodes", args: []string{"episodes", "--limit=5"}, want: []string{"0190a1b2", "adhoc", "3s"}},
		{name: "episodes server error", args: []string{"episodes", "--limit=9"}, want: []string{"unexpected limit"}, wantErr: true},
		{name: "event", args: []string{"event", "Approaching"}, want: []string{"event APPROACHING accepted"}},
		{name: "unknown event", args: []string{"event", "warp"}, wantErr: true},
		{name: "event needs argument", args: []string{"event"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := execute(t, append([]string{"--agent", srv.URL}, tt.args...)...)
			if (err != nil) != tt.wantErr {
				t.Fatalf("error = %v, wantErr %t\n%s", err, tt.wantErr, out)
			}
			text := out
			if err != nil {
				text += err.Error()
			}
			for _, w := range tt.want {
				if !strings.Contains(text, w) {
					t.Errorf("output missing %q:\n%s", w, text)
				}
			}
		})
	}

	if len(*posted) != 1 || (*posted)[0] != "approaching" {
		t.Errorf("posted events = %v, want [approaching]", *posted)
	}
}

func TestHealthCommand(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	srv := grpc.NewServer()
	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	addr := lis.Addr().String()

	hs.SetServingStatus(arbitergrpc.ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	out, err := execute(t, "--arbiter", addr, "--timeout", "2s", "health")
	if err == nil || !strings.Contains(out, "NOT_SERVING") {
		t.Fatalf("not serving: err = %v, out = %q", err, out)
	}

	hs.SetServingStatus(arbitergrpc.ServiceName, healthpb.HealthCheckResponse_SERVING)
	out, err = execute(t, "--arbiter", addr, "--timeout", "2s", "health")
	if err != nil || !strings.Contains(out, "SERVING") {
		t.Fatalf("serving: err = %v, out = %q", err, out)
	}
}
