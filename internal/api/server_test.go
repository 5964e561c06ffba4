package api

import (
	"context"
	"io"
	"log/slog"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"pnlboard/internal/config"
	"pnlboard/internal/domain"
	"pnlboard/internal/feed"
)

type staticFetcher []domain.ProfitRecord

func (f staticFetcher) Fetch(context.Context, domain.Source) ([]domain.ProfitRecord, error) {
	return f, nil
}

func listen(t *testing.T) net.Listener {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	return ln
}

func TestServeHealthFollowsReadiness(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	datasets := feed.NewDatasets(staticFetcher{{Date: "2025-05-01", Hour: 3, Profit: 10}}, log)
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	srv := NewServer(config.Server{ShutdownTimeoutSec: 2}, handler, datasets, 0, log)

	httpLn, grpcLn := listen(t), listen(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, httpLn, grpcLn) }()

	conn, err := grpc.NewClient(grpcLn.Addr().String(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	defer conn.Close()
	client := healthpb.NewHealthClient(conn)

	check := func(service string) healthpb.HealthCheckResponse_ServingStatus {
		rctx, rcancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer rcancel()
		resp, err := client.Check(rctx, &healthpb.HealthCheckRequest{Service: service})
		require.NoError(t, err)
		return resp.GetStatus()
	}

	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, check(""))

	require.NoError(t, datasets.ReloadAll(context.Background()))
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, srv.UpdateHealth())
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, check(""))
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, check(ServiceName))

	resp, err := http.Get("http://" + httpLn.Addr().String() + "/anything")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusTeapot, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}

func TestServeWithoutGRPC(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	datasets := feed.NewDatasets(staticFetcher{}, log)
	srv := NewServer(config.Server{}, http.NotFoundHandler(), datasets, time.Hour, log)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, listen(t), nil) }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}
