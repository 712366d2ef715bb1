package server

import (
	"context"
	"crypto/tls"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"
)

func startBufServer(t *testing.T) (*Server, healthpb.HealthClient) {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv := NewServer(Config{})

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(lis) }()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		conn.Close()
		require.NoError(t, srv.StopWithTimeout(time.Second))
		require.NoError(t, <-errCh)
	})
	return srv, healthpb.NewHealthClient(conn)
}

func TestHealthServing(t *testing.T) {
	_, client := startBufServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for _, name := range []string{"", ServiceName} {
		resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{Service: name}, grpc.WaitForReady(true))
		require.NoError(t, err)
		assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus())
	}
}

func TestHealthNotServing(t *testing.T) {
	srv, client := startBufServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := client.Check(ctx, &healthpb.HealthCheckRequest{}, grpc.WaitForReady(true))
	require.NoError(t, err)

	srv.SetServing(false)
	resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{Service: ServiceName})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, resp.GetStatus())
}

func TestParseClientAuth(t *testing.T) {
	tests := []struct {
		in   string
		want tls.ClientAuthType
	}{
		{"", tls.NoClientCert},
		{"none", tls.NoClientCert},
		{"request", tls.RequestClientCert},
		{"require", tls.RequireAndVerifyClientCert},
	}
	for _, tt := range tests {
		got, err := parseClientAuth(tt.in)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}
	_, err := parseClientAuth("always")
	assert.Error(t, err)
}

func TestServeFailsWithMissingCertificate(t *testing.T) {
	srv := NewServer(Config{TLS: TLSConfig{Enabled: true, CertFile: "/nonexistent.crt", KeyFile: "/nonexistent.key"}})
	err := srv.Serve(bufconn.Listen(1024))
	assert.ErrorContains(t, err, "failed to load server certificate")
}

func TestStopBeforeServe(t *testing.T) {
	srv := NewServer(Config{})
	assert.NoError(t, srv.StopWithTimeout(time.Second))
}
