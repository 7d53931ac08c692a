package grpc_test

import (
	"context"
	"net"
	"testing"
	"time"

	corev3 "github.com/envoyproxy/go-control-plane/envoy/config/core/v3"
	extprocv3 "github.com/envoyproxy/go-control-plane/envoy/service/ext_proc/v3"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"

	"github.com/pandora-labs/extproc-gateway/internal/extproc"
	"github.com/pandora-labs/extproc-gateway/internal/observability"
	grpcTransport "github.com/pandora-labs/extproc-gateway/internal/transport/grpc"
)

func dialServer(t *testing.T, srv extprocv3.ExternalProcessorServer) (extprocv3.ExternalProcessorClient, func()) {
	t.Helper()

	lis := bufconn.Listen(1024 * 1024)
	gs := grpc.NewServer()
	extprocv3.RegisterExternalProcessorServer(gs, srv)

	go gs.Serve(lis)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)

	client := extprocv3.NewExternalProcessorClient(conn)
	cleanup := func() {
		conn.Close()
		gs.Stop()
	}
	return client, cleanup
}

func requestHeadersReq() *extprocv3.ProcessingRequest {
	return &extprocv3.ProcessingRequest{
		Request: &extprocv3.ProcessingRequest_RequestHeaders{
			RequestHeaders: &extprocv3.HttpHeaders{
				Headers: &corev3.HeaderMap{
					Headers: []*corev3.HeaderValue{
						{Key: ":method", Value: "GET"},
						{Key: ":path", Value: "/widgets"},
					},
				},
			},
		},
	}
}

func TestServer_Process_BaseProcessorContinues(t *testing.T) {
	logger := observability.NewLogger("test", "extproc-gateway-test")
	srv := grpcTransport.NewServer(extproc.NewBaseProcessor(), nil, logger)

	client, cleanup := dialServer(t, srv)
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	stream, err := client.Process(ctx)
	require.NoError(t, err)

	require.NoError(t, stream.Send(requestHeadersReq()))

	resp, err := stream.Recv()
	require.NoError(t, err)
	require.NotNil(t, resp.GetRequestHeaders())

	require.NoError(t, stream.CloseSend())
}
