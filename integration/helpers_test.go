//go:build integration

package integration

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"sync"
	"testing"

	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"oras.land/oras-go/v2/content"
	"oras.land/oras-go/v2/registry/remote"

	sketch "github.com/MaTriXy/Sketch"
)

// --- Registry Container Setup ---

var (
	registryOnce sync.Once
	registryAddr string
	registryErr  error
)

// getRegistry returns the shared registry address, starting the container if needed.
// The container is shared across all tests for performance.
func getRegistry(tb testing.TB) string {
	tb.Helper()

	if os.Getenv("SKIP_DOCKER_TESTS") == "1" {
		tb.Skip("SKIP_DOCKER_TESTS is set")
	}

	registryOnce.Do(func() {
		registryAddr, registryErr = startRegistryContainer(context.Background())
	})

	if registryErr != nil {
		tb.Fatalf("start registry container: %v", registryErr)
	}

	return registryAddr
}

// startRegistryContainer starts a registry:2 container and returns the host:port address.
func startRegistryContainer(ctx context.Context) (string, error) {
	req := testcontainers.ContainerRequest{
		Image:        "registry:2",
		ExposedPorts: []string{"5000/tcp"},
		WaitingFor:   wait.ForHTTP("/v2/").WithPort("5000/tcp").WithStatusCodeMatcher(isOKStatus),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return "", fmt.Errorf("start registry container: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		return "", fmt.Errorf("resolve registry host: %w", err)
	}

	port, err := container.MappedPort(ctx, "5000/tcp")
	if err != nil {
		return "", fmt.Errorf("resolve registry port: %w", err)
	}

	return fmt.Sprintf("%s:%s", host, port.Port()), nil
}

func isOKStatus(status int) bool {
	return status >= 200 && status < 300
}

// pushBlob uploads data as a blob to repository and returns its oci:// URI.
func pushBlob(tb testing.TB, registryAddr, repository, mediaType string, data []byte) string {
	tb.Helper()

	repo, err := remote.NewRepository(registryAddr + "/" + repository)
	require.NoError(tb, err)
	repo.PlainHTTP = true

	var desc ocispec.Descriptor = content.NewDescriptorFromBytes(mediaType, data)
	require.NoError(tb, repo.Push(context.Background(), desc, bytes.NewReader(data)), "push blob")

	return fmt.Sprintf("oci://%s/%s@%s", registryAddr, repository, desc.Digest)
}

// newTestSketch creates a Sketch configured for the local test registry.
func newTestSketch(tb testing.TB, opts ...sketch.Option) *sketch.Sketch {
	tb.Helper()

	// Always use plain HTTP for local registry
	allOpts := append([]sketch.Option{sketch.WithOCIPlainHTTP(true)}, opts...)

	s, err := sketch.New(allOpts...)
	require.NoError(tb, err, "create sketch")
	tb.Cleanup(s.Close)

	return s
}
