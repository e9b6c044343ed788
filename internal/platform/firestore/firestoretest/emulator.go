// Package firestoretest starts a Firestore emulator container for integration tests.
package firestoretest

import (
	"context"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const emulatorImage = "gcr.io/google.com/cloudsdktool/cloud-sdk:emulators"

// StartEmulator runs the emulator and returns its host:port. The container is terminated when the
// test finishes. Tests are skipped when no container runtime is reachable.
func StartEmulator(t *testing.T) string {
	t.Helper()
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        emulatorImage,
			ExposedPorts: []string{"8080/tcp"},
			Cmd: []string{
				"gcloud", "beta", "emulators", "firestore", "start",
				"--host-port=0.0.0.0:8080",
				"--quiet",
			},
			WaitingFor: wait.ForListeningPort("8080/tcp").WithStartupTimeout(2 * time.Minute),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("start firestore emulator: %v", err)
	}
	t.Cleanup(func() {
		stopCtx, stop := context.WithTimeout(context.Background(), 30*time.Second)
		defer stop()
		_ = container.Terminate(stopCtx)
	})

	endpoint, err := container.PortEndpoint(ctx, "8080/tcp", "")
	if err != nil {
		t.Fatalf("resolve emulator endpoint: %v", err)
	}
	return endpoint
}
