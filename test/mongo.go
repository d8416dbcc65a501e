package test

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"strings"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	// MongoPort is the port exposed by the MongoDB test container.
	MongoPort = "27017"
	// MongoReplicaSet is the name of the single node replica set. Change
	// streams are only available on replica sets.
	MongoReplicaSet = "rs0"
)

// StartMongoContainer starts a single node MongoDB replica set and waits
// until it accepts writes. Use MongoURI to get its connection string.
func StartMongoContainer(ctx context.Context) (testcontainers.Container, error) {
	container, err := testcontainers.GenericContainer(ctx,
		testcontainers.GenericContainerRequest{
			ContainerRequest: testcontainers.ContainerRequest{
				Image:        "mongo:7",
				Cmd:          []string{"--replSet", MongoReplicaSet, "--bind_ip_all"},
				ExposedPorts: []string{MongoPort + "/tcp"},
				WaitingFor: wait.ForAll(
					wait.ForLog("Waiting for connections"),
					wait.ForListeningPort(nat.Port(MongoPort+"/tcp")),
				),
			},
			Started: true,
		})
	if err != nil {
		return nil, err
	}
	initiate := fmt.Sprintf("rs.initiate({_id: '%s', members: [{_id: 0, host: 'localhost:%s'}]})",
		MongoReplicaSet, MongoPort)
	if _, _, err := container.Exec(ctx, []string{"mongosh", "--quiet", "--eval", initiate}); err != nil {
		return nil, fmt.Errorf("cannot initiate replica set: %w", err)
	}
	deadline := time.Now().Add(30 * time.Second)
	for time.Now().Before(deadline) {
		code, out, err := container.Exec(ctx, []string{"mongosh", "--quiet", "--eval", "db.hello().isWritablePrimary"})
		if err == nil && code == 0 && out != nil {
			if res, err := io.ReadAll(out); err == nil && strings.Contains(string(res), "true") {
				return container, nil
			}
		}
		time.Sleep(500 * time.Millisecond)
	}
	return nil, fmt.Errorf("replica set %s did not elect a primary", MongoReplicaSet)
}

// MongoURI returns the connection string of a container started with
// StartMongoContainer. The replica set advertises an address only reachable
// from inside the container, so the client connects directly.
func MongoURI(ctx context.Context, container testcontainers.Container) (string, error) {
	host, err := container.Host(ctx)
	if err != nil {
		return "", err
	}
	port, err := container.MappedPort(ctx, nat.Port(MongoPort+"/tcp"))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("mongodb://%s:%s/?directConnection=true", host, port.Port()), nil
}

// RandomDatabaseName returns a database name unique enough for a test run.
func RandomDatabaseName() string {
	return fmt.Sprintf("portal-test-%d", rand.Intn(1000000))
}
