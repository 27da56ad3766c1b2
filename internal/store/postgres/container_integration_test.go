//go:build integration

package postgres

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	tcPostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

var (
	containerOnce sync.Once
	containerURL  string
	containerErr  error
)

func init() {
	startContainer = func(t *testing.T) string {
		t.Helper()
		// One container per package run; tests clean up their own rows.
		containerOnce.Do(func() {
			ctx := context.Background()
			pgC, err := tcPostgres.RunContainer(ctx,
				testcontainers.WithImage("postgres:15-alpine"),
				tcPostgres.WithDatabase("orderup_test"),
				tcPostgres.WithUsername("orderup"),
				tcPostgres.WithPassword("orderup"),
				testcontainers.WithWaitStrategy(
					wait.ForLog("database system is ready to accept connections").
						WithOccurrence(2).
						WithStartupTimeout(60*time.Second),
				),
			)
			if err != nil {
				containerErr = err
				return
			}
			containerURL, containerErr = pgC.ConnectionString(ctx, "sslmode=disable")
		})
		if containerErr != nil {
			t.Fatalf("start postgres container: %v", containerErr)
		}
		return containerURL
	}
}
