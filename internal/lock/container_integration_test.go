//go:build integration

package lock

import (
	"context"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	tcRedis "github.com/testcontainers/testcontainers-go/modules/redis"
)

func init() {
	startRedis = func(t *testing.T) string {
		t.Helper()
		ctx := context.Background()
		rdC, err := tcRedis.RunContainer(ctx, testcontainers.WithImage("redis:7-alpine"))
		if err != nil {
			t.Fatalf("start redis container: %v", err)
		}
		t.Cleanup(func() { _ = rdC.Terminate(ctx) })

		uri, err := rdC.ConnectionString(ctx)
		if err != nil {
			t.Fatalf("redis connection string: %v", err)
		}
		opts, err := redis.ParseURL(uri)
		if err != nil {
			t.Fatalf("parse redis url %q: %v", uri, err)
		}
		return opts.Addr
	}
}
