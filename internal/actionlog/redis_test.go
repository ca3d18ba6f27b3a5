package actionlog

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"
)

// 设置 SIM_TEST_REDIS_ADDR 后才会连接真实的 Redis。
func redisAddr(t *testing.T) string {
	t.Helper()
	addr := os.Getenv("SIM_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("SIM_TEST_REDIS_ADDR not set")
	}
	return addr
}

func TestRedisSinkWriteQueryAndTrim(t *testing.T) {
	ctx := context.Background()
	key := fmt.Sprintf("sim:test:%d", time.Now().UnixNano())
	sink, err := NewRedisSink(ctx, RedisConfig{Address: redisAddr(t), Key: key, MaxLen: 3})
	if err != nil {
		t.Fatalf("open redis sink: %v", err)
	}
	defer func() {
		_ = sink.client.Del(ctx, key).Err()
		_ = sink.Close()
	}()

	for i := 0; i < 5; i++ {
		status := StatusOK
		if i == 4 {
			status = StatusError
		}
		if err := sink.Write(ctx, Record{ID: fmt.Sprint(i), Agent: "alice", Action: "post", Status: status}); err != nil {
			t.Fatalf("write: %v", err)
		}
	}

	all, err := sink.Query(ctx, NewFilter())
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(all) != 3 || all[0].ID != "2" || all[2].ID != "4" {
		t.Fatalf("list must be trimmed to the latest records: %+v", all)
	}
	ok, _ := QueryAll(ctx, sink, WithStatuses(StatusOK))
	if len(ok) != 2 {
		t.Fatalf("expected 2 ok records, got %+v", ok)
	}
}

func TestRedisSinkConnectionErrors(t *testing.T) {
	if _, err := NewRedisSink(context.Background(), RedisConfig{}); err == nil {
		t.Fatalf("empty address must be rejected")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := NewRedisSink(ctx, RedisConfig{Address: "127.0.0.1:1"}); err == nil {
		t.Fatalf("unreachable redis must fail at construction")
	}
}
