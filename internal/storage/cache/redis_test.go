package cache

import (
	"testing"
	"time"

	"verify-platform/internal/consensus"
	"verify-platform/internal/source"
)

func TestRedisCodec(t *testing.T) {
	in := &consensus.Result{
		ID:           "r1",
		Claim:        "codec",
		FinalVerdict: source.VerdictMisleading,
		Confidence:   41.5,
		Interval:     consensus.Interval{Lower: 30, Upper: 53},
		Timestamp:    time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	data, err := encode(in)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	out, err := decode(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.ID != in.ID || out.FinalVerdict != in.FinalVerdict || out.Interval != in.Interval || !out.Timestamp.Equal(in.Timestamp) {
		t.Errorf("decode = %+v", out)
	}

	if _, err := encode(nil); err == nil {
		t.Error("encode(nil) should fail")
	}
	if _, err := decode([]byte("{")); err == nil {
		t.Error("decode of truncated json should fail")
	}
}

func TestNewRedisStore_Unreachable(t *testing.T) {
	// 端口 1 上不会有 redis，探活失败应返回错误而不是可用的 store
	if _, err := NewRedisStore(RedisConfig{Addr: "127.0.0.1:1"}); err == nil {
		t.Fatal("expected ping error")
	}
}
