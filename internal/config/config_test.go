package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("RAG_TOP_K", "")
	t.Setenv("RAG_ADEQUACY_DISTANCE", "")
	t.Setenv("RAG_STREAM_BUFFER", "")
	t.Setenv("CACHE_CAPACITY", "")
	t.Setenv("REDIS_URL", "")

	cfg := Load()
	if cfg.RAGTopK != 5 {
		t.Fatalf("expected default top k 5, got %d", cfg.RAGTopK)
	}
	if cfg.RAGAdequacyDistance != 0.5 {
		t.Fatalf("expected default adequacy distance 0.5, got %v", cfg.RAGAdequacyDistance)
	}
	if cfg.RAGStreamBuffer != 16 {
		t.Fatalf("expected default stream buffer 16, got %d", cfg.RAGStreamBuffer)
	}
	if cfg.CacheCapacity != 128 {
		t.Fatalf("expected default cache capacity 128, got %d", cfg.CacheCapacity)
	}
	if cfg.RedisURL != "" {
		t.Fatalf("expected in-process cache by default, got redis %q", cfg.RedisURL)
	}
}

func TestLoadParsesOverrides(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("RAG_TOP_K", "8")
	t.Setenv("RAG_PORT_TIMEOUT", "750ms")
	t.Setenv("RAG_GENERATION_TIMEOUT", "45")
	t.Setenv("API_RATE_LIMIT_RPS", "2.5")
	t.Setenv("RAG_OUT_OF_SCOPE_REDIRECT", "true")

	cfg := Load()
	if cfg.RAGTopK != 8 {
		t.Fatalf("expected top k 8, got %d", cfg.RAGTopK)
	}
	if cfg.RAGPortTimeout != 750*time.Millisecond {
		t.Fatalf("expected port timeout 750ms, got %v", cfg.RAGPortTimeout)
	}
	if cfg.RAGGenerationTimeout != 45*time.Second {
		t.Fatalf("expected generation timeout 45s, got %v", cfg.RAGGenerationTimeout)
	}
	if cfg.APIRateLimitRPS != 2.5 {
		t.Fatalf("expected rps 2.5, got %v", cfg.APIRateLimitRPS)
	}
	if !cfg.RAGOutOfScopeRedirect {
		t.Fatalf("expected out-of-scope redirect enabled")
	}
}

func TestLoadIgnoresMalformedNumbers(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("RAG_TOP_K", "many")
	t.Setenv("RAG_PORT_TIMEOUT", "soon")

	cfg := Load()
	if cfg.RAGTopK != 5 || cfg.RAGPortTimeout != 20*time.Second {
		t.Fatalf("expected defaults for malformed values, got top_k=%d timeout=%v", cfg.RAGTopK, cfg.RAGPortTimeout)
	}
}

func TestLoadFileOverlayYieldsToEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := "QDRANT_COLLECTION: colleges_v2\nrag_top_k: 7\nCACHE_CAPACITY: 256\nRAG_OUT_OF_SCOPE_REDIRECT: true\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("QDRANT_COLLECTION", "")
	t.Setenv("RAG_TOP_K", "")
	t.Setenv("RAG_OUT_OF_SCOPE_REDIRECT", "")
	t.Setenv("CACHE_CAPACITY", "64")

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if cfg.QdrantCollection != "colleges_v2" || cfg.RAGTopK != 7 || !cfg.RAGOutOfScopeRedirect {
		t.Fatalf("expected overlay values, got collection=%q top_k=%d redirect=%v", cfg.QdrantCollection, cfg.RAGTopK, cfg.RAGOutOfScopeRedirect)
	}
	if cfg.CacheCapacity != 64 {
		t.Fatalf("expected env to win over overlay, got %d", cfg.CacheCapacity)
	}
}

func TestLoadFileReportsBrokenOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.yaml")
	if err := os.WriteFile(path, []byte("RAG_TOP_K: [unterminated"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("RAG_TOP_K", "")

	cfg, err := LoadFile(path)
	if err == nil {
		t.Fatalf("expected parse error")
	}
	if cfg.RAGTopK != 5 {
		t.Fatalf("expected defaults alongside the error, got %d", cfg.RAGTopK)
	}
}
