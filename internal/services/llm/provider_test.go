package llm

import (
	"context"
	"sync"
	"testing"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/pagesmith/internal/common"
)

func newTestService() *Service {
	return NewService(&common.GeminiConfig{}, &common.ClaudeConfig{}, &common.LLMConfig{}, arbor.NewLogger())
}

func TestGeminiClientInitConcurrent(t *testing.T) {
	svc := newTestService()

	// Concurrent workers share one lazily built client; every caller must
	// observe the same initialization outcome
	errs := make([]error, 8)
	var wg sync.WaitGroup
	for i := 0; i < len(errs); i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.getGeminiClient(context.Background())
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err == nil {
			t.Errorf("Call %d: expected missing-key error", i)
		}
	}
}

func TestClaudeClientInitConcurrent(t *testing.T) {
	svc := newTestService()

	errs := make([]error, 8)
	var wg sync.WaitGroup
	for i := 0; i < len(errs); i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.getClaudeClient()
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err == nil {
			t.Errorf("Call %d: expected missing-key error", i)
		}
	}
}
