package providers

import (
	"context"
	"testing"

	"github.com/osa/runtime/pkg/models"
)

type stubProvider struct {
	modelSeen string
	caps      models.ProviderCapabilities
	err       error
}

func (s *stubProvider) Chat(ctx context.Context, messages []models.Message, opts ChatOptions) (ChatResponse, error) {
	s.modelSeen = opts.Model
	if s.err != nil {
		return ChatResponse{}, s.err
	}
	return ChatResponse{Text: "ok"}, nil
}

func (s *stubProvider) Capabilities(model string) models.ProviderCapabilities {
	return s.caps
}

func TestChatResolvesModelPrecedence(t *testing.T) {
	stub := &stubProvider{}
	r := New()
	r.PutProviderConfig(&Record{Name: "anthropic", Provider: stub, DefaultModel: "claude-default", Configured: true})

	if _, err := r.Chat(context.Background(), "anthropic", nil, ChatOptions{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stub.modelSeen != "claude-default" {
		t.Fatalf("expected default model, got %q", stub.modelSeen)
	}

	if _, err := r.Chat(context.Background(), "anthropic", nil, ChatOptions{Model: "claude-explicit"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stub.modelSeen != "claude-explicit" {
		t.Fatalf("expected explicit model to win, got %q", stub.modelSeen)
	}
}

func TestChatUnconfiguredProviderReturnsCapabilityAbsent(t *testing.T) {
	r := New()
	_, err := r.Chat(context.Background(), "missing", nil, ChatOptions{})
	if err == nil {
		t.Fatal("expected error")
	}
	var chatErr *ChatError
	if !asChatError(err, &chatErr) || chatErr.Kind != ErrKindCapabilityAbsent {
		t.Fatalf("expected capability_absent error, got %v", err)
	}
}

func TestPutProviderConfigHotSwapIsAtomic(t *testing.T) {
	r := New()
	stubOld := &stubProvider{}
	r.PutProviderConfig(&Record{Name: "p", Provider: stubOld, DefaultModel: "v1", Configured: true})

	rec, _ := r.Info("p")
	stubNew := &stubProvider{}
	r.PutProviderConfig(&Record{Name: "p", Provider: stubNew, DefaultModel: "v2", Configured: true})

	// The previously captured record still points at the old provider/model.
	if rec.DefaultModel != "v1" {
		t.Fatalf("expected captured record to keep v1, got %s", rec.DefaultModel)
	}
	newRec, _ := r.Info("p")
	if newRec.DefaultModel != "v2" {
		t.Fatalf("expected new lookups to see v2, got %s", newRec.DefaultModel)
	}
}

func asChatError(err error, target **ChatError) bool {
	ce, ok := err.(*ChatError)
	if !ok {
		return false
	}
	*target = ce
	return true
}
