package stripe

import (
	"context"
	"testing"

	"github.com/mgastelum/tubedigest-backend/pkg/config"
)

func TestNewClientRejectsMismatchedKey(t *testing.T) {
	cfg := config.StripeConfig{
		APIKey: "sk_live_abc",
		Secret: "whsec_123",
		Env:    "test",
	}
	if _, err := NewClient(context.Background(), cfg, nil); err == nil {
		t.Fatal("expected live key in test env to be rejected")
	}
}

func TestNewClientRequiresSecrets(t *testing.T) {
	if _, err := NewClient(context.Background(), config.StripeConfig{Secret: "whsec_123"}, nil); err == nil {
		t.Fatal("expected missing api key to be rejected")
	}
	if _, err := NewClient(context.Background(), config.StripeConfig{APIKey: "sk_test_abc"}, nil); err == nil {
		t.Fatal("expected missing webhook secret to be rejected")
	}
}

func TestNewClientNormalizesEnv(t *testing.T) {
	cfg := config.StripeConfig{
		APIKey: "sk_test_abc",
		Secret: "whsec_123",
		Env:    "  TEST ",
	}
	client, err := NewClient(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	if client.Environment() != "test" {
		t.Fatalf("expected normalized env test, got %q", client.Environment())
	}
	if client.SigningSecret() != "whsec_123" {
		t.Fatalf("unexpected signing secret %q", client.SigningSecret())
	}
}
