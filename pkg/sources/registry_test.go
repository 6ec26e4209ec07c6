package sources

import (
	"context"
	"errors"
	"testing"
)

type fakeSource struct{ BaseSource }

func (f *fakeSource) Initialize(_ context.Context) error { return nil }
func (f *fakeSource) Fetch(_ context.Context, _ PriceQuery) (PriceResult, error) {
	return PriceResult{}, nil
}
func (f *fakeSource) Close() error { return nil }

func TestRegistry(t *testing.T) {
	Register(SourceTypeCEX, "testfake", func(config map[string]interface{}) (Source, error) {
		return &fakeSource{}, nil
	})

	src, err := Create(SourceTypeCEX, "testfake", nil)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if src == nil {
		t.Fatal("expected source instance")
	}

	if _, err := Create(SourceTypeCEX, "doesnotexist", nil); !errors.Is(err, ErrUnknownSource) {
		t.Errorf("expected ErrUnknownSource, got %v", err)
	}

	found := false
	for _, name := range List() {
		if name == "cex.testfake" {
			found = true
		}
	}
	if !found {
		t.Error("expected registered source in List()")
	}
}

func TestRegistry_NamesScopedByType(t *testing.T) {
	Register(SourceTypeCEX, "shared", func(config map[string]interface{}) (Source, error) {
		return &fakeSource{}, nil
	})

	// The same name under a different family is a different factory.
	if _, err := Create(SourceTypeEVM, "shared", nil); !errors.Is(err, ErrUnknownSource) {
		t.Errorf("expected ErrUnknownSource for wrong family, got %v", err)
	}
	if _, err := Create(SourceTypeCEX, "shared", nil); err != nil {
		t.Errorf("Create failed: %v", err)
	}
}
