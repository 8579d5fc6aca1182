package main

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/safewatch/internal/alert"
	"github.com/linnemanlabs/safewatch/internal/alert/memstore"
	"github.com/linnemanlabs/safewatch/internal/alert/sqlitestore"
	vc "github.com/linnemanlabs/safewatch/internal/cfg"
	"github.com/linnemanlabs/safewatch/internal/llm/azure"
	"github.com/linnemanlabs/safewatch/internal/llm/claude"
)

func TestOpenStore_Memory(t *testing.T) {
	t.Parallel()

	store, closeStore, err := openStore(context.Background(), &vc.Config{}, nil, log.Nop())
	if err != nil {
		t.Fatalf("openStore: %v", err)
	}
	defer closeStore()

	if _, ok := store.(*memstore.Store); !ok {
		t.Errorf("store = %T, want *memstore.Store", store)
	}
}

func TestOpenStore_SQLite(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "alerts.db")
	store, closeStore, err := openStore(context.Background(), &vc.Config{SQLitePath: path}, nil, log.Nop())
	if err != nil {
		t.Fatalf("openStore: %v", err)
	}
	defer closeStore()

	s, ok := store.(*sqlitestore.Store)
	if !ok {
		t.Fatalf("store = %T, want *sqlitestore.Store", store)
	}
	if s.Path() != path {
		t.Errorf("Path() = %q, want %q", s.Path(), path)
	}

	// round trip through the selected store
	a := &alert.Alert{ID: "01J", Title: "t", Risk: alert.RiskLow, AnalysisSource: alert.SourceHeuristic}
	if err := store.Append(context.Background(), a); err != nil {
		t.Fatalf("Append: %v", err)
	}
	got, ok, err := store.Get(context.Background(), "01J")
	if err != nil || !ok {
		t.Fatalf("Get = %v, %v", ok, err)
	}
	if got.Title != "t" {
		t.Errorf("Title = %q, want t", got.Title)
	}
}

func TestNewProvider(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		cfg      vc.Config
		wantName string
	}{
		{"none", vc.Config{Classifier: vc.ClassifierNone, ClaudeAPIKey: "k"}, vc.ClassifierNone},
		{"auto without credentials", vc.Config{Classifier: vc.ClassifierAuto}, vc.ClassifierNone},
		{"auto claude", vc.Config{Classifier: vc.ClassifierAuto, ClaudeAPIKey: "k", ClaudeModel: "m"}, vc.ClassifierClaude},
		{"auto prefers azure", vc.Config{
			Classifier:    vc.ClassifierAuto,
			AzureEndpoint: "https://example.openai.azure.com",
			AzureKey:      "k",
			ClaudeAPIKey:  "k",
		}, vc.ClassifierAzure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			p, name := newProvider(&tt.cfg)
			if name != tt.wantName {
				t.Errorf("name = %q, want %q", name, tt.wantName)
			}
			switch tt.wantName {
			case vc.ClassifierNone:
				if p != nil {
					t.Errorf("provider = %T, want nil", p)
				}
			case vc.ClassifierAzure:
				if _, ok := p.(*azure.Client); !ok {
					t.Errorf("provider = %T, want *azure.Client", p)
				}
			case vc.ClassifierClaude:
				if _, ok := p.(*claude.Client); !ok {
					t.Errorf("provider = %T, want *claude.Client", p)
				}
			}
		})
	}
}

func TestNewNotifier(t *testing.T) {
	t.Parallel()

	if n := newNotifier(&vc.Config{}, log.Nop()); n != nil {
		t.Errorf("notifier = %T, want nil without webhook", n)
	}
	if n := newNotifier(&vc.Config{SlackWebhookURL: "https://hooks.example/x"}, log.Nop()); n == nil {
		t.Error("notifier = nil, want slack notifier")
	}
}
