package main

import (
	"context"
	"fmt"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/safewatch/internal/alert"
	"github.com/linnemanlabs/safewatch/internal/alert/memstore"
	"github.com/linnemanlabs/safewatch/internal/alert/pgstore"
	"github.com/linnemanlabs/safewatch/internal/alert/sqlitestore"
	vc "github.com/linnemanlabs/safewatch/internal/cfg"
	"github.com/linnemanlabs/safewatch/internal/classify"
	"github.com/linnemanlabs/safewatch/internal/llm/azure"
	"github.com/linnemanlabs/safewatch/internal/llm/claude"
	"github.com/linnemanlabs/safewatch/internal/notify/slack"
	"github.com/linnemanlabs/safewatch/internal/postgres"
)

// openStore picks the alert store from config: postgres when a database URL
// is set, sqlite when a file path is set, memory otherwise. The returned
// close func is never nil.
func openStore(ctx context.Context, appCfg *vc.Config, observer postgres.QueryObserver, L log.Logger) (alert.Store, func(), error) {
	switch {
	case appCfg.DatabaseURL != "":
		pool, err := postgres.NewPool(ctx, appCfg.DatabaseURL, observer)
		if err != nil {
			return nil, nil, fmt.Errorf("postgres pool: %w", err)
		}
		pgStore, err := pgstore.New(ctx, pool)
		if err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("pgstore init: %w", err)
		}
		L.Info(ctx, "using postgres store")
		return pgStore, pool.Close, nil

	case appCfg.SQLitePath != "":
		sqlStore, err := sqlitestore.New(ctx, appCfg.SQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("sqlitestore init: %w", err)
		}
		L.Info(ctx, "using sqlite store", "path", appCfg.SQLitePath)
		return sqlStore, func() {
			if err := sqlStore.Close(); err != nil {
				L.Error(context.Background(), err, "failed to close sqlite store")
			}
		}, nil

	default:
		L.Info(ctx, "using in-memory store (no database-url or sqlite-path configured)")
		return memstore.New(), func() {}, nil
	}
}

// newProvider returns the external classifier backend, or nil for
// heuristic-only classification.
func newProvider(appCfg *vc.Config) (classify.Provider, string) {
	switch appCfg.ClassifierProvider() {
	case vc.ClassifierAzure:
		return azure.New(appCfg.AzureEndpoint, appCfg.AzureKey, appCfg.AzureDeployment, appCfg.AzureAPIVersion), vc.ClassifierAzure
	case vc.ClassifierClaude:
		return claude.New(appCfg.ClaudeAPIKey, appCfg.ClaudeModel), vc.ClassifierClaude
	default:
		return nil, vc.ClassifierNone
	}
}

func newNotifier(appCfg *vc.Config, L log.Logger) alert.Notifier {
	if appCfg.SlackWebhookURL == "" {
		return nil
	}
	return slack.New(appCfg.SlackWebhookURL, appCfg.PublicURL, L)
}
