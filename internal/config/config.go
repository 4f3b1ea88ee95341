// Package config loads runtime settings from the environment, an optional
// .env file, and an optional config file, in that order of precedence.
package config

import (
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/opshub/tenantsync/pkg/constants"
	"github.com/opshub/tenantsync/pkg/logging"
)

// CRMSettings configures the source registry client.
type CRMSettings struct {
	BaseURL string
	Token   string
}

// InventorySettings configures the tenant registry client.
type InventorySettings struct {
	BaseURL    string
	Token      string
	ScopeGroup string
}

// TreeSettings configures the access-tree client and credential broker.
type TreeSettings struct {
	BaseURL     string
	Username    string
	Password    string
	StaticToken string
	PathRoot    string
	MatchPolicy string
	OrgID       string
}

// ServerSettings configures the HTTP front door.
type ServerSettings struct {
	Addr string

	// WebhookStoresPending controls whether source-change webhooks store
	// approvable pending actions or only refresh the preview report.
	WebhookStoresPending bool
}

// Settings is the full runtime configuration.
type Settings struct {
	CRM          CRMSettings
	Inventory    InventorySettings
	Tree         TreeSettings
	Server       ServerSettings
	ScanInterval time.Duration
}

// Load reads settings. A .env file in the working directory is loaded first
// when present; explicit environment variables always win.
func Load() (*Settings, error) {
	if err := godotenv.Load(); err == nil {
		logging.Default().Debug().Msg("loaded .env file")
	}

	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("SCOPE_GROUP", "")
	v.SetDefault("TREE_PATH_ROOT", constants.DefaultPathRoot)
	v.SetDefault("TREE_MATCH_POLICY", "exact")
	v.SetDefault("SERVER_ADDR", ":8080")
	v.SetDefault("WEBHOOK_STORE_PENDING", false)
	v.SetDefault("SCAN_INTERVAL", constants.DefaultScanInterval)

	v.SetConfigName("tenantsync")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/tenantsync")
	if err := v.ReadInConfig(); err == nil {
		logging.Default().Debug().Str("file", v.ConfigFileUsed()).Msg("loaded config file")
	}

	s := &Settings{
		CRM: CRMSettings{
			BaseURL: v.GetString("CRM_BASE_URL"),
			Token:   v.GetString("CRM_TOKEN"),
		},
		Inventory: InventorySettings{
			BaseURL:    v.GetString("INVENTORY_BASE_URL"),
			Token:      v.GetString("INVENTORY_TOKEN"),
			ScopeGroup: v.GetString("SCOPE_GROUP"),
		},
		Tree: TreeSettings{
			BaseURL:     v.GetString("TREE_BASE_URL"),
			Username:    v.GetString("TREE_USERNAME"),
			Password:    v.GetString("TREE_PASSWORD"),
			StaticToken: v.GetString("TREE_STATIC_TOKEN"),
			PathRoot:    v.GetString("TREE_PATH_ROOT"),
			MatchPolicy: v.GetString("TREE_MATCH_POLICY"),
			OrgID:       v.GetString("TREE_ORG_ID"),
		},
		Server: ServerSettings{
			Addr:                 v.GetString("SERVER_ADDR"),
			WebhookStoresPending: v.GetBool("WEBHOOK_STORE_PENDING"),
		},
		ScanInterval: v.GetDuration("SCAN_INTERVAL"),
	}
	if s.ScanInterval <= 0 {
		s.ScanInterval = constants.DefaultScanInterval
	}
	return s, nil
}
