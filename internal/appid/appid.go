// Package appid resolves folio's application identity: an explicit
// .fulmen/app.yaml or FULMEN_APP_IDENTITY_PATH first, then the copy embedded
// in the binary.
package appid

import (
	"context"
	"strings"

	"github.com/fulmenhq/gofulmen/appidentity"

	appidentityassets "github.com/jordancj7/folio/internal/assets/appidentity"
)

// Defaults used when an identity file leaves a field empty.
const (
	DefaultBinaryName = "folio"
	DefaultEnvPrefix  = "FOLIO_"
)

func init() {
	_ = appidentity.RegisterEmbeddedIdentityYAML(appidentityassets.YAML)
}

// Get loads the identity and fills the fields folio depends on. A custom
// app.yaml that only names the binary still yields a usable env prefix and
// config directory.
func Get(ctx context.Context) (*appidentity.Identity, error) {
	identity, err := appidentity.Get(ctx)
	if err != nil {
		return nil, err
	}
	return withDefaults(identity), nil
}

func withDefaults(identity *appidentity.Identity) *appidentity.Identity {
	filled := *identity
	filled.BinaryName = strings.TrimSpace(filled.BinaryName)
	if filled.BinaryName == "" {
		filled.BinaryName = DefaultBinaryName
	}
	if strings.TrimSpace(filled.ConfigName) == "" {
		filled.ConfigName = filled.BinaryName
	}
	if strings.TrimSpace(filled.EnvPrefix) == "" {
		filled.EnvPrefix = envPrefixFor(filled.BinaryName)
	}
	return &filled
}

func envPrefixFor(binaryName string) string {
	if binaryName == DefaultBinaryName {
		return DefaultEnvPrefix
	}
	return strings.ToUpper(strings.ReplaceAll(binaryName, "-", "_")) + "_"
}
