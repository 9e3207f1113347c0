package flows

import (
	"fmt"

	"oauth2-tokenserver/internal/catalog"
	"oauth2-tokenserver/internal/models"
	"oauth2-tokenserver/internal/store/types"
	"oauth2-tokenserver/pkg/config"

	"github.com/sirupsen/logrus"
)

// NewConfiguredRegistry registers the built-in grants and the extension
// grants named in the configuration.
func NewConfiguredRegistry(cfg *config.Config, cat *catalog.Catalog, users UserLookup, tokens types.TokenStore, log *logrus.Logger) (*Registry, error) {
	reg := NewRegistry(cat, cfg.Tokens.EmptyScopePolicy, log)
	idp := cfg.Tokens.IdentityProvider

	builtins := map[string]Validator{
		models.GrantTypePassword:          NewPasswordValidator(users, cfg.Security.HashCost, idp, log),
		models.GrantTypeClientCredentials: ClientCredentialsValidator{},
		models.GrantTypeRefreshToken:      NewRefreshTokenValidator(tokens, log),
	}
	for gt, v := range builtins {
		if err := reg.Register(gt, v); err != nil {
			return nil, err
		}
	}

	for _, ext := range cfg.ExtensionGrants {
		var v Validator
		switch ext.Validator {
		case "outcome":
			v = NewOutcomeValidator(idp)
		default:
			return nil, fmt.Errorf("unknown extension validator %q for grant type %s", ext.Validator, ext.GrantType)
		}
		if err := reg.Register(ext.GrantType, v); err != nil {
			return nil, err
		}
	}

	log.Infof("✅ Grant types enabled: %v", reg.GrantTypes())
	return reg, nil
}
