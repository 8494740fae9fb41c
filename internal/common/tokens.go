package common

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"usdc-vault-custody/internal/models"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
	"gopkg.in/yaml.v2"
)

type TokensConfig struct {
	Tokens []models.TokenConfig `yaml:"tokens"`
}

// LoadTokenConfig reads the settlement token catalogue from a YAML file.
func LoadTokenConfig(tokensFile string) ([]models.TokenConfig, error) {
	var tokensPath string
	if filepath.IsAbs(tokensFile) {
		tokensPath = tokensFile
	} else {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get working directory: %w", err)
		}
		tokensPath = filepath.Join(wd, tokensFile)
	}

	data, err := os.ReadFile(tokensPath)
	if err != nil {
		return nil, fmt.Errorf("unable to read %s: %w", tokensFile, err)
	}

	var config TokensConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("unable to parse %s: %w", tokensFile, err)
	}

	for i, token := range config.Tokens {
		if token.Symbol == "" {
			return nil, fmt.Errorf("token at index %d missing symbol", i)
		}
		if token.Network == "" {
			return nil, fmt.Errorf("token at index %d missing network", i)
		}
		if !ethcommon.IsHexAddress(token.Address) {
			return nil, fmt.Errorf("token %s-%s has invalid address %q", token.Symbol, token.Network, token.Address)
		}
		if token.Decimals <= 0 {
			return nil, fmt.Errorf("token %s-%s missing decimals", token.Symbol, token.Network)
		}
	}

	return config.Tokens, nil
}

// FindToken returns the catalogue entry for a symbol on a network.
func FindToken(tokens []models.TokenConfig, symbol, network string) (models.TokenConfig, bool) {
	for _, t := range tokens {
		if strings.EqualFold(t.Symbol, symbol) && strings.EqualFold(t.Network, network) {
			return t, true
		}
	}
	return models.TokenConfig{}, false
}

// ResolveToken replaces the environment token with the catalogue entry for the
// same symbol and network when TOKENS_FILE is set.
func ResolveToken(cfg *models.Config) error {
	if cfg.Chain.TokensFile == "" {
		return nil
	}

	tokens, err := LoadTokenConfig(cfg.Chain.TokensFile)
	if err != nil {
		return err
	}

	want := cfg.Chain.Token
	token, ok := FindToken(tokens, want.Symbol, want.Network)
	if !ok {
		return fmt.Errorf("token %s-%s not found in %s", want.Symbol, want.Network, cfg.Chain.TokensFile)
	}

	zap.L().Info("Using token from catalogue",
		zap.String("symbol", token.Symbol),
		zap.String("network", token.Network),
		zap.String("address", token.Address),
		zap.Int32("decimals", token.Decimals))
	cfg.Chain.Token = token
	return nil
}
