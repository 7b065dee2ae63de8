package params

import (
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// TokenConfig names one token to register at boot.
type TokenConfig struct {
	Symbol  string
	Address string // external contract handle, hex
}

type Config struct {
	DataDir    string
	LogFile    string
	Settlement string
	Tokens     []TokenConfig
}

// Default mirrors the devnet deployment: DAI as settlement plus three
// tradable tokens with placeholder handles.
func Default() Config {
	return Config{
		DataDir:    "data",
		LogFile:    "data/dexd.log",
		Settlement: "DAI",
		Tokens: []TokenConfig{
			{Symbol: "DAI", Address: "0x0000000000000000000000000000000000000001"},
			{Symbol: "BNB", Address: "0x0000000000000000000000000000000000000002"},
			{Symbol: "LINK", Address: "0x0000000000000000000000000000000000000003"},
			{Symbol: "YFI", Address: "0x0000000000000000000000000000000000000004"},
		},
	}
}

// LoadFromEnv loads configuration from a .env file (if present) and
// environment variables. Priority: ENV > .env file > defaults.
func LoadFromEnv(envPath string) Config {
	cfg := Default()

	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	if v := os.Getenv("DEX_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("DEX_LOG_FILE"); v != "" {
		cfg.LogFile = v
	}
	if v := os.Getenv("DEX_SETTLEMENT"); v != "" {
		cfg.Settlement = v
	}

	// DEX_TOKENS="DAI:0xabc...,BNB:0xdef..."
	if v := os.Getenv("DEX_TOKENS"); v != "" {
		var tokens []TokenConfig
		for _, entry := range strings.Split(v, ",") {
			parts := strings.SplitN(strings.TrimSpace(entry), ":", 2)
			if len(parts) != 2 || parts[0] == "" {
				continue
			}
			tokens = append(tokens, TokenConfig{Symbol: parts[0], Address: parts[1]})
		}
		if len(tokens) > 0 {
			cfg.Tokens = tokens
		}
	}

	return cfg
}
