package params

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/uhyunpark/suiperp/pkg/contracts"
)

// Built-in network profile names
const (
	SuiStaging      = "SUI_STAGING"
	SuiProd         = "SUI_PROD"
	SuiProdInternal = "SUI_PROD_INTERNAL"
)

// Network is the set of endpoints one deployment of the exchange exposes
type Network struct {
	URL           string `yaml:"url"`            // fullnode JSON-RPC
	APIGateway    string `yaml:"api_gateway"`    // matching service REST
	SocketURL     string `yaml:"socket_url"`     // matching service socket
	DMSURL        string `yaml:"dms_url"`        // dead man switch
	WebSocketURL  string `yaml:"websocket_url"`  // notifications
	OnboardingURL string `yaml:"onboarding_url"` // signed during onboarding
}

type Chain struct {
	GasBudget     uint64
	MaxRetries    int           // lock contention attempts
	RetryInterval time.Duration // constant wait between attempts
}

type Signer struct {
	ListenAddr    string
	CORSOrigins   []string
	JournalPath   string // empty disables the journal
	ContractsPath string // exchange contract-address JSON
	Secret        string // mnemonic or hex private key
}

type Log struct {
	Level string
	File  string // empty logs to stdout only
}

type Config struct {
	NetworkName string
	Network     Network
	Chain       Chain
	Signer      Signer
	Log         Log
	RFQ         *contracts.RFQAddresses
}

// Networks returns the built-in profiles
func Networks() map[string]Network {
	return map[string]Network{
		SuiStaging: {
			URL:           "https://fullnode.testnet.sui.io:443",
			APIGateway:    "https://dapi.api.sui-staging.bluefin.io",
			SocketURL:     "wss://dapi.api.sui-staging.bluefin.io",
			DMSURL:        "https://api.sui-staging.bluefin.io/dead-man-switch",
			WebSocketURL:  "wss://notifications.api.sui-staging.bluefin.io",
			OnboardingURL: "https://testnet.bluefin.io",
		},
		SuiProd: {
			URL:           "https://fullnode.mainnet.sui.io:443",
			APIGateway:    "https://dapi.api.sui-prod.bluefin.io",
			SocketURL:     "wss://dapi.api.sui-prod.bluefin.io",
			DMSURL:        "https://api.sui-prod.bluefin.io/dead-man-switch",
			WebSocketURL:  "wss://notifications.api.sui-prod.bluefin.io",
			OnboardingURL: "https://trade-sui.bluefin.exchange",
		},
		SuiProdInternal: {
			URL:           "https://fullnode.testnet.sui.io:443",
			APIGateway:    "https://dapi.api.sui-prod.int.bluefin.io",
			SocketURL:     "wss://dapi.api.sui-prod.int.bluefin.io",
			DMSURL:        "https://api.sui-prod.int.bluefin.io/dead-man-switch",
			WebSocketURL:  "wss://notifications.api.sui-prod.int.bluefin.io",
			OnboardingURL: "https://trade-sui.bluefin.exchange",
		},
	}
}

func Default() Config {
	return Config{
		NetworkName: SuiStaging,
		Network:     Networks()[SuiStaging],
		Chain: Chain{
			GasBudget:     100000000, // 0.1 SUI
			MaxRetries:    5,
			RetryInterval: time.Second,
		},
		Signer: Signer{
			ListenAddr:  ":8080",
			CORSOrigins: []string{"*"},
		},
		Log: Log{Level: "info"},
	}
}

// ProfileFile is the YAML layout accepted by LoadProfiles
type ProfileFile struct {
	Networks map[string]Network      `yaml:"networks"`
	RFQ      *contracts.RFQAddresses `yaml:"rfq"`
}

// LoadProfiles reads extra network profiles and RFQ contract ids from a YAML file
func LoadProfiles(path string) (*ProfileFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read profiles: %w", err)
	}
	var pf ProfileFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return nil, fmt.Errorf("failed to parse profiles %s: %w", path, err)
	}
	for name, n := range pf.Networks {
		if n.URL == "" {
			return nil, fmt.Errorf("profile %s has no url", name)
		}
	}
	return &pf, nil
}

// LoadFromEnv loads configuration from .env file (if exists) and environment variables
// Priority: ENV > .env file > profiles file > defaults
func LoadFromEnv(envPath string) (Config, error) {
	cfg := Default()

	// Try to load .env file (optional - won't fail if not exists)
	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load() // loads .env from current directory
	}

	networks := Networks()
	if path := os.Getenv("PROFILES_PATH"); path != "" {
		pf, err := LoadProfiles(path)
		if err != nil {
			return cfg, err
		}
		for name, n := range pf.Networks {
			networks[name] = n
		}
		cfg.RFQ = pf.RFQ
	}

	cfg.NetworkName = getEnv("SUI_NETWORK", cfg.NetworkName)
	network, ok := networks[cfg.NetworkName]
	if !ok {
		return cfg, fmt.Errorf("unknown network profile %q", cfg.NetworkName)
	}
	cfg.Network = network
	cfg.Network.URL = getEnv("SUI_RPC_URL", cfg.Network.URL)

	if budget := os.Getenv("SUI_GAS_BUDGET"); budget != "" {
		v, err := strconv.ParseUint(budget, 10, 64)
		if err != nil {
			return cfg, fmt.Errorf("invalid SUI_GAS_BUDGET: %w", err)
		}
		cfg.Chain.GasBudget = v
	}
	if retries := os.Getenv("TX_MAX_RETRIES"); retries != "" {
		v, err := strconv.Atoi(retries)
		if err != nil || v < 1 {
			return cfg, fmt.Errorf("invalid TX_MAX_RETRIES %q", retries)
		}
		cfg.Chain.MaxRetries = v
	}
	if interval := os.Getenv("TX_RETRY_INTERVAL_MS"); interval != "" {
		ms, err := strconv.Atoi(interval)
		if err != nil {
			return cfg, fmt.Errorf("invalid TX_RETRY_INTERVAL_MS: %w", err)
		}
		cfg.Chain.RetryInterval = time.Duration(ms) * time.Millisecond
	}

	cfg.Signer.ListenAddr = getEnv("SIGNER_LISTEN_ADDR", cfg.Signer.ListenAddr)
	if origins := os.Getenv("SIGNER_CORS_ORIGINS"); origins != "" {
		cfg.Signer.CORSOrigins = strings.Split(origins, ",")
	}
	cfg.Signer.JournalPath = getEnv("JOURNAL_PATH", cfg.Signer.JournalPath)
	cfg.Signer.ContractsPath = getEnv("CONTRACTS_PATH", cfg.Signer.ContractsPath)
	cfg.Signer.Secret = getEnv("WALLET_SECRET", cfg.Signer.Secret)

	cfg.Log.Level = getEnv("LOG_LEVEL", cfg.Log.Level)
	cfg.Log.File = getEnv("LOG_FILE", cfg.Log.File)

	return cfg, nil
}

// getEnv returns environment variable value or default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
