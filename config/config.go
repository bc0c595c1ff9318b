package config

import (
	"errors"
	"fmt"
	"math/big"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// localRPC es el nodo de fork local (hardhat/anvil).
const localRPC = "ws://127.0.0.1:8545/"

// Config es la configuración completa del bot.
type Config struct {
	Network   NetworkConfig   `yaml:"network"`
	Assets    AssetsConfig    `yaml:"assets"`
	Strategy  StrategyConfig  `yaml:"strategy"`
	Execution ExecutionConfig `yaml:"execution"`
	Venues    VenuesConfig    `yaml:"venues"`
	Storage   StorageConfig   `yaml:"storage"`
	Log       LogConfig       `yaml:"log"`
}

// NetworkConfig controla la conexión RPC y la clave del signer.
type NetworkConfig struct {
	RPCURL             string  `yaml:"rpc_url"`     // websocket, necesario para suscripciones
	Local              bool    `yaml:"local"`       // usar el fork local en vez de rpc_url
	PrivateKey         string  `yaml:"private_key"` // mejor vía PRIVATE_KEY en .env
	RatePerSec         float64 `yaml:"rate_per_sec"`
	ResubscribeSeconds int     `yaml:"resubscribe_seconds"` // pausa antes de reabrir una suscripción caída
}

// AssetsConfig define el par a arbitrar.
type AssetsConfig struct {
	ArbFor     string `yaml:"arb_for"`     // asset0: activo base, en el que se mide la ganancia
	ArbAgainst string `yaml:"arb_against"` // asset1
}

// StrategyConfig controla la decisión y la estimación de costes.
type StrategyConfig struct {
	PriceDifference string `yaml:"price_difference"` // umbral en %, decimal exacto
	Units           int32  `yaml:"units"`            // decimales para mostrar
	GasLimit        uint64 `yaml:"gas_limit"`
	GasPriceGwei    string `yaml:"gas_price_gwei"` // decimal; se convierte a wei sin floats
}

// ExecutionConfig controla el contrato de settlement.
type ExecutionConfig struct {
	Deployed              bool   `yaml:"deployed"` // false → rehearsal: no se envía la transacción
	SettlementAddress     string `yaml:"settlement_address"`
	Target                string `yaml:"target"` // receptor del beneficio; por defecto el signer
	ConfirmTimeoutSeconds int    `yaml:"confirm_timeout_seconds"`
}

// VenuesConfig contiene las direcciones de ambos venues.
type VenuesConfig struct {
	Classic      ClassicVenueConfig      `yaml:"classic"`
	Concentrated ConcentratedVenueConfig `yaml:"concentrated"`
}

// ClassicVenueConfig es un venue constant-product (V2).
type ClassicVenueConfig struct {
	Name    string `yaml:"name"`
	Factory string `yaml:"factory"`
	Router  string `yaml:"router"`
}

// ConcentratedVenueConfig es un venue de liquidez concentrada (V3).
type ConcentratedVenueConfig struct {
	Name    string `yaml:"name"`
	Factory string `yaml:"factory"`
	Quoter  string `yaml:"quoter"`
	Fee     uint32 `yaml:"fee"` // fee tier en centésimas de bip (500 = 0.05%)
}

// StorageConfig controla dónde se persisten los ciclos.
type StorageConfig struct {
	DSN string `yaml:"dsn"` // ruta al archivo SQLite, o ":memory:"
}

// LogConfig controla el formato y nivel de logging.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// Load carga la configuración desde el archivo YAML y el archivo .env si existe.
// Los valores del .env sobreescriben los del YAML para las keys que correspondan.
func Load(path string) (*Config, error) {
	// Cargar .env si existe (silencia error si no hay archivo)
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config.Load: parse YAML: %w", err)
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	setDefaults(&cfg)

	return &cfg, nil
}

// Validate comprueba todos los campos requeridos y devuelve todos los errores juntos.
func (c *Config) Validate() error {
	var errs []error

	if c.RPC() == "" {
		errs = append(errs, errors.New("network.rpc_url (RPC_URL) is required"))
	}
	if strings.TrimSpace(c.Network.PrivateKey) == "" {
		errs = append(errs, errors.New("network.private_key (PRIVATE_KEY) is required"))
	}

	errs = append(errs, checkAddress("assets.arb_for (ARB_FOR)", c.Assets.ArbFor, true))
	errs = append(errs, checkAddress("assets.arb_against (ARB_AGAINST)", c.Assets.ArbAgainst, true))
	if c.Assets.ArbFor != "" && strings.EqualFold(c.Assets.ArbFor, c.Assets.ArbAgainst) {
		errs = append(errs, errors.New("assets.arb_for and assets.arb_against must differ"))
	}

	if _, err := c.Threshold(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.GasPriceWei(); err != nil {
		errs = append(errs, err)
	}

	errs = append(errs, checkAddress("venues.classic.factory", c.Venues.Classic.Factory, true))
	errs = append(errs, checkAddress("venues.classic.router", c.Venues.Classic.Router, true))
	errs = append(errs, checkAddress("venues.concentrated.factory", c.Venues.Concentrated.Factory, true))
	errs = append(errs, checkAddress("venues.concentrated.quoter", c.Venues.Concentrated.Quoter, true))
	if c.Venues.Concentrated.Fee == 0 {
		errs = append(errs, errors.New("venues.concentrated.fee is required"))
	}

	errs = append(errs, checkAddress("execution.settlement_address (SETTLEMENT_ADDRESS)", c.Execution.SettlementAddress, c.Execution.Deployed))
	errs = append(errs, checkAddress("execution.target", c.Execution.Target, false))

	return errors.Join(errs...)
}

// RPC devuelve el endpoint efectivo.
func (c *Config) RPC() string {
	if c.Network.Local {
		return localRPC
	}
	return c.Network.RPCURL
}

// Threshold devuelve el umbral de divergencia en %.
func (c *Config) Threshold() (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(c.Strategy.PriceDifference))
	if err != nil {
		return decimal.Zero, fmt.Errorf("strategy.price_difference (PRICE_DIFFERENCE) %q: %w", c.Strategy.PriceDifference, err)
	}
	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("strategy.price_difference must be >= 0, got %s", d)
	}
	return d, nil
}

// GasPriceWei convierte gas_price_gwei a wei.
func (c *Config) GasPriceWei() (*big.Int, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(c.Strategy.GasPriceGwei))
	if err != nil {
		return nil, fmt.Errorf("strategy.gas_price_gwei (GAS_PRICE) %q: %w", c.Strategy.GasPriceGwei, err)
	}
	if d.IsNegative() {
		return nil, fmt.Errorf("strategy.gas_price_gwei must be >= 0, got %s", d)
	}
	return d.Shift(9).BigInt(), nil
}

// ConfirmTimeout devuelve la espera máxima del recibo de settlement.
func (c *Config) ConfirmTimeout() time.Duration {
	return time.Duration(c.Execution.ConfirmTimeoutSeconds) * time.Second
}

// ResubscribeBackoff devuelve la pausa antes de reabrir una suscripción de swaps.
func (c *Config) ResubscribeBackoff() time.Duration {
	return time.Duration(c.Network.ResubscribeSeconds) * time.Second
}

// applyEnvOverrides sobreescribe valores con variables de entorno si están presentes.
func applyEnvOverrides(cfg *Config) error {
	strs := map[string]*string{
		"RPC_URL":            &cfg.Network.RPCURL,
		"PRIVATE_KEY":        &cfg.Network.PrivateKey,
		"ARB_FOR":            &cfg.Assets.ArbFor,
		"ARB_AGAINST":        &cfg.Assets.ArbAgainst,
		"PRICE_DIFFERENCE":   &cfg.Strategy.PriceDifference,
		"GAS_PRICE":          &cfg.Strategy.GasPriceGwei,
		"SETTLEMENT_ADDRESS": &cfg.Execution.SettlementAddress,
		"LOG_LEVEL":          &cfg.Log.Level,
		"LOG_FORMAT":         &cfg.Log.Format,
	}
	for key, dst := range strs {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	if v := os.Getenv("UNITS"); v != "" {
		n, err := strconv.ParseInt(v, 10, 32)
		if err != nil {
			return fmt.Errorf("UNITS %q: %w", v, err)
		}
		cfg.Strategy.Units = int32(n)
	}
	if v := os.Getenv("GAS_LIMIT"); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return fmt.Errorf("GAS_LIMIT %q: %w", v, err)
		}
		cfg.Strategy.GasLimit = n
	}
	return nil
}

// setDefaults asegura que los valores opcionales tengan valores sensatos.
func setDefaults(cfg *Config) {
	if cfg.Network.RatePerSec <= 0 {
		cfg.Network.RatePerSec = 15
	}
	if cfg.Network.ResubscribeSeconds <= 0 {
		cfg.Network.ResubscribeSeconds = 5
	}
	if cfg.Strategy.Units <= 0 {
		cfg.Strategy.Units = 6
	}
	if cfg.Strategy.GasLimit == 0 {
		cfg.Strategy.GasLimit = 400_000
	}
	if cfg.Strategy.GasPriceGwei == "" {
		cfg.Strategy.GasPriceGwei = "3"
	}
	if cfg.Execution.ConfirmTimeoutSeconds <= 0 {
		cfg.Execution.ConfirmTimeoutSeconds = 120
	}
	if cfg.Venues.Classic.Name == "" {
		cfg.Venues.Classic.Name = "PancakeSwap V2"
	}
	if cfg.Venues.Concentrated.Name == "" {
		cfg.Venues.Concentrated.Name = "PancakeSwap V3"
	}
	if cfg.Storage.DSN == "" {
		cfg.Storage.DSN = "venuearb.db"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}

// checkAddress devuelve nil si s es una dirección válida, o está vacía y no es requerida.
func checkAddress(field, s string, required bool) error {
	if s == "" {
		if required {
			return fmt.Errorf("%s is required", field)
		}
		return nil
	}
	if !common.IsHexAddress(s) {
		return fmt.Errorf("%s: invalid address %q", field, s)
	}
	return nil
}
