// Package config loads and validates the engine's configuration surface
// (spec.md §6), following the teacher's env-var-with-default style
// (config.LoadFromEnv, getEnvInt/getEnvFloat/getEnvOrDefault) but enumerating
// every detector threshold as a named, validated field instead of leaving
// literals at call sites.
package config

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"orderflow-engine/internal/coordinator"
	"orderflow-engine/internal/detector"
	"orderflow-engine/internal/market"
	"orderflow-engine/internal/orderbook"
	"orderflow-engine/internal/perrors"
	"orderflow-engine/internal/zone"
)

// Config is the complete, validated configuration surface (spec.md §6).
type Config struct {
	// Global
	Symbol           string
	TickSize         decimal.Decimal
	PricePrecision   int
	MaxStorageTimeMs int64

	// Infra
	DatabaseDSN string
	RedisAddr   string
	RedisPass   string
	HTTPAddr    string

	OrderBook    orderbook.Config
	Zone         zone.Config
	Absorption   detector.AbsorptionConfig
	Exhaustion   detector.ExhaustionConfig
	Accumulation detector.ZoneBuildConfig
	Distribution detector.ZoneBuildConfig
	CVD          detector.CVDConfig
	Spoofing     detector.SpoofingConfig
	Hidden       detector.HiddenOrderConfig
	Whale        detector.WhaleDetectorConfig
	Coordinator  coordinator.Config

	BaselineWindowSize     int
	RateLimitPerSecond     int
	RateLimitBurst         int
	DepthSnapshotHalfWidth market.Ticks
}

// Validate rejects out-of-range thresholds at startup (spec.md §7 taxonomy
// item 4: "the pipeline refuses to start").
func (c *Config) Validate() error {
	if c.TickSize.Sign() <= 0 {
		return fmt.Errorf("config: tickSize must be positive: %w", perrors.ErrConfig)
	}
	if c.Symbol == "" {
		return fmt.Errorf("config: symbol must be set: %w", perrors.ErrConfig)
	}
	validators := []interface{ Validate() error }{
		c.Absorption, c.Exhaustion, c.Accumulation, c.Distribution,
		c.CVD, c.Spoofing, c.Hidden, c.Whale, c.Coordinator,
	}
	for _, v := range validators {
		if err := v.Validate(); err != nil {
			return fmt.Errorf("config: %w", err)
		}
	}
	return nil
}

// LoadFromEnv loads configuration from environment variables, falling back
// to the teacher's ".env not found" warning rather than failing outright.
func LoadFromEnv() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, using environment variables")
	}

	tickSize, err := decimal.NewFromString(getEnvOrDefault("TICK_SIZE", "0.01"))
	if err != nil {
		tickSize = decimal.NewFromFloat(0.01)
	}
	grid := newGridFromTickSize(tickSize)

	return &Config{
		Symbol:           getEnvOrDefault("SYMBOL", "BTCUSDT"),
		TickSize:         tickSize,
		PricePrecision:   getEnvInt("PRICE_PRECISION", 2),
		MaxStorageTimeMs: getEnvInt64("MAX_STORAGE_TIME_MS", 86400000),

		DatabaseDSN: getEnvOrDefault("DATABASE_DSN", "host=localhost user=orderflow password=orderflow dbname=orderflow port=5432 sslmode=disable"),
		RedisAddr:   getEnvOrDefault("REDIS_ADDR", "localhost:6379"),
		RedisPass:   getEnvOrDefault("REDIS_PASSWORD", ""),
		HTTPAddr:    getEnvOrDefault("HTTP_ADDR", ":8090"),

		OrderBook: orderbook.Config{
			Grid:               grid,
			MaxAge:             time.Duration(getEnvInt64("ORDERBOOK_MAX_AGE_MS", 600000)) * time.Millisecond,
			MaxDistanceFromMid: getEnvTicks("ORDERBOOK_MAX_DISTANCE_FROM_MID_TICKS", 5000),
			MaxLevels:          getEnvInt("ORDERBOOK_MAX_LEVELS", 5000),
			PruneEvery:         getEnvInt("ORDERBOOK_PRUNE_EVERY", 200),
		},

		Zone: zone.Config{
			Grid:           grid,
			Resolutions:    []zone.Resolution{5, 10, 20},
			TimeWindow:     time.Duration(getEnvInt64("ZONE_TIME_WINDOW_MS", 300000)) * time.Millisecond,
			HalfWidthTicks: getEnvTicks("ZONE_HALF_WIDTH_TICKS", 100),
		},

		Absorption: detector.AbsorptionConfig{
			MinAggVolume:                  getEnvDecimal("ABSORPTION_MIN_AGG_VOLUME", "200"),
			MaxAbsorptionRatio:            getEnvFloat("ABSORPTION_MAX_RATIO", 0.9),
			MinPassiveMultiplier:          getEnvFloat("ABSORPTION_MIN_PASSIVE_MULTIPLIER", 2.2),
			ExpectedMovementScalingFactor: getEnvFloat("ABSORPTION_EXPECTED_MOVEMENT_SCALING", 0.00002),
			PriceEfficiencyThreshold:      getEnvFloat("ABSORPTION_PRICE_EFFICIENCY_THRESHOLD", 0.0047),
			ConfluenceMinZones:            getEnvInt("ABSORPTION_CONFLUENCE_MIN_ZONES", 2),
			ConfluenceMaxDistance:         getEnvTicks("ABSORPTION_CONFLUENCE_MAX_DISTANCE_TICKS", 10),
			ConfluenceConfidenceBoost:     getEnvFloat("ABSORPTION_CONFLUENCE_BOOST", 0.1),
			MinAbsorptionScore:            getEnvFloat("ABSORPTION_MIN_SCORE", 0.6),
			FinalConfidenceRequired:       getEnvFloat("ABSORPTION_FINAL_CONFIDENCE_REQUIRED", 0.8),
		},

		Exhaustion: detector.ExhaustionConfig{
			MinAggVolume:                   getEnvDecimal("EXHAUSTION_MIN_AGG_VOLUME", "200"),
			MinTradeCount:                  getEnvInt("EXHAUSTION_MIN_TRADE_COUNT", 5),
			WindowDuration:                 time.Duration(getEnvInt64("EXHAUSTION_WINDOW_MS", 10000)) * time.Millisecond,
			ExhaustionThreshold:            getEnvFloat("EXHAUSTION_THRESHOLD", 0.5),
			EnableDepletionAnalysis:        getEnvOrDefault("EXHAUSTION_ENABLE_DEPLETION", "true") == "true",
			DepletionVolumeThreshold:       getEnvDecimal("EXHAUSTION_DEPLETION_VOLUME_THRESHOLD", "750"),
			DepletionRatioThreshold:        getEnvFloat("EXHAUSTION_DEPLETION_RATIO_THRESHOLD", 0.2),
			RatioBalanceCenterPoint:        getEnvFloat("EXHAUSTION_RATIO_BALANCE_CENTER", 0.5),
			MinEnhancedConfidenceThreshold: getEnvFloat("EXHAUSTION_MIN_CONFIDENCE", 0.65),
		},

		Accumulation: zoneBuildConfig("ACCUMULATION", 0.55),
		Distribution: zoneBuildConfig("DISTRIBUTION", 0.55),

		CVD: detector.CVDConfig{
			WindowSeconds:         getEnvInt("CVD_WINDOW_SECONDS", 30),
			MinTradesPerSec:       getEnvFloat("CVD_MIN_TRADES_PER_SEC", 0.5),
			MinVolPerSec:          getEnvDecimal("CVD_MIN_VOL_PER_SEC", "10"),
			SlopeThreshold:        getEnvFloat("CVD_SLOPE_THRESHOLD", 0.001),
			CVDImbalanceThreshold: getEnvFloat("CVD_IMBALANCE_THRESHOLD", 0.2),
		},

		Spoofing: detector.SpoofingConfig{
			WallTicks:                   getEnvTicks("SPOOFING_WALL_TICKS", 1),
			MinWallSize:                 getEnvDecimal("SPOOFING_MIN_WALL_SIZE", "10"),
			RapidCancellationWindow:     time.Duration(getEnvInt64("SPOOFING_RAPID_CANCELLATION_MS", 500)) * time.Millisecond,
			MaxCancellationRatio:        getEnvFloat("SPOOFING_MAX_CANCELLATION_RATIO", 0.8),
			ExecutedFractionThreshold:   getEnvFloat("SPOOFING_EXECUTED_FRACTION_THRESHOLD", 0.1),
			LayeringDetectionLevels:     getEnvInt("SPOOFING_LAYERING_LEVELS", 3),
			AlgorithmicPatternThreshold: getEnvFloat("SPOOFING_ALGORITHMIC_THRESHOLD", 0.7),
		},

		Hidden: detector.HiddenOrderConfig{
			PriceTolerance:  getEnvTicks("HIDDEN_PRICE_TOLERANCE_TICKS", 0),
			MaxDepthAge:     time.Duration(getEnvInt64("HIDDEN_MAX_DEPTH_AGE_MS", 2000)) * time.Millisecond,
			MinHiddenVolume: getEnvDecimal("HIDDEN_MIN_HIDDEN_VOLUME", "5"),
			MinTradeSize:    getEnvDecimal("HIDDEN_MIN_TRADE_SIZE", "10"),
		},

		Whale: detector.WhaleDetectorConfig{
			ZScoreThreshold:       getEnvFloat("WHALE_ZSCORE_THRESHOLD", 3.0),
			VolumeSpikeMultiplier: getEnvFloat("WHALE_VOLUME_SPIKE_MULTIPLIER", 5.0),
			MinNotional:           getEnvDecimal("WHALE_MIN_NOTIONAL", "10000"),
		},

		Coordinator: coordinator.Config{
			DedupTolerance:     getEnvFloat("COORDINATOR_DEDUP_TOLERANCE", 0.0005),
			ConfirmationWindow: time.Duration(getEnvInt64("COORDINATOR_CONFIRMATION_WINDOW_MS", 30000)) * time.Millisecond,
			ConfirmThreshold:   getEnvFloat("COORDINATOR_CONFIRM_THRESHOLD", 0.001),
			GlobalCooldown:     time.Duration(getEnvInt64("COORDINATOR_GLOBAL_COOLDOWN_MS", 2000)) * time.Millisecond,
		},

		BaselineWindowSize:     getEnvInt("BASELINE_WINDOW_SIZE", 500),
		RateLimitPerSecond:     getEnvInt("RATE_LIMIT_PER_SECOND", 20),
		RateLimitBurst:         getEnvInt("RATE_LIMIT_BURST", 40),
		DepthSnapshotHalfWidth: getEnvTicks("DEPTH_SNAPSHOT_HALF_WIDTH_TICKS", 50),
	}
}

func zoneBuildConfig(prefix string, defaultRatio float64) detector.ZoneBuildConfig {
	return detector.ZoneBuildConfig{
		MinCandidateDuration: time.Duration(getEnvInt64(prefix+"_MIN_CANDIDATE_DURATION_MS", 60000)) * time.Millisecond,
		MinZoneVolume:        getEnvDecimal(prefix+"_MIN_ZONE_VOLUME", "100"),
		MinTradeCount:        getEnvInt(prefix+"_MIN_TRADE_COUNT", 20),
		MaxPriceDeviation:    getEnvFloat(prefix+"_MAX_PRICE_DEVIATION", 0.002),
		DirectionalThreshold: getEnvFloat(prefix+"_RATIO_THRESHOLD", defaultRatio),
		CrossTimeframeBoost:  getEnvFloat(prefix+"_CROSS_TIMEFRAME_BOOST", 0.15),
	}
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var v int
	if _, err := fmt.Sscanf(value, "%d", &v); err != nil {
		return defaultValue
	}
	return v
}

func getEnvInt64(key string, defaultValue int64) int64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var v int64
	if _, err := fmt.Sscanf(value, "%d", &v); err != nil {
		return defaultValue
	}
	return v
}

func getEnvFloat(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var v float64
	if _, err := fmt.Sscanf(value, "%f", &v); err != nil {
		return defaultValue
	}
	return v
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDecimal(key, defaultValue string) decimal.Decimal {
	value := getEnvOrDefault(key, defaultValue)
	d, err := decimal.NewFromString(value)
	if err != nil {
		d, _ = decimal.NewFromString(defaultValue)
	}
	return d
}
