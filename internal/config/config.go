package config

import (
	"flag"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config is the process-level configuration, immutable after Load.
type Config struct {
	Port          string
	MeasuresDir   string
	IndexFile     string
	ExportDir     string
	DatabaseURL   string
	ReviewEnabled bool
	LLM           LLMConfig
}

type LLMConfig struct {
	APIKey string
	Model  string
	RPS    float64
	Burst  int
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	port := flag.String("port", ":8082", "server port")
	flag.Parse()

	if envPort := os.Getenv("PORT"); envPort != "" {
		if strings.HasPrefix(envPort, ":") {
			*port = envPort
		} else {
			*port = ":" + envPort
		}
	}

	cfg := &Config{
		Port:          *port,
		MeasuresDir:   firstNonEmpty(os.Getenv("MEASURES_DIR"), "./measures"),
		IndexFile:     firstNonEmpty(os.Getenv("MEASURE_INDEX_FILE"), "./measure_index.json"),
		ExportDir:     firstNonEmpty(os.Getenv("EXPORT_DIR"), "./outputs"),
		DatabaseURL:   strings.TrimSpace(os.Getenv("DATABASE_URL")),
		ReviewEnabled: envBool("SQL_REVIEW_ENABLED", true),
		LLM: LLMConfig{
			APIKey: strings.TrimSpace(os.Getenv("GEMINI_API_KEY")),
			Model:  firstNonEmpty(os.Getenv("LLM_MODEL"), "gemini-2.0-flash"),
			RPS:    envFloat("LLM_RPS", 0),
			Burst:  envInt("LLM_BURST", 0),
		},
	}

	if cfg.LLM.APIKey == "" {
		log.Printf("config: GEMINI_API_KEY is not set; oracle calls will fail")
	}
	if cfg.DatabaseURL == "" {
		log.Printf("config: DATABASE_URL is not set; query execution is disabled")
	}
	return cfg, nil
}

// EnsureDirs creates the directories the process writes into.
func (c *Config) EnsureDirs() error {
	for _, dir := range []string{c.MeasuresDir, c.ExportDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func envBool(key string, def bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return def
	}
	return v
}

func envFloat(key string, def float64) float64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return def
	}
	return v
}

func envInt(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}
