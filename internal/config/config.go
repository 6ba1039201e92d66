package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	DBPath     string
	IntakeDir  string
	RawMailDir string
	OutputDir  string
	CacheDir   string

	StyleDBPath         string
	StyleDBColumn       string
	SupplierDBPath      string
	SupplierAgentColumn string
	DeductionDBPath     string

	LLMBaseURL          string
	LLMAPIKey           string
	LLMModel            string
	LLMAltBaseURL       string
	LLMAltAPIKey        string
	LLMAltModel         string
	LLMTemperature      float64
	LLMTimeoutMs        int
	LLMLenientSanitize  bool

	ERPBaseURL      string
	ERPToken        string
	ERPRateLimitRPS int
	ERPTimeoutMs    int

	ValidStylePrefixes    []string
	FallbackStylePrefixes []string
	DateThresholdDays     int
	StyleMaxRetries       int
	MatchMaxRetries       int
	MatchRetryDelaySec    int

	ExtractConcurrency int
	ExecuteConcurrency int

	IMAPHost     string
	IMAPPort     int
	IMAPSecure   bool
	IMAPUser     string
	IMAPPassword string
	IMAPMarkSeen bool

	MailListenerLabel       string
	MailListenerIntervalSec int
	MailListenerFetchMax    int
	MailListenerAutoExport  bool
}

func Load() (Config, error) {
	_ = godotenv.Load()

	cwd, err := os.Getwd()
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		DBPath:     getEnv("DB_PATH", filepath.Join(cwd, "data", "app.db")),
		IntakeDir:  getEnv("INTAKE_DIR", filepath.Join(cwd, "data", "intake")),
		RawMailDir: getEnv("MAIL_RAW_DIR", filepath.Join(cwd, "data", "raw")),
		OutputDir:  getEnv("OUTPUT_DIR", filepath.Join(cwd, "out")),
		CacheDir:   getEnv("CACHE_DIR", filepath.Join(cwd, "data", "cache")),

		StyleDBPath:         getEnv("STYLE_DB_PATH", filepath.Join(cwd, "data", "refdata", "styles.xlsx")),
		StyleDBColumn:       getEnv("STYLE_DB_COLUMN", "款式编号"),
		SupplierDBPath:      getEnv("SUPPLIER_DB_PATH", filepath.Join(cwd, "data", "refdata", "suppliers.xlsx")),
		SupplierAgentColumn: getEnv("SUPPLIER_AGENT_COLUMN", "跟单员"),
		DeductionDBPath:     getEnv("DEDUCTION_DB_PATH", filepath.Join(cwd, "data", "refdata", "deductions.xlsx")),

		LLMBaseURL:         getEnv("LLM_BASE_URL", "https://api.siliconflow.cn/v1"),
		LLMAPIKey:          getEnv("LLM_API_KEY", ""),
		LLMModel:           getEnv("LLM_MODEL", "Qwen/Qwen2.5-VL-72B-Instruct"),
		LLMAltBaseURL:      getEnv("LLM_ALT_BASE_URL", "https://www.dmxapi.cn/v1"),
		LLMAltAPIKey:       getEnv("LLM_ALT_API_KEY", ""),
		LLMAltModel:        getEnv("LLM_ALT_MODEL", "gemini-2.5-flash"),
		LLMTemperature:     getEnvFloat("LLM_TEMPERATURE", 0.1),
		LLMTimeoutMs:       getEnvInt("LLM_TIMEOUT_MS", 90000),
		LLMLenientSanitize: getEnvBool("LLM_LENIENT_SANITIZE", true),

		ERPBaseURL:      getEnv("ERP_BASE_URL", "https://a1.scm321.com/api"),
		ERPToken:        getEnv("ERP_TOKEN", ""),
		ERPRateLimitRPS: getEnvInt("ERP_RATE_LIMIT_RPS", 2),
		ERPTimeoutMs:    getEnvInt("ERP_TIMEOUT_MS", 30000),

		ValidStylePrefixes:    getEnvList("VALID_STYLE_PREFIXES", []string{"T", "H", "X", "D"}),
		FallbackStylePrefixes: getEnvList("FALLBACK_STYLE_PREFIXES", []string{"T", "H", "X", "D", "L", "S", "F"}),
		DateThresholdDays:     getEnvInt("DELIVERY_DATE_THRESHOLD_DAYS", 7),
		StyleMaxRetries:       getEnvInt("STYLE_MAX_RETRIES", 3),
		MatchMaxRetries:       getEnvInt("MATCH_MAX_RETRIES", 3),
		MatchRetryDelaySec:    getEnvInt("MATCH_RETRY_DELAY_SEC", 2),

		ExtractConcurrency: getEnvInt("EXTRACT_CONCURRENCY", 4),
		ExecuteConcurrency: getEnvInt("EXECUTE_CONCURRENCY", 1),

		IMAPHost:     getEnv("IMAP_HOST", ""),
		IMAPPort:     getEnvInt("IMAP_PORT", 993),
		IMAPSecure:   getEnvBool("IMAP_SECURE", true),
		IMAPUser:     getEnv("IMAP_USER", ""),
		IMAPPassword: getEnv("IMAP_PASSWORD", ""),
		IMAPMarkSeen: getEnvBool("IMAP_MARK_SEEN", false),

		MailListenerLabel:       getEnv("MAIL_LISTENER_LABEL", "INBOX"),
		MailListenerIntervalSec: getEnvInt("MAIL_LISTENER_INTERVAL_SEC", 60),
		MailListenerFetchMax:    getEnvInt("MAIL_LISTENER_FETCH_MAX", 20),
		MailListenerAutoExport:  getEnvBool("MAIL_LISTENER_AUTO_EXPORT", true),
	}

	return cfg, nil
}

func (c Config) Require(name, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("missing required env var: %s", name)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value := getEnv(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvFloat(key string, fallback float64) float64 {
	value := getEnv(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	value := strings.ToLower(strings.TrimSpace(getEnv(key, "")))
	if value == "" {
		return fallback
	}
	if value == "1" || value == "true" || value == "yes" || value == "on" {
		return true
	}
	if value == "0" || value == "false" || value == "no" || value == "off" {
		return false
	}
	return fallback
}

func getEnvList(key string, fallback []string) []string {
	value := getEnv(key, "")
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
