package preflight

import (
	"fmt"
	"log"
	"net/url"

	"aitwin/internal/config"
)

// CheckResult represents the result of a preflight check
type CheckResult struct {
	Name    string
	Status  string // "pass", "fail", "warning"
	Message string
	Error   error
}

// Checker performs pre-flight checks before server starts
type Checker struct {
	cfg *config.Config
}

// NewChecker creates a new preflight checker
func NewChecker(cfg *config.Config) *Checker {
	return &Checker{cfg: cfg}
}

// RunAll runs all preflight checks and returns results
func (c *Checker) RunAll() []CheckResult {
	log.Println("🔍 Running pre-flight checks...")

	results := []CheckResult{
		c.checkAuthentication(),
		c.checkModelBackends(),
		c.checkSearchInstances(),
		c.checkLongTermMemory(),
		c.checkTelegram(),
		c.checkTuning(),
	}

	passed, failed, warnings := 0, 0, 0
	for _, result := range results {
		switch result.Status {
		case "pass":
			log.Printf("   ✅ %s: %s", result.Name, result.Message)
			passed++
		case "fail":
			log.Printf("   ❌ %s: %s", result.Name, result.Message)
			if result.Error != nil {
				log.Printf("      Error: %v", result.Error)
			}
			failed++
		case "warning":
			log.Printf("   ⚠️  %s: %s", result.Name, result.Message)
			warnings++
		}
	}

	log.Printf("📊 Pre-flight summary: %d passed, %d failed, %d warnings", passed, failed, warnings)

	return results
}

// HasFailures returns true if any check failed
func HasFailures(results []CheckResult) bool {
	for _, result := range results {
		if result.Status == "fail" {
			return true
		}
	}
	return false
}

func (c *Checker) checkAuthentication() CheckResult {
	const name = "Authentication"

	if c.cfg.JWTSecret == "" {
		if c.cfg.IsProduction() {
			return CheckResult{Name: name, Status: "fail", Message: "JWT_SECRET is required in production"}
		}
		return CheckResult{Name: name, Status: "warning", Message: "JWT_SECRET not set, requests run as dev-user"}
	}

	if c.cfg.EnableDevTokens && c.cfg.IsProduction() {
		return CheckResult{Name: name, Status: "warning", Message: "ENABLE_DEV_TOKENS is ignored in production"}
	}

	return CheckResult{Name: name, Status: "pass", Message: "JWT authentication configured"}
}

func (c *Checker) checkModelBackends() CheckResult {
	const name = "Model Backends"

	if c.cfg.GroqAPIKey == "" {
		return CheckResult{
			Name:    name,
			Status:  "warning",
			Message: "GROQ_API_KEY not set, general and fallback backends are unavailable",
		}
	}
	if c.cfg.OllamaBaseURL == "" {
		return CheckResult{Name: name, Status: "warning", Message: "OLLAMA_BASE_URL not set, local backend unavailable"}
	}

	return CheckResult{Name: name, Status: "pass", Message: "General and local backends configured"}
}

func (c *Checker) checkSearchInstances() CheckResult {
	const name = "Search Instances"

	for _, raw := range c.cfg.SearXNGURLs {
		u, err := url.Parse(raw)
		if err != nil {
			return CheckResult{Name: name, Status: "fail", Message: fmt.Sprintf("Invalid SearXNG URL %q", raw), Error: err}
		}
		if u.Scheme != "http" && u.Scheme != "https" || u.Host == "" {
			return CheckResult{Name: name, Status: "fail", Message: fmt.Sprintf("SearXNG URL %q must be an absolute http(s) URL", raw)}
		}
	}

	return CheckResult{Name: name, Status: "pass", Message: fmt.Sprintf("%d SearXNG instance(s) configured", len(c.cfg.SearXNGURLs))}
}

func (c *Checker) checkLongTermMemory() CheckResult {
	const name = "Long-Term Memory"

	if c.cfg.EmbeddingURL == "" {
		return CheckResult{Name: name, Status: "warning", Message: "EMBEDDING_URL not set, long-term memory disabled"}
	}
	if c.cfg.VectorDBPath == "" {
		return CheckResult{Name: name, Status: "fail", Message: "VECTOR_DB_PATH is required when EMBEDDING_URL is set"}
	}

	return CheckResult{Name: name, Status: "pass", Message: "Embedding service configured"}
}

func (c *Checker) checkTelegram() CheckResult {
	const name = "Telegram Relay"

	switch {
	case c.cfg.TelegramBotToken == "":
		return CheckResult{Name: name, Status: "pass", Message: "Disabled"}
	case c.cfg.TwinOwnerID == "":
		return CheckResult{Name: name, Status: "warning", Message: "TELEGRAM_BOT_TOKEN set without TWIN_OWNER_ID, relay disabled"}
	}

	return CheckResult{Name: name, Status: "pass", Message: fmt.Sprintf("Relaying for owner %s", c.cfg.TwinOwnerID)}
}

func (c *Checker) checkTuning() CheckResult {
	const name = "Tuning"

	switch {
	case c.cfg.ShortTermCapacity <= 0:
		return CheckResult{Name: name, Status: "fail", Message: "SHORT_TERM_CAPACITY must be positive"}
	case c.cfg.MaxToolTurns <= 0:
		return CheckResult{Name: name, Status: "fail", Message: "MAX_TOOL_TURNS must be positive"}
	case c.cfg.LongTermThreshold < 0 || c.cfg.LongTermThreshold > 1:
		return CheckResult{Name: name, Status: "fail", Message: "LONG_TERM_THRESHOLD must be between 0 and 1"}
	case c.cfg.RequestTimeout <= 0:
		return CheckResult{Name: name, Status: "fail", Message: "REQUEST_TIMEOUT must be positive"}
	}

	return CheckResult{Name: name, Status: "pass", Message: "Memory and loop limits valid"}
}
