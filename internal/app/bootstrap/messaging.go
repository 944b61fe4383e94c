package bootstrap

import (
	"strings"

	appconfig "github.com/wolfman30/practice-concierge/internal/config"
	"github.com/wolfman30/practice-concierge/internal/messaging"
	"github.com/wolfman30/practice-concierge/pkg/logging"
)

// BuildSender returns the Twilio WhatsApp sender when credentials are present
// and a logging sender otherwise. The provider name is returned for startup logs.
func BuildSender(cfg *appconfig.Config, logger *logging.Logger) (messaging.Sender, string) {
	if logger == nil {
		logger = logging.Default()
	}
	if cfg == nil || strings.TrimSpace(cfg.TwilioAccountSID) == "" || strings.TrimSpace(cfg.TwilioAuthToken) == "" {
		if cfg != nil && cfg.Env == "production" {
			logger.Warn("twilio credentials missing in production; outbound messages will only be logged")
		}
		return messaging.NewLogSender(logger), "log"
	}
	return messaging.NewTwilioSender(cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioFromNumber, logger), "twilio"
}

// BuildPracticeResolver maps inbound WhatsApp numbers to practices, applying
// the PRACTICE_PHONE_MAP_JSON overrides.
func BuildPracticeResolver(cfg *appconfig.Config, stores *Stores, logger *logging.Logger) *messaging.PracticeResolver {
	overrides, err := cfg.PracticePhoneMap()
	if err != nil {
		logger.Warn("ignoring practice phone map", "error", err)
		overrides = nil
	}
	return messaging.NewPracticeResolver(stores.Practices, overrides)
}
