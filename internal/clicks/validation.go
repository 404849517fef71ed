package clicks

import (
	"fmt"

	"github.com/linkpeek/linkpeek/internal/model"
)

const (
	maxLinkIDLength   = 64
	visitorHashLength = 16
	maxLoadTimeMs     = 10 * 60 * 1000
)

// ValidatePayload validates outcome payload fields.
func ValidatePayload(payload OutcomePayload) error {
	if payload.LinkID == "" {
		return fmt.Errorf("link_id is required")
	}
	if len(payload.LinkID) > maxLinkIDLength {
		return fmt.Errorf("link_id too long")
	}
	if payload.Platform == "" {
		return fmt.Errorf("platform is required")
	}
	if payload.Browser == "" {
		return fmt.Errorf("browser is required")
	}
	if payload.VisitorHash != "" && (len(payload.VisitorHash) != visitorHashLength || !isHex(payload.VisitorHash)) {
		return fmt.Errorf("visitor_hash must be %d hex chars", visitorHashLength)
	}
	if payload.Country != "" && len(payload.Country) != 2 {
		return fmt.Errorf("country must be 2 chars")
	}
	if payload.LoadTimeMs != nil && (*payload.LoadTimeMs < 0 || *payload.LoadTimeMs > maxLoadTimeMs) {
		return fmt.Errorf("load_time_ms out of range")
	}
	if payload.Recovery != "" && !model.RecoveryStrategy(payload.Recovery).IsValid() {
		return fmt.Errorf("unknown recovery strategy %q", payload.Recovery)
	}
	if payload.ClickedAt <= 0 {
		return fmt.Errorf("clicked_at must be set")
	}
	if len(payload.Referrer) > maxMetaLength {
		return fmt.Errorf("referrer too long")
	}
	if len(payload.UserAgent) > maxMetaLength {
		return fmt.Errorf("user_agent too long")
	}
	return nil
}

func isHex(value string) bool {
	for i := 0; i < len(value); i++ {
		ch := value[i]
		if (ch >= '0' && ch <= '9') || (ch >= 'a' && ch <= 'f') || (ch >= 'A' && ch <= 'F') {
			continue
		}
		return false
	}
	return true
}
