// LinkPeek Alert Receiver Example
//
// A minimal receiver that verifies and logs LinkPeek incident alerts.
//
// Usage:
//   export LINKPEEK_ALERT_SECRET="whsec_your_secret_here"
//   go run main.go
//
// Then set ALERT_WEBHOOK_URL=http://your-server:9000/alerts on the detector.

package main

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strconv"
	"time"
)

const replayWindow = 5 * time.Minute

// Alert is the webhook payload for incident.opened and incident.resolved.
type Alert struct {
	EventType string    `json:"event_type"`
	EventID   string    `json:"event_id"`
	Timestamp time.Time `json:"timestamp"`
	Incident  Incident  `json:"incident"`
}

type Incident struct {
	ID            string     `json:"id"`
	Platform      string     `json:"platform"`
	Country       string     `json:"country"`
	Device        string     `json:"device"`
	ErrorRate     float64    `json:"error_rate"`
	Severity      string     `json:"severity"`
	SampleSize    int        `json:"sample_size"`
	AffectedUsers int        `json:"affected_users"`
	ResolvedAt    *time.Time `json:"resolved_at"`
}

func main() {
	secret := os.Getenv("LINKPEEK_ALERT_SECRET")
	if secret == "" {
		log.Fatal("LINKPEEK_ALERT_SECRET environment variable is required")
	}

	http.HandleFunc("/alerts", alertHandler(secret))
	http.HandleFunc("/health", healthHandler)

	log.Println("Starting alert receiver on :9000")
	log.Fatal(http.ListenAndServe(":9000", nil))
}

func alertHandler(secret string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
		if err != nil {
			http.Error(w, "Bad request", http.StatusBadRequest)
			return
		}
		defer r.Body.Close()

		ts, err := strconv.ParseInt(r.Header.Get("X-Linkpeek-Timestamp"), 10, 64)
		if err != nil {
			http.Error(w, "Missing timestamp", http.StatusUnauthorized)
			return
		}
		if err := verifySignature(secret, r.Header.Get("X-Linkpeek-Signature"), ts, body, time.Now()); err != nil {
			log.Printf("Rejected delivery %s: %v", r.Header.Get("X-Linkpeek-Delivery-Id"), err)
			http.Error(w, "Invalid signature", http.StatusUnauthorized)
			return
		}

		var alert Alert
		if err := json.Unmarshal(body, &alert); err != nil {
			http.Error(w, "Invalid JSON", http.StatusBadRequest)
			return
		}

		inc := alert.Incident
		log.Printf("%s %s: %s/%s/%s error rate %.1f%% (%s, %d samples, %d users)",
			alert.EventType, inc.ID, inc.Platform, inc.Country, inc.Device,
			inc.ErrorRate, inc.Severity, inc.SampleSize, inc.AffectedUsers)

		w.WriteHeader(http.StatusNoContent)
	}
}

// verifySignature checks the HMAC-SHA256 of "{timestamp}.{body}" and
// rejects timestamps more than five minutes from now.
func verifySignature(secret, signature string, ts int64, body []byte, now time.Time) error {
	if signature == "" {
		return fmt.Errorf("missing signature")
	}
	if d := now.Sub(time.Unix(ts, 0)); d > replayWindow || d < -replayWindow {
		return fmt.Errorf("timestamp outside replay window")
	}

	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.%s", ts, body)
	expected := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(signature), []byte(expected)) {
		return fmt.Errorf("signature mismatch")
	}
	return nil
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
