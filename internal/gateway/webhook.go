package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// SignatureHeader is the HTTP header carrying the webhook signature.
const SignatureHeader = "X-Gateway-Signature"

// Tolerance is how far a webhook timestamp may drift before the event is
// rejected as a possible replay.
const Tolerance = 5 * time.Minute

var (
	ErrInvalidSignature = errors.New("webhook signature verification failed")
	ErrStaleEvent       = errors.New("webhook timestamp outside tolerance")
)

// eventEnvelope is the raw wire format of a webhook delivery.
type eventEnvelope struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Created int64  `json:"created"`
	Data    struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

// VerifySignature checks the signature header against the raw payload and
// parses the event. The header format is "t=<unix>,v1=<hex hmac>" where the
// HMAC-SHA256 is computed over "<unix>.<payload>" with the endpoint secret.
func VerifySignature(payload []byte, header, secret string) (Event, error) {
	return verifySignatureAt(payload, header, secret, time.Now())
}

func verifySignatureAt(payload []byte, header, secret string, now time.Time) (Event, error) {
	ts, sig, err := parseSignatureHeader(header)
	if err != nil {
		return Event{}, err
	}

	if d := now.Sub(time.Unix(ts, 0)); d > Tolerance || d < -Tolerance {
		return Event{}, ErrStaleEvent
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strconv.FormatInt(ts, 10)))
	mac.Write([]byte("."))
	mac.Write(payload)
	expected := mac.Sum(nil)

	got, err := hex.DecodeString(sig)
	if err != nil || !hmac.Equal(expected, got) {
		return Event{}, ErrInvalidSignature
	}

	return parseEvent(payload)
}

// Sign produces a signature header for payload at the given time. Used by
// tests and by local tooling that simulates gateway deliveries.
func Sign(payload []byte, secret string, at time.Time) string {
	ts := strconv.FormatInt(at.Unix(), 10)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(ts))
	mac.Write([]byte("."))
	mac.Write(payload)
	return fmt.Sprintf("t=%s,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

func parseSignatureHeader(header string) (ts int64, sig string, err error) {
	for _, part := range strings.Split(header, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch k {
		case "t":
			ts, err = strconv.ParseInt(v, 10, 64)
			if err != nil {
				return 0, "", ErrInvalidSignature
			}
		case "v1":
			sig = v
		}
	}
	if ts == 0 || sig == "" {
		return 0, "", ErrInvalidSignature
	}
	return ts, sig, nil
}

func parseEvent(payload []byte) (Event, error) {
	var env eventEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return Event{}, fmt.Errorf("decode webhook event: %w", err)
	}

	ev := Event{
		ID:        env.ID,
		Type:      env.Type,
		CreatedAt: time.Unix(env.Created, 0).UTC(),
	}

	switch {
	case strings.HasPrefix(env.Type, "checkout.session."):
		var sess Session
		if err := json.Unmarshal(env.Data.Object, &sess); err != nil {
			return Event{}, fmt.Errorf("decode session object: %w", err)
		}
		ev.Session = &sess
	case strings.HasPrefix(env.Type, "payment_intent."):
		var pi PaymentIntent
		if err := json.Unmarshal(env.Data.Object, &pi); err != nil {
			return Event{}, fmt.Errorf("decode payment intent object: %w", err)
		}
		ev.PaymentIntent = &pi
	}

	return ev, nil
}
