// Package eventsub implements the webhook side of Twitch EventSub: a
// listener that serves signed deliveries, verifies them against
// per-subscription derived secrets, drives the challenge handshake, and
// manages the subscribe/resume/suspend/stop lifecycle of each subscription.
package eventsub

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Header names Twitch attaches to EventSub webhook deliveries.
const (
	headerMessageID        = "Twitch-Eventsub-Message-Id"
	headerMessageTimestamp = "Twitch-Eventsub-Message-Timestamp"
	headerMessageSignature = "Twitch-Eventsub-Message-Signature"
	headerMessageType      = "Twitch-Eventsub-Message-Type"
)

// Message types carried in the Twitch-Eventsub-Message-Type header.
const (
	messageTypeVerification = "webhook_callback_verification"
	messageTypeNotification = "notification"
	messageTypeRevocation   = "revocation"
)

// maxSecretLength bounds derived signing secrets; Twitch rejects secrets
// longer than 100 characters.
const maxSecretLength = 100

// deriveSecret builds a subscription's signing secret from its identity and
// the shared listener secret, truncated to the trailing 100 characters so
// secrets stay bounded while remaining unique per subscription.
func deriveSecret(subscriptionID, listenerSecret string) string {
	s := subscriptionID + listenerSecret
	if len(s) > maxSecretLength {
		s = s[len(s)-maxSecretLength:]
	}
	return s
}

// Sign computes the signature header value for a delivery: an HMAC-SHA256
// over the concatenation of message ID, timestamp, and raw body, keyed with
// the subscription's derived secret.
func Sign(secret, messageID, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(messageID))
	mac.Write([]byte(timestamp))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// verifySignature checks a delivery's signature header ("<algo>=<hex>")
// against the derived secret. Missing headers and unknown algorithms fail
// verification.
func verifySignature(secret, signatureHeader, messageID, timestamp string, body []byte) bool {
	algo, provided, found := strings.Cut(signatureHeader, "=")
	if !found || provided == "" {
		return false
	}
	if algo != "sha256" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(messageID))
	mac.Write([]byte(timestamp))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(provided))
}
