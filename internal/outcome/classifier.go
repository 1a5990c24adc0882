package outcome

import (
	"errors"
	"net/http"
	"strings"
	"syscall"

	"PulseJoin/internal/gateway"
	"PulseJoin/internal/models"
)

// Outcome is the typed interpretation of a gateway result.
type Outcome struct {
	Type       models.OutcomeType
	StatusCode int
	Message    string
}

var disconnectMarkers = []string{"connection closed", "disconnected"}

var closedConnMarkers = []string{
	"connection reset",
	"econnreset",
	"socket hang up",
	"connection refused",
	"econnrefused",
	"broken pipe",
	"use of closed network connection",
}

// Classify maps a raw gateway result to an outcome. It has no side effects.
func Classify(res gateway.Result) Outcome {
	if res.StatusCode != 0 {
		return classifyStatus(res.StatusCode, res.Body)
	}
	if res.Err != nil {
		return classifyTransport(res.Err)
	}
	return Outcome{Type: models.OutcomeUnknownError, Message: "empty gateway result"}
}

func classifyStatus(code int, body string) Outcome {
	out := Outcome{StatusCode: code, Message: Snippet(body, 300)}
	switch {
	case code == http.StatusForbidden:
		out.Type = models.OutcomeRateLimited
	case code == http.StatusBadRequest:
		if containsAny(strings.ToLower(body), disconnectMarkers) {
			out.Type = models.OutcomeBanned
		} else {
			out.Type = models.OutcomeUnknownError
		}
	case code < 200 || code > 299:
		out.Type = models.OutcomeUnknownError
	default:
		out.Type = models.OutcomeSuccess
		out.Message = ""
	}
	return out
}

func classifyTransport(err error) Outcome {
	out := Outcome{Type: models.OutcomeUnknownError, Message: err.Error()}
	if isClosedConnection(err) {
		out.Type = models.OutcomeBanned
	}
	return out
}

func isClosedConnection(err error) bool {
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.EPIPE) {
		return true
	}
	return containsAny(strings.ToLower(err.Error()), closedConnMarkers)
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// Snippet trims s to at most n bytes without splitting a UTF-8 sequence.
func Snippet(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	cut := n
	for cut > 0 && !isRuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

func isRuneStart(b byte) bool { return b&0xC0 != 0x80 }
