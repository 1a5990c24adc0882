package outcome

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"syscall"
	"testing"

	"PulseJoin/internal/gateway"
	"PulseJoin/internal/models"
)

func TestClassify(t *testing.T) {
	resetErr := &net.OpError{Op: "read", Net: "tcp", Err: os.NewSyscallError("read", syscall.ECONNRESET)}

	tests := []struct {
		name string
		res  gateway.Result
		want models.OutcomeType
	}{
		{"created", gateway.Result{StatusCode: 201, Body: `{}`}, models.OutcomeSuccess},
		{"ok", gateway.Result{StatusCode: 200}, models.OutcomeSuccess},
		{"forbidden", gateway.Result{StatusCode: 403, Body: "not allowed"}, models.OutcomeRateLimited},
		{"connection closed", gateway.Result{StatusCode: 400, Body: `{"message":["Connection Closed"]}`}, models.OutcomeBanned},
		{"disconnected", gateway.Result{StatusCode: 400, Body: "instance DISCONNECTED"}, models.OutcomeBanned},
		{"bad request", gateway.Result{StatusCode: 400, Body: "invalid jid"}, models.OutcomeUnknownError},
		{"server error", gateway.Result{StatusCode: 500, Body: "connection closed"}, models.OutcomeUnknownError},
		{"not found", gateway.Result{StatusCode: 404}, models.OutcomeUnknownError},
		{"reset syscall", gateway.Result{Err: resetErr}, models.OutcomeBanned},
		{"refused syscall", gateway.Result{Err: fmt.Errorf("dial: %w", syscall.ECONNREFUSED)}, models.OutcomeBanned},
		{"hang up message", gateway.Result{Err: errors.New("socket hang up")}, models.OutcomeBanned},
		{"timeout", gateway.Result{Err: context.DeadlineExceeded}, models.OutcomeUnknownError},
		{"other transport", gateway.Result{Err: errors.New("tls: handshake failure")}, models.OutcomeUnknownError},
		{"empty", gateway.Result{}, models.OutcomeUnknownError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.res)
			if got.Type != tt.want {
				t.Fatalf("Classify() = %s, want %s", got.Type, tt.want)
			}
			if again := Classify(tt.res); again != got {
				t.Errorf("Classify not deterministic: %+v vs %+v", got, again)
			}
		})
	}
}

func TestClassifyPassesMessageThrough(t *testing.T) {
	got := Classify(gateway.Result{StatusCode: 400, Body: "  participant not on whatsapp "})
	if got.Message != "participant not on whatsapp" {
		t.Errorf("Message = %q", got.Message)
	}
	if got.StatusCode != 400 {
		t.Errorf("StatusCode = %d", got.StatusCode)
	}
}

func TestSnippet(t *testing.T) {
	if got := Snippet("héllo", 2); got != "h" {
		t.Errorf("Snippet split a rune: %q", got)
	}
	if got := Snippet("abc", 10); got != "abc" {
		t.Errorf("Snippet = %q", got)
	}
}
