package token

import (
	"testing"
	"time"
)

func TestSignAndParseAccessToken(t *testing.T) {
	tok, _, err := SignAccessToken(42, "alice", time.Minute)
	if err != nil {
		t.Fatalf("SignAccessToken() error = %v", err)
	}
	claims, err := ParseAccessToken(tok)
	if err != nil {
		t.Fatalf("ParseAccessToken() error = %v", err)
	}
	if claims.UserID != 42 || claims.Username != "alice" {
		t.Fatalf("claims = %+v, want userId=42 username=alice", claims)
	}
}

func TestParseAccessToken_Expired(t *testing.T) {
	tok, _, err := SignAccessToken(1, "bob", -time.Minute)
	if err != nil {
		t.Fatalf("SignAccessToken() error = %v", err)
	}
	if _, err := ParseAccessToken(tok); err != ErrInvalidToken {
		t.Fatalf("ParseAccessToken(expired) error = %v, want ErrInvalidToken", err)
	}
}

func TestParseAccessToken_Garbage(t *testing.T) {
	if _, err := ParseAccessToken("not.a.token"); err != ErrInvalidToken {
		t.Fatalf("ParseAccessToken(garbage) error = %v, want ErrInvalidToken", err)
	}
}
