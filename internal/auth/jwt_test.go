package auth

import (
	"testing"
	"time"
)

func TestAccessTokenRoundTrip(t *testing.T) {
	token, err := NewAccessToken("test-secret", "rollcall", time.Minute, Claims{
		UserID:   "s001",
		UserType: UserTypeStudent,
		DeviceID: "d1",
	})
	if err != nil {
		t.Fatalf("token error: %v", err)
	}

	claims, err := ParseToken("test-secret", "rollcall", token)
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	if claims.UserID != "s001" || claims.UserType != UserTypeStudent || claims.DeviceID != "d1" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestParseTokenRejectsWrongSecret(t *testing.T) {
	token, err := NewAccessToken("test-secret", "rollcall", time.Minute, Claims{
		UserID:   "t1",
		UserType: UserTypeTeacher,
	})
	if err != nil {
		t.Fatalf("token error: %v", err)
	}
	if _, err := ParseToken("other-secret", "rollcall", token); err == nil {
		t.Fatalf("expected parse to fail with wrong secret")
	}
	if _, err := ParseToken("test-secret", "other-issuer", token); err == nil {
		t.Fatalf("expected parse to fail with wrong issuer")
	}
}
