package signing

import "testing"

func TestSignUnsignRoundTrip(t *testing.T) {
	secret := []byte("test-secret")
	payload := ReportPayload{Login: "jdoe", Date: "2026-07-28"}

	token, err := Sign(secret, payload)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	got, err := Unsign(secret, token)
	if err != nil {
		t.Fatalf("Unsign: %v", err)
	}
	if got != payload {
		t.Fatalf("Unsign() = %+v, want %+v", got, payload)
	}
}

func TestUnsignRejectsWrongSecret(t *testing.T) {
	token, err := Sign([]byte("secret-a"), ReportPayload{Login: "jdoe", Date: "2026-07-28"})
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	if _, err := Unsign([]byte("secret-b"), token); err != ErrInvalidToken {
		t.Fatalf("Unsign() with wrong secret = %v, want ErrInvalidToken", err)
	}
}

func TestUnsignRejectsTamperedPayload(t *testing.T) {
	secret := []byte("test-secret")
	token, err := Sign(secret, ReportPayload{Login: "jdoe", Date: "2026-07-28"})
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	tampered := []byte(token)
	tampered[0] ^= 0x01

	if _, err := Unsign(secret, string(tampered)); err == nil {
		t.Fatal("Unsign() accepted a tampered token")
	}
}

func TestUnsignRejectsGarbage(t *testing.T) {
	if _, err := Unsign([]byte("secret"), "not-valid-base64url!!"); err != ErrInvalidToken {
		t.Fatalf("Unsign() on garbage = %v, want ErrInvalidToken", err)
	}
}

func TestUnsignRejectsMissingSeparator(t *testing.T) {
	if _, err := Unsign([]byte("secret"), "aGVsbG8"); err != ErrInvalidToken {
		t.Fatalf("Unsign() on no-separator input = %v, want ErrInvalidToken", err)
	}
}
