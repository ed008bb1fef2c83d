package security

import (
	"testing"
	"time"
)

func TestJobToken_MintAndVerify(t *testing.T) {
	t.Parallel()
	svc := NewJobTokenService("unit-test-secret", time.Minute)

	token, err := svc.Mint("job-1", "tenant-a", "user-1")
	if err != nil {
		t.Fatal(err)
	}

	claims, err := svc.Verify(token, "job-1", "tenant-a")
	if err != nil {
		t.Fatal(err)
	}
	if claims.TenantID != "tenant-a" || claims.UserID != "user-1" || claims.Subject != "job-1" {
		t.Fatalf("claims = %+v", claims)
	}
}

func TestJobToken_ScopeMismatch(t *testing.T) {
	t.Parallel()
	svc := NewJobTokenService("unit-test-secret", time.Minute)
	token, err := svc.Mint("job-1", "tenant-a", "user-1")
	if err != nil {
		t.Fatal(err)
	}

	if _, err := svc.Verify(token, "job-2", "tenant-a"); err == nil {
		t.Fatal("foreign job accepted")
	}
	if _, err := svc.Verify(token, "job-1", "tenant-b"); err == nil {
		t.Fatal("foreign tenant accepted")
	}
}

func TestJobToken_WrongSecretRejected(t *testing.T) {
	t.Parallel()
	minter := NewJobTokenService("secret-a", time.Minute)
	verifier := NewJobTokenService("secret-b", time.Minute)

	token, err := minter.Mint("job-1", "tenant-a", "user-1")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := verifier.Verify(token, "job-1", "tenant-a"); err == nil {
		t.Fatal("forged token accepted")
	}
}

func TestJobToken_Expired(t *testing.T) {
	t.Parallel()
	svc := &JobTokenService{secret: []byte("unit-test-secret"), ttl: -time.Minute}

	token, err := svc.Mint("job-1", "tenant-a", "user-1")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Verify(token, "job-1", "tenant-a"); err == nil {
		t.Fatal("expired token accepted")
	}
}

func TestEncryption_RoundTrip(t *testing.T) {
	t.Parallel()
	svc, err := NewEncryptionService("0123456789abcdef0123456789abcdef")
	if err != nil {
		t.Fatal(err)
	}

	enc, err := svc.Encrypt("the user runs a bakery in Lyon")
	if err != nil {
		t.Fatal(err)
	}
	if enc == "the user runs a bakery in Lyon" {
		t.Fatal("plaintext passed through")
	}
	dec, err := svc.Decrypt(enc)
	if err != nil {
		t.Fatal(err)
	}
	if dec != "the user runs a bakery in Lyon" {
		t.Fatalf("round trip = %q", dec)
	}
}

func TestEncryption_RejectsBadKeyLength(t *testing.T) {
	t.Parallel()
	for _, key := range []string{"", "short", "0123456789abcdef0123456789abcdef0"} {
		if _, err := NewEncryptionService(key); err == nil {
			t.Fatalf("key of %d bytes accepted", len(key))
		}
	}
}
