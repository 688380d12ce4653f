package application

import (
	"errors"
	"strings"
	"testing"
)

var testArgon2idParams = Argon2idParams{
	Memory:      1024,
	Iterations:  1,
	Parallelism: 1,
	SaltLength:  8,
	KeyLength:   16,
}

func TestCreatePasswordHash(t *testing.T) {
	t.Parallel()

	hash, err := CreatePasswordHash("s3cret", testArgon2idParams)
	if err != nil {
		t.Fatalf("CreatePasswordHash failed: %v", err)
	}
	if !strings.HasPrefix(hash, "$argon2id$v=19$m=1024,t=1,p=1$") {
		t.Fatalf("unexpected encoding: %s", hash)
	}

	other, err := CreatePasswordHash("s3cret", testArgon2idParams)
	if err != nil {
		t.Fatalf("CreatePasswordHash failed: %v", err)
	}
	if other == hash {
		t.Fatalf("expected salted hashes to differ")
	}

	if _, err := CreatePasswordHash("", testArgon2idParams); err == nil {
		t.Fatalf("expected error for empty password")
	}
}

func TestVerifyPassword(t *testing.T) {
	t.Parallel()

	hash, err := CreatePasswordHash("s3cret", testArgon2idParams)
	if err != nil {
		t.Fatalf("CreatePasswordHash failed: %v", err)
	}

	t.Run("accepts the original password", func(t *testing.T) {
		t.Parallel()
		if err := VerifyPassword(hash, "s3cret"); err != nil {
			t.Fatalf("expected match, got %v", err)
		}
	})

	t.Run("rejects other passwords", func(t *testing.T) {
		t.Parallel()
		if err := VerifyPassword(hash, "guess"); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("expected ErrInvalidCredentials, got %v", err)
		}
	})

	t.Run("rejects malformed encodings", func(t *testing.T) {
		t.Parallel()
		for _, bad := range []string{"plain", "$bcrypt$v=19$m=1,t=1,p=1$a$b", "$argon2id$v=x$m=1,t=1,p=1$a$b"} {
			if err := VerifyPassword(bad, "s3cret"); !errors.Is(err, ErrInvalidPasswordHash) {
				t.Fatalf("expected ErrInvalidPasswordHash for %q, got %v", bad, err)
			}
		}
	})

	t.Run("rejects other argon2 versions", func(t *testing.T) {
		t.Parallel()
		old := strings.Replace(hash, "v=19", "v=16", 1)
		if err := VerifyPassword(old, "s3cret"); !errors.Is(err, ErrIncompatiblePasswordVersion) {
			t.Fatalf("expected ErrIncompatiblePasswordVersion, got %v", err)
		}
	})
}
