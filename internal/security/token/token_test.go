package token

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/oklog/ulid/v2"
)

func TestNewSessionSecret_EncodingAndUniqueness(t *testing.T) {
	t.Parallel()

	seen := make(map[string]struct{}, 64)
	for i := 0; i < 64; i++ {
		s, err := NewSessionSecret()
		if err != nil {
			t.Fatalf("NewSessionSecret: %v", err)
		}

		raw, err := base64.RawURLEncoding.DecodeString(s)
		if err != nil {
			t.Fatalf("secret is not raw-url base64: %v", err)
		}
		if len(raw) != SecretBytes {
			t.Fatalf("secret entropy: got %d bytes, want %d", len(raw), SecretBytes)
		}
		if strings.ContainsAny(s, "+/=") {
			t.Fatalf("secret not cookie-safe: %q", s)
		}

		if _, dup := seen[s]; dup {
			t.Fatalf("duplicate secret after %d draws", i)
		}
		seen[s] = struct{}{}
	}
}

func TestHashSecretHex_DeterministicAndDistinct(t *testing.T) {
	t.Parallel()

	a := HashSecretHex("secret-one")
	b := HashSecretHex("secret-one")
	c := HashSecretHex("secret-two")

	if a != b {
		t.Fatalf("hash not deterministic: %q vs %q", a, b)
	}
	if len(a) != 64 {
		t.Fatalf("digest length: got %d, want 64 hex chars", len(a))
	}
	if a == c {
		t.Fatalf("distinct inputs produced equal digests")
	}
}

func TestDecodeControlKey_Base64FirstRawFallback(t *testing.T) {
	t.Parallel()

	raw := []byte("hello world!") // contains a space: never valid base64
	encoded := base64.StdEncoding.EncodeToString(raw)

	fromEncoded, err := DecodeControlKey(encoded)
	if err != nil {
		t.Fatalf("DecodeControlKey(base64): %v", err)
	}
	fromRaw, err := DecodeControlKey(string(raw))
	if err != nil {
		t.Fatalf("DecodeControlKey(raw): %v", err)
	}

	if string(fromEncoded) != string(raw) {
		t.Fatalf("base64 branch: got %q, want %q", fromEncoded, raw)
	}
	if string(fromRaw) != string(raw) {
		t.Fatalf("raw branch: got %q, want %q", fromRaw, raw)
	}

	if _, err := DecodeControlKey("   "); err != ErrControlSecretMissing {
		t.Fatalf("blank secret: got %v, want ErrControlSecretMissing", err)
	}
}

func TestControlTag_RoundTripAndKeyEquivalence(t *testing.T) {
	t.Parallel()

	rawKey := "hello world! hello world! ok 32b"
	b64Key := base64.StdEncoding.EncodeToString([]byte(rawKey))
	sid := ulid.Make().String()

	tag, err := MakeControlTag(rawKey, sid)
	if err != nil {
		t.Fatalf("MakeControlTag: %v", err)
	}
	if !VerifyControlTag(rawKey, sid, tag) {
		t.Fatalf("tag did not verify under its own key")
	}

	// Base64-encoded and raw spellings of the same key bytes must agree.
	tag2, err := MakeControlTag(b64Key, sid)
	if err != nil {
		t.Fatalf("MakeControlTag(base64 key): %v", err)
	}
	if tag != tag2 {
		t.Fatalf("key-format mismatch: %q vs %q", tag, tag2)
	}
}

func TestVerifyControlTag_RejectsTampering(t *testing.T) {
	t.Parallel()

	key := "control key with a space so raw"
	sid := ulid.Make().String()

	tag, err := MakeControlTag(key, sid)
	if err != nil {
		t.Fatalf("MakeControlTag: %v", err)
	}

	// Flip a single byte of the tag.
	rawTag, err := base64.StdEncoding.DecodeString(tag)
	if err != nil {
		t.Fatalf("decode tag: %v", err)
	}
	for i := range rawTag {
		mutated := make([]byte, len(rawTag))
		copy(mutated, rawTag)
		mutated[i] ^= 0x01
		if VerifyControlTag(key, sid, base64.StdEncoding.EncodeToString(mutated)) {
			t.Fatalf("accepted tag with byte %d flipped", i)
		}
	}

	// A tag for a different session never verifies.
	other := ulid.Make().String()
	if VerifyControlTag(key, other, tag) {
		t.Fatalf("accepted tag bound to a different session id")
	}

	// A tag computed under a different key never verifies.
	if VerifyControlTag("a different control key here ok", sid, tag) {
		t.Fatalf("accepted tag computed under a different key")
	}
}

func TestVerifyControlTag_FailsClosedOnMalformedInput(t *testing.T) {
	t.Parallel()

	key := "control key with a space so raw"
	sid := ulid.Make().String()

	if VerifyControlTag(key, "not-a-ulid", "whatever") {
		t.Fatalf("accepted malformed session id")
	}
	if VerifyControlTag(key, sid, "%%% not base64 %%%") {
		t.Fatalf("accepted malformed tag encoding")
	}
	if VerifyControlTag(key, sid, "") {
		t.Fatalf("accepted empty tag")
	}
	if VerifyControlTag("", sid, "") {
		t.Fatalf("accepted empty control secret")
	}
}
