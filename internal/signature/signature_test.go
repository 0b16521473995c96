package signature

import (
	"errors"
	"strings"
	"testing"
)

func TestVerify(t *testing.T) {
	secret := "s3cr3t"
	body := []byte(`{"event":"order.created"}`)
	good := Compute(secret, body)

	tests := []struct {
		name    string
		secret  string
		body    []byte
		header  string
		wantErr error
	}{
		{
			name:   "valid signature",
			secret: secret,
			body:   body,
			header: good,
		},
		{
			name:   "uppercase scheme accepted",
			secret: secret,
			body:   body,
			header: "SHA256" + good[len("sha256"):],
		},
		{
			name:   "no secret skips verification",
			secret: "",
			body:   body,
			header: "",
		},
		{
			name:   "no secret ignores garbage header",
			secret: "",
			body:   body,
			header: "garbage",
		},
		{
			name:    "missing header",
			secret:  secret,
			body:    body,
			header:  "",
			wantErr: ErrMalformed,
		},
		{
			name:    "no separator",
			secret:  secret,
			body:    body,
			header:  "deadbeef",
			wantErr: ErrMalformed,
		},
		{
			name:    "wrong method",
			secret:  secret,
			body:    body,
			header:  "sha1=deadbeef",
			wantErr: ErrMalformed,
		},
		{
			name:    "digest not hex",
			secret:  secret,
			body:    body,
			header:  "sha256=not-hex!",
			wantErr: ErrMalformed,
		},
		{
			name:    "wrong secret",
			secret:  "other-secret",
			body:    body,
			header:  good,
			wantErr: ErrMismatch,
		},
		{
			name:    "body tampered",
			secret:  secret,
			body:    []byte(`{"event":"order.deleted"}`),
			header:  good,
			wantErr: ErrMismatch,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Verify(tt.secret, tt.body, tt.header)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("Verify() unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Verify() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestVerifyByteFlip(t *testing.T) {
	secret := "s3cr3t"
	body := []byte(`{"n":42}`)
	good := Compute(secret, body)

	// Flipping any digest nibble must fail verification.
	digest := good[len("sha256="):]
	for i := 0; i < len(digest); i++ {
		flipped := []byte(digest)
		if flipped[i] == '0' {
			flipped[i] = '1'
		} else {
			flipped[i] = '0'
		}
		header := "sha256=" + string(flipped)
		if err := Verify(secret, body, header); !errors.Is(err, ErrMismatch) {
			t.Fatalf("Verify() with flipped digest byte %d: error = %v, want ErrMismatch", i, err)
		}
	}
}

func TestComputeDeterministic(t *testing.T) {
	body := []byte(`{"a":1}`)
	first := Compute("k", body)
	second := Compute("k", body)
	if first != second {
		t.Errorf("Compute() not deterministic: %q vs %q", first, second)
	}
	if !strings.HasPrefix(first, "sha256=") {
		t.Errorf("Compute() = %q, want sha256= prefix", first)
	}
	if len(first) != len("sha256=")+64 {
		t.Errorf("Compute() digest length = %d, want 64 hex chars", len(first)-len("sha256="))
	}
	if err := Verify("k", body, first); err != nil {
		t.Errorf("Verify(Compute()) unexpected error: %v", err)
	}
}
