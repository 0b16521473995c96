package auth

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	testIssuer   = "hookline"
	testAudience = "hookline-api"
)

func testKeys(t *testing.T) (*rsa.PrivateKey, string) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("GenerateKey() unexpected error: %v", err)
	}
	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		t.Fatalf("MarshalPKIXPublicKey() unexpected error: %v", err)
	}
	publicPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})
	return key, string(publicPEM)
}

func signToken(t *testing.T, key *rsa.PrivateKey, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(key)
	if err != nil {
		t.Fatalf("SignedString() unexpected error: %v", err)
	}
	return token
}

func TestNewJWTValidator(t *testing.T) {
	_, publicPEM := testKeys(t)

	tests := []struct {
		name         string
		publicKeyPEM string
		expectError  bool
	}{
		{name: "valid PKIX key", publicKeyPEM: publicPEM},
		{name: "empty key", publicKeyPEM: "", expectError: true},
		{name: "not PEM", publicKeyPEM: "invalid-pem", expectError: true},
		{
			name: "PEM with garbage body",
			publicKeyPEM: `-----BEGIN PUBLIC KEY-----
aW52YWxpZC1rZXktZGF0YQ==
-----END PUBLIC KEY-----`,
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			validator, err := NewJWTValidator(tt.publicKeyPEM, testIssuer, testAudience)
			if tt.expectError {
				if err == nil {
					t.Error("NewJWTValidator() expected error but got none")
				}
				return
			}
			if err != nil {
				t.Fatalf("NewJWTValidator() unexpected error: %v", err)
			}
			if validator.issuer != testIssuer || validator.audience != testAudience {
				t.Errorf("validator = %+v, want issuer/audience carried over", validator)
			}
		})
	}
}

func TestValidateToken(t *testing.T) {
	key, publicPEM := testKeys(t)
	validator, err := NewJWTValidator(publicPEM, testIssuer, testAudience)
	if err != nil {
		t.Fatalf("NewJWTValidator() unexpected error: %v", err)
	}

	goodClaims := func() jwt.MapClaims {
		return jwt.MapClaims{
			"iss": testIssuer,
			"aud": testAudience,
			"sub": "ops@example.com",
			"exp": time.Now().Add(time.Hour).Unix(),
		}
	}

	t.Run("valid token", func(t *testing.T) {
		claims, err := validator.ValidateToken(signToken(t, key, goodClaims()))
		if err != nil {
			t.Fatalf("ValidateToken() unexpected error: %v", err)
		}
		if claims["sub"] != "ops@example.com" {
			t.Errorf("claims sub = %v, want ops@example.com", claims["sub"])
		}
	})

	t.Run("expired token", func(t *testing.T) {
		c := goodClaims()
		c["exp"] = time.Now().Add(-time.Hour).Unix()
		if _, err := validator.ValidateToken(signToken(t, key, c)); err == nil {
			t.Error("ValidateToken() accepted an expired token")
		}
	})

	t.Run("missing expiry", func(t *testing.T) {
		c := goodClaims()
		delete(c, "exp")
		if _, err := validator.ValidateToken(signToken(t, key, c)); err == nil {
			t.Error("ValidateToken() accepted a token without exp")
		}
	})

	t.Run("wrong issuer", func(t *testing.T) {
		c := goodClaims()
		c["iss"] = "someone-else"
		if _, err := validator.ValidateToken(signToken(t, key, c)); err == nil {
			t.Error("ValidateToken() accepted a wrong issuer")
		}
	})

	t.Run("wrong audience", func(t *testing.T) {
		c := goodClaims()
		c["aud"] = "other-api"
		if _, err := validator.ValidateToken(signToken(t, key, c)); err == nil {
			t.Error("ValidateToken() accepted a wrong audience")
		}
	})

	t.Run("wrong key", func(t *testing.T) {
		otherKey, _ := testKeys(t)
		if _, err := validator.ValidateToken(signToken(t, otherKey, goodClaims())); err == nil {
			t.Error("ValidateToken() accepted a token signed by another key")
		}
	})

	t.Run("wrong signing method", func(t *testing.T) {
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, goodClaims()).SignedString([]byte("hmac-secret"))
		if err != nil {
			t.Fatalf("SignedString() unexpected error: %v", err)
		}
		if _, err := validator.ValidateToken(token); err == nil {
			t.Error("ValidateToken() accepted an HMAC-signed token")
		}
	})

	t.Run("garbage token", func(t *testing.T) {
		for _, token := range []string{"", "not-a-jwt", "header.payload"} {
			if _, err := validator.ValidateToken(token); err == nil {
				t.Errorf("ValidateToken(%q) accepted garbage", token)
			}
		}
	})
}

func TestMiddleware(t *testing.T) {
	key, publicPEM := testKeys(t)
	validator, err := NewJWTValidator(publicPEM, testIssuer, testAudience)
	if err != nil {
		t.Fatalf("NewJWTValidator() unexpected error: %v", err)
	}

	handler := validator.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	good := signToken(t, key, jwt.MapClaims{
		"iss": testIssuer,
		"aud": testAudience,
		"exp": time.Now().Add(time.Hour).Unix(),
	})

	tests := []struct {
		name       string
		header     string
		wantStatus int
	}{
		{name: "valid bearer token", header: "Bearer " + good, wantStatus: http.StatusOK},
		{name: "missing header", header: "", wantStatus: http.StatusUnauthorized},
		{name: "not a bearer scheme", header: "Basic dXNlcjpwdw==", wantStatus: http.StatusUnauthorized},
		{name: "empty bearer token", header: "Bearer ", wantStatus: http.StatusUnauthorized},
		{name: "invalid token", header: "Bearer garbage", wantStatus: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/stats", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)
			if rr.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rr.Code, tt.wantStatus)
			}
		})
	}
}
