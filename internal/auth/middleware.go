package auth

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// authScheme is the Authorization header's scheme token, deliberately
// distinct from AWS4-HMAC-SHA256 so it is never mistaken for SigV4 by
// a reader or a client.
const authScheme = "SFS-HMAC-SHA256"

// dateHeader carries the timestamp the signature covers (RFC3339),
// this package's analogue of X-Amz-Date without AWS's scope/region
// machinery.
const dateHeader = "X-Sfs-Date"

// AccessKeyInfo is what the middleware needs to verify a request's
// signature and report who made it.
type AccessKeyInfo struct {
	AccessKeyID string
	SecretKey   string
	Username    string
	IsActive    bool
	ExpiresAt   *time.Time
}

// AccessKeyStore resolves an access key ID to its secret for signature
// verification, and records usage. Implemented over the catalog's
// access-key store by internal/handler.accessKeyAdapter.
type AccessKeyStore interface {
	GetActiveAccessKey(ctx context.Context, accessKeyID string) (*AccessKeyInfo, error)
	UpdateLastUsed(ctx context.Context, accessKeyID string) error
}

// Config controls the middleware (spec §1/§6: ops-surface auth only).
type Config struct {
	// SkipPaths bypasses the check entirely, for health/readiness.
	SkipPaths []string

	// MaxClockSkew bounds how far the request's X-Sfs-Date may drift
	// from server time before it is rejected as a replay risk.
	MaxClockSkew time.Duration
}

// DefaultConfig returns the package's recommended settings.
func DefaultConfig() Config {
	return Config{
		SkipPaths:    []string{"/healthz", "/readyz"},
		MaxClockSkew: 15 * time.Minute,
	}
}

// principalKey is the context key an authenticated request's access
// key ID is stashed under.
type principalKey struct{}

// Principal returns the access key ID that authenticated ctx's
// request, if any.
func Principal(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(principalKey{}).(string)
	return v, ok
}

// Middleware builds an http.Handler wrapper that requires a valid
// signed Authorization header on every request not in
// config.SkipPaths. The signature covers method, path, and the
// request's declared date — nothing else needs canonicalizing because
// this surface has no query-string auth, no chunked bodies, and no
// per-header signing to forge around.
func Middleware(store AccessKeyStore, config Config) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for _, p := range config.SkipPaths {
				if r.URL.Path == p {
					next.ServeHTTP(w, r)
					return
				}
			}

			accessKeyID, err := authenticate(r, store, config)
			if err != nil {
				log.Debug().Err(err).Str("path", r.URL.Path).Msg("ops auth failed")
				writeAuthError(w, err)
				return
			}

			r = r.WithContext(context.WithValue(r.Context(), principalKey{}, accessKeyID))
			next.ServeHTTP(w, r)
		})
	}
}

// authenticate validates one request's Authorization header and
// returns the caller's access key ID on success.
func authenticate(r *http.Request, store AccessKeyStore, config Config) (string, error) {
	accessKeyID, signature, err := parseAuthorization(r.Header.Get("Authorization"))
	if err != nil {
		return "", err
	}

	dateStr := r.Header.Get(dateHeader)
	if dateStr == "" {
		return "", ErrMissingDateHeader
	}
	requestDate, err := time.Parse(time.RFC3339, dateStr)
	if err != nil {
		return "", ErrMissingDateHeader
	}
	if skew := time.Since(requestDate); skew > config.MaxClockSkew || skew < -config.MaxClockSkew {
		return "", ErrClockSkew
	}

	keyInfo, err := store.GetActiveAccessKey(r.Context(), accessKeyID)
	if err != nil || keyInfo == nil || !keyInfo.IsActive {
		return "", ErrUnknownAccessKey
	}
	if keyInfo.ExpiresAt != nil && time.Now().UTC().After(*keyInfo.ExpiresAt) {
		return "", ErrKeyExpired
	}

	expected := sign(keyInfo.SecretKey, r.Method, r.URL.Path, dateStr)
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return "", ErrSignatureMismatch
	}

	go func() {
		_ = store.UpdateLastUsed(context.Background(), accessKeyID)
	}()

	return accessKeyID, nil
}

// sign computes the hex-encoded HMAC-SHA256 over method, path, and
// date, matching what a client must compute to produce the
// Authorization header's Signature field.
func sign(secretKey, method, path, dateStr string) string {
	mac := hmac.New(sha256.New, []byte(secretKey))
	mac.Write([]byte(method))
	mac.Write([]byte("\n"))
	mac.Write([]byte(path))
	mac.Write([]byte("\n"))
	mac.Write([]byte(dateStr))
	return hex.EncodeToString(mac.Sum(nil))
}

// parseAuthorization splits "SFS-HMAC-SHA256 Credential=<id>,
// Signature=<hex>" into its access key ID and signature.
func parseAuthorization(header string) (accessKeyID, signature string, err error) {
	if header == "" {
		return "", "", ErrMissingAuthorization
	}
	scheme, rest, ok := strings.Cut(header, " ")
	if !ok || scheme != authScheme {
		return "", "", ErrMalformedAuthorization
	}

	for _, part := range strings.Split(rest, ",") {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch kv[0] {
		case "Credential":
			accessKeyID = kv[1]
		case "Signature":
			signature = kv[1]
		}
	}
	if accessKeyID == "" || signature == "" {
		return "", "", ErrMalformedAuthorization
	}
	return accessKeyID, signature, nil
}

// writeAuthError writes a small JSON error body, matching this
// package's ops-surface siblings (internal/handler writes JSON, not
// S3's XML error envelope, since this is not the S3 API).
func writeAuthError(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusFor(err))
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
