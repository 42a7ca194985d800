package gcs

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/atelierworks/atelier-backend/pkg/config"
	"github.com/atelierworks/atelier-backend/pkg/logger"
)

const (
	oauthTokenURL    = "https://oauth2.googleapis.com/token"
	readOnlyScope    = "https://www.googleapis.com/auth/devstorage.read_only"
	storageBaseURL   = "https://storage.googleapis.com"
	metadataTokenURL = "http://metadata.google.internal/computeMetadata/v1/instance/service-accounts/default/token"

	pingTimeout  = 5 * time.Second
	tokenRefresh = time.Minute
)

// Client talks to Cloud Storage directly over its JSON API. Signed URL
// generation requires a service account key; a metadata-server identity can
// authenticate API calls but cannot sign, so SignedReadURL fails for it.
type Client struct {
	httpClient    *http.Client
	defaultBucket string
	tokens        *tokenCache
	account       *serviceAccountInfo
}

type Pinger interface {
	Ping(ctx context.Context) error
}

// URLSigner issues time-limited read URLs for stored objects.
type URLSigner interface {
	SignedReadURL(object string, expires time.Time) (string, error)
	DefaultBucket() string
}

type serviceAccountInfo struct {
	clientEmail string
	privateKey  *rsa.PrivateKey
}

// NewClient resolves credentials (inline JSON, key file, or the GCE
// metadata server, in that order) and verifies bucket access before
// returning.
func NewClient(ctx context.Context, cfg config.GCSConfig, logg *logger.Logger) (*Client, error) {
	if cfg.BucketName == "" {
		return nil, errors.New("gcs bucket name is required")
	}

	c := &Client{
		httpClient:    &http.Client{Timeout: 10 * time.Second},
		defaultBucket: cfg.BucketName,
	}

	credsJSON := cfg.CredentialsJSON
	if credsJSON == "" && cfg.CredentialsFile != "" {
		raw, err := os.ReadFile(cfg.CredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("reading credentials file: %w", err)
		}
		credsJSON = string(raw)
	}

	if credsJSON != "" {
		account, err := parseServiceAccount(credsJSON)
		if err != nil {
			return nil, err
		}
		c.account = account.serviceAccountInfo()
		c.tokens = &tokenCache{fetch: account.tokenFetcher(c.httpClient)}
	} else {
		c.tokens = &tokenCache{fetch: c.fetchMetadataToken}
	}

	if err := c.Ping(ctx); err != nil {
		return nil, fmt.Errorf("gcs health check failed: %w", err)
	}
	if logg != nil {
		logg.Info(ctx, "gcs client initialized")
	}
	return c, nil
}

func (c *Client) DefaultBucket() string {
	if c == nil {
		return ""
	}
	return c.defaultBucket
}

func (c *Client) Close() error {
	return nil
}

// Ping lists at most one object in the default bucket, which exercises both
// the token flow and bucket permissions.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.tokens == nil {
		return errors.New("gcs client not initialized")
	}
	if c.defaultBucket == "" {
		return errors.New("gcs bucket not configured")
	}

	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	token, err := c.tokens.get(ctx)
	if err != nil {
		return err
	}

	endpoint := fmt.Sprintf("%s/storage/v1/b/%s/o?maxResults=1", storageBaseURL, url.PathEscape(c.defaultBucket))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		if len(detail) > 0 {
			return fmt.Errorf("gcs object check failed: %s: %s", resp.Status, strings.TrimSpace(string(detail)))
		}
		return fmt.Errorf("gcs object check failed: %s", resp.Status)
	}
	return nil
}

// SignedReadURL builds a V2 signed GET URL for an object in the default
// bucket, valid until expires. The bearer needs no further credentials.
func (c *Client) SignedReadURL(object string, expires time.Time) (string, error) {
	switch {
	case c == nil:
		return "", errors.New("gcs client not initialized")
	case c.account == nil:
		return "", errors.New("signed urls require service account credentials")
	case object == "":
		return "", errors.New("object name is required")
	}

	object = strings.TrimPrefix(object, "/")
	deadline := expires.Unix()

	// V2 canonical string: method, (md5), (content-type), expiry, resource.
	canonical := fmt.Sprintf("GET\n\n\n%d\n/%s/%s", deadline, c.defaultBucket, object)
	sig, err := signRS256(c.account.privateKey, []byte(canonical))
	if err != nil {
		return "", fmt.Errorf("signing url: %w", err)
	}

	query := url.Values{
		"GoogleAccessId": {c.account.clientEmail},
		"Expires":        {fmt.Sprintf("%d", deadline)},
		"Signature":      {base64.StdEncoding.EncodeToString(sig)},
	}
	return fmt.Sprintf("%s/%s/%s?%s",
		storageBaseURL,
		url.PathEscape(c.defaultBucket),
		escapeObjectPath(object),
		query.Encode(),
	), nil
}

// escapeObjectPath escapes each path segment while keeping the separators.
func escapeObjectPath(object string) string {
	segments := strings.Split(object, "/")
	for i := range segments {
		segments[i] = url.PathEscape(segments[i])
	}
	return strings.Join(segments, "/")
}

func signRS256(key *rsa.PrivateKey, payload []byte) ([]byte, error) {
	digest := sha256.Sum256(payload)
	return rsa.SignPKCS1v15(rand.Reader, key, crypto.SHA256, digest[:])
}

// tokenCache serializes token refreshes and reuses an access token until it
// is within a minute of expiry.
type tokenCache struct {
	mu     sync.Mutex
	token  string
	expiry time.Time
	fetch  func(context.Context) (string, time.Time, error)
}

func (t *tokenCache) get(ctx context.Context) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.token != "" && time.Until(t.expiry) > tokenRefresh {
		return t.token, nil
	}

	token, expiry, err := t.fetch(ctx)
	if err != nil {
		return "", err
	}
	t.token, t.expiry = token, expiry
	return token, nil
}

type serviceAccount struct {
	ClientEmail string `json:"client_email"`
	PrivateKey  string `json:"private_key"`
	TokenURI    string `json:"token_uri"`

	parsedKey *rsa.PrivateKey
}

func parseServiceAccount(credsJSON string) (*serviceAccount, error) {
	var account serviceAccount
	if err := json.Unmarshal([]byte(credsJSON), &account); err != nil {
		return nil, fmt.Errorf("parsing service account credentials: %w", err)
	}
	if account.ClientEmail == "" || account.PrivateKey == "" {
		return nil, errors.New("invalid service account credentials")
	}
	if account.TokenURI == "" {
		account.TokenURI = oauthTokenURL
	}

	key, err := parsePrivateKey(account.PrivateKey)
	if err != nil {
		return nil, err
	}
	account.parsedKey = key
	return &account, nil
}

func (a *serviceAccount) serviceAccountInfo() *serviceAccountInfo {
	return &serviceAccountInfo{clientEmail: a.ClientEmail, privateKey: a.parsedKey}
}

// tokenFetcher exchanges a self-signed JWT for an OAuth access token.
func (a *serviceAccount) tokenFetcher(client *http.Client) func(context.Context) (string, time.Time, error) {
	return func(ctx context.Context) (string, time.Time, error) {
		assertion, err := a.buildAssertion()
		if err != nil {
			return "", time.Time{}, err
		}

		form := url.Values{
			"grant_type": {"urn:ietf:params:oauth:grant-type:jwt-bearer"},
			"assertion":  {assertion},
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.TokenURI, strings.NewReader(form.Encode()))
		if err != nil {
			return "", time.Time{}, err
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

		resp, err := client.Do(req)
		if err != nil {
			return "", time.Time{}, err
		}
		defer func() { _ = resp.Body.Close() }()

		if resp.StatusCode != http.StatusOK {
			return "", time.Time{}, fmt.Errorf("token endpoint returned %s", resp.Status)
		}
		return decodeTokenResponse(resp.Body)
	}
}

func (a *serviceAccount) buildAssertion() (string, error) {
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"RS256","typ":"JWT"}`))

	now := time.Now()
	claims, err := json.Marshal(map[string]any{
		"iss":   a.ClientEmail,
		"scope": readOnlyScope,
		"aud":   a.TokenURI,
		"iat":   now.Unix(),
		"exp":   now.Add(time.Hour).Unix(),
	})
	if err != nil {
		return "", err
	}

	unsigned := header + "." + base64.RawURLEncoding.EncodeToString(claims)
	sig, err := signRS256(a.parsedKey, []byte(unsigned))
	if err != nil {
		return "", err
	}
	return unsigned + "." + base64.RawURLEncoding.EncodeToString(sig), nil
}

func (c *Client) fetchMetadataToken(ctx context.Context) (string, time.Time, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, metadataTokenURL, nil)
	if err != nil {
		return "", time.Time{}, err
	}
	req.Header.Set("Metadata-Flavor", "Google")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", time.Time{}, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", time.Time{}, fmt.Errorf("metadata token request returned %s", resp.Status)
	}
	return decodeTokenResponse(resp.Body)
}

func decodeTokenResponse(body io.Reader) (string, time.Time, error) {
	var token struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := json.NewDecoder(body).Decode(&token); err != nil {
		return "", time.Time{}, err
	}
	return token.AccessToken, time.Now().Add(time.Duration(token.ExpiresIn) * time.Second), nil
}

func parsePrivateKey(pemData string) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode([]byte(pemData))
	if block == nil {
		return nil, errors.New("invalid private key")
	}
	if key, err := x509.ParsePKCS8PrivateKey(block.Bytes); err == nil {
		if rsaKey, ok := key.(*rsa.PrivateKey); ok {
			return rsaKey, nil
		}
	}
	rsaKey, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		return nil, errors.New("unsupported private key format")
	}
	return rsaKey, nil
}
