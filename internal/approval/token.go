// Package approval enforces approval gates on workflow steps and signs
// bearer tokens an external approver endpoint can present back to the
// adapter's approve_step/deny_step operations.
package approval

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenManager signs and validates approval tokens with an RSA keypair.
type TokenManager struct {
	privateKey *rsa.PrivateKey
	publicKey  *rsa.PublicKey
	issuer     string
	expiry     time.Duration
}

// TokenClaims identifies the pending approval a token authorizes a
// decision for.
type TokenClaims struct {
	WorkflowID string `json:"workflow_id"`
	StepNum    int    `json:"step_num"`
	ExternalID string `json:"external_id"`
	jwt.RegisteredClaims
}

// NewTokenManager creates a token manager with RSA keys PEM-encoded.
func NewTokenManager(privateKeyPEM, publicKeyPEM, issuer string, expiry time.Duration) (*TokenManager, error) {
	if privateKeyPEM == "" {
		return nil, fmt.Errorf("private key cannot be empty")
	}
	if publicKeyPEM == "" {
		return nil, fmt.Errorf("public key cannot be empty")
	}
	if issuer == "" {
		return nil, fmt.Errorf("issuer cannot be empty")
	}
	if expiry <= 0 {
		return nil, fmt.Errorf("expiry must be positive")
	}

	privateKey, err := parsePrivateKey(privateKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}
	publicKey, err := parsePublicKey(publicKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("failed to parse public key: %w", err)
	}

	return &TokenManager{
		privateKey: privateKey,
		publicKey:  publicKey,
		issuer:     issuer,
		expiry:     expiry,
	}, nil
}

// IssueToken signs a token authorizing a decision on a pending approval.
func (tm *TokenManager) IssueToken(ctx context.Context, externalID string, workflowID string, stepNum int) (string, error) {
	now := time.Now()
	claims := TokenClaims{
		WorkflowID: workflowID,
		StepNum:    stepNum,
		ExternalID: externalID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tm.issuer,
			Subject:   externalID,
			ExpiresAt: jwt.NewNumericDate(now.Add(tm.expiry)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ID:        generateTokenID(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	return token.SignedString(tm.privateKey)
}

// ValidateToken validates a token and returns the approval it authorizes.
func (tm *TokenManager) ValidateToken(ctx context.Context, tokenString string) (*TokenClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &TokenClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return tm.publicKey, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("token is not valid")
	}

	claims, ok := token.Claims.(*TokenClaims)
	if !ok {
		return nil, fmt.Errorf("invalid token claims")
	}
	if claims.Issuer != tm.issuer {
		return nil, fmt.Errorf("invalid issuer: expected %s, got %s", tm.issuer, claims.Issuer)
	}

	return claims, nil
}

func parsePrivateKey(pemData string) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode([]byte(pemData))
	if block == nil {
		return nil, fmt.Errorf("failed to decode PEM block")
	}

	if block.Type == "RSA PRIVATE KEY" {
		return x509.ParsePKCS1PrivateKey(block.Bytes)
	}

	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, err
	}
	privateKey, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("not an RSA private key")
	}
	return privateKey, nil
}

func parsePublicKey(pemData string) (*rsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(pemData))
	if block == nil {
		return nil, fmt.Errorf("failed to decode PEM block")
	}

	if block.Type == "RSA PUBLIC KEY" {
		return x509.ParsePKCS1PublicKey(block.Bytes)
	}

	key, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, err
	}
	publicKey, ok := key.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("not an RSA public key")
	}
	return publicKey, nil
}

func generateTokenID() string {
	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err != nil {
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return fmt.Sprintf("%x", bytes)
}
