// Package auth 签发与校验 RS256 令牌，并处理密码哈希与一次性令牌。
package auth

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"

	issuer = "prepkitty"
	leeway = 30 * time.Second
)

var ErrEmptyToken = errors.New("token string is empty")

// TokenPair 是一次登录或刷新得到的令牌。
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// Subject 是签发时刻的用户状态，access token 会带上这些标记。
type Subject struct {
	UserID              uint
	OnboardingCompleted bool
	MustChangePassword  bool
}

type TokenClaims struct {
	UserID              uint   `json:"user_id"`
	TokenType           string `json:"token_type"`
	OnboardingCompleted bool   `json:"onboarding_completed,omitempty"`
	MustChangePassword  bool   `json:"must_change_password,omitempty"`
	jwt.RegisteredClaims
}

type AuthService struct {
	signKey    *rsa.PrivateKey
	verifyKey  *rsa.PublicKey
	accessTTL  time.Duration
	refreshTTL time.Duration
	parser     *jwt.Parser
}

func NewAuthService(privateKeyPEM, publicKeyPEM []byte, accessTTL, refreshTTL time.Duration) (*AuthService, error) {
	signKey, verifyKey, err := parseKeyPair(privateKeyPEM, publicKeyPEM)
	if err != nil {
		return nil, err
	}
	return &AuthService{
		signKey:    signKey,
		verifyKey:  verifyKey,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
			jwt.WithIssuer(issuer),
			jwt.WithIssuedAt(),
			jwt.WithLeeway(leeway),
		),
	}, nil
}

// NewAuthServiceFromFiles 读取 JWT_PRIVATE_KEY_PATH / JWT_PUBLIC_KEY_PATH 指向的 PEM。
func NewAuthServiceFromFiles(privateKeyPath, publicKeyPath string, accessTTL, refreshTTL time.Duration) (*AuthService, error) {
	var pems [2][]byte
	for i, path := range []string{privateKeyPath, publicKeyPath} {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read key file %q: %w", path, err)
		}
		pems[i] = data
	}
	return NewAuthService(pems[0], pems[1], accessTTL, refreshTTL)
}

func parseKeyPair(privateKeyPEM, publicKeyPEM []byte) (*rsa.PrivateKey, *rsa.PublicKey, error) {
	if len(privateKeyPEM) == 0 || len(publicKeyPEM) == 0 {
		return nil, nil, errors.New("both rsa key pems are required")
	}
	signKey, err := jwt.ParseRSAPrivateKeyFromPEM(privateKeyPEM)
	if err != nil {
		return nil, nil, fmt.Errorf("parse rsa private key: %w", err)
	}
	verifyKey, err := jwt.ParseRSAPublicKeyFromPEM(publicKeyPEM)
	if err != nil {
		return nil, nil, fmt.Errorf("parse rsa public key: %w", err)
	}
	return signKey, verifyKey, nil
}

func (s *AuthService) HashPassword(password string) (string, error) {
	return HashPassword(password)
}

func (s *AuthService) CheckPasswordHash(password, hash string) bool {
	return CheckPasswordHash(password, hash)
}

func (s *AuthService) AccessTokenTTL() time.Duration  { return s.accessTTL }
func (s *AuthService) RefreshTokenTTL() time.Duration { return s.refreshTTL }

// GenerateTokenPair 签发一对令牌。只有 refresh token 带 jti，用于黑名单。
func (s *AuthService) GenerateTokenPair(subject Subject) (TokenPair, error) {
	now := time.Now()

	access := s.newClaims(subject.UserID, TokenTypeAccess, now, s.accessTTL)
	access.OnboardingCompleted = subject.OnboardingCompleted
	access.MustChangePassword = subject.MustChangePassword

	refresh := s.newClaims(subject.UserID, TokenTypeRefresh, now, s.refreshTTL)
	refresh.ID = uuid.NewString()

	var (
		pair TokenPair
		err  error
	)
	if pair.AccessToken, err = s.sign(access); err != nil {
		return TokenPair{}, err
	}
	if pair.RefreshToken, err = s.sign(refresh); err != nil {
		return TokenPair{}, err
	}
	return pair, nil
}

func (s *AuthService) newClaims(userID uint, tokenType string, now time.Time, ttl time.Duration) TokenClaims {
	return TokenClaims{
		UserID:    userID,
		TokenType: tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   strconv.FormatUint(uint64(userID), 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
}

func (s *AuthService) sign(claims TokenClaims) (string, error) {
	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(s.signKey)
	if err != nil {
		return "", fmt.Errorf("sign %s token: %w", claims.TokenType, err)
	}
	return signed, nil
}

// ValidateToken 校验签名、签发方与有效期。令牌类型由调用方检查。
func (s *AuthService) ValidateToken(raw string) (*TokenClaims, error) {
	if raw == "" {
		return nil, ErrEmptyToken
	}
	claims := &TokenClaims{}
	if _, err := s.parser.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return s.verifyKey, nil
	}); err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}
	if claims.UserID == 0 {
		return nil, errors.New("token has no user")
	}
	return claims, nil
}
