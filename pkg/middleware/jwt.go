package middleware

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/yusufkaraasln/mindset-ms-case/pkg/authz"
)

// Claims はJWTトークンのクレーム（ペイロード）を表す。
// ユーザーサービスがログイン時に発行し、Gatewayと各サービスが検証する。
type Claims struct {
	jwt.RegisteredClaims
	// UserID は認証済みユーザーの一意識別子。
	UserID string `json:"id"`
	// Email はユーザーのメールアドレス。
	Email string `json:"email,omitempty"`
	// Roles はユーザーが持つロール。
	Roles []string `json:"roles"`
}

// tokenIssuer は発行するトークンのissクレーム。
const tokenIssuer = "user-service"

// DefaultAlgorithm はトークンの署名アルゴリズムのデフォルト値。
const DefaultAlgorithm = "HS256"

// トークン検証のエラー。
var (
	// ErrMissingToken はAuthorizationヘッダーがないことを表す。
	ErrMissingToken = errors.New("Authorizationヘッダーがありません")
	// ErrMalformedHeader はAuthorizationヘッダーがBearer形式でないことを表す。
	ErrMalformedHeader = errors.New("Bearer トークン形式が不正です")
	// ErrInvalidToken は署名・構造・有効期限のいずれかの検証に失敗したことを表す。
	ErrInvalidToken = errors.New("トークンが無効です")
	// ErrUnsupportedAlgorithm はHMAC以外の署名アルゴリズムが指定されたことを表す。
	ErrUnsupportedAlgorithm = errors.New("サポートされていない署名アルゴリズムです")
)

// GenerateJWT はユーザー情報からHS256で署名したJWTトークンを生成する。
// ユーザーサービスがログイン成功時に呼び出す。
func GenerateJWT(secret, userID, email string, roles []string, ttl time.Duration) (string, error) {
	now := time.Now()
	if roles == nil {
		roles = []string{}
	}
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    tokenIssuer,
		},
		UserID: userID,
		Email:  email,
		Roles:  roles,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("JWTトークンの署名に失敗: %w", err)
	}
	return signed, nil
}

// TokenValidator はBearerトークンの署名と有効期限を検証する。
// 検証に成功したトークンからのみPrincipalを生成する。
type TokenValidator struct {
	secret []byte
	parser *jwt.Parser
}

// NewTokenValidator は指定された秘密鍵と署名アルゴリズムでTokenValidatorを生成する。
// アルゴリズムはHS256、HS384、HS512のいずれか。
func NewTokenValidator(secret, algorithm string) (*TokenValidator, error) {
	if secret == "" {
		return nil, errors.New("JWTの秘密鍵が空です")
	}
	if algorithm == "" {
		algorithm = DefaultAlgorithm
	}
	if _, ok := jwt.GetSigningMethod(algorithm).(*jwt.SigningMethodHMAC); !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedAlgorithm, algorithm)
	}

	return &TokenValidator{
		secret: []byte(secret),
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{algorithm}),
			jwt.WithExpirationRequired(),
			jwt.WithIssuedAt(),
		),
	}, nil
}

// Validate はAuthorizationヘッダーの値を検証してPrincipalを返す。
func (v *TokenValidator) Validate(authHeader string) (*authz.Principal, error) {
	if authHeader == "" {
		return nil, ErrMissingToken
	}
	tokenString, found := strings.CutPrefix(authHeader, "Bearer ")
	if !found || strings.TrimSpace(tokenString) == "" {
		return nil, ErrMalformedHeader
	}

	claims := &Claims{}
	token, err := v.parser.ParseWithClaims(strings.TrimSpace(tokenString), claims, func(_ *jwt.Token) (any, error) {
		return v.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}

	userID := claims.UserID
	if userID == "" {
		userID = claims.Subject
	}
	if userID == "" {
		return nil, fmt.Errorf("%w: ユーザーIDがありません", ErrInvalidToken)
	}

	roles := claims.Roles
	if roles == nil {
		roles = []string{}
	}
	return &authz.Principal{UserID: userID, Roles: roles}, nil
}

// AuthFailureDetail は認証失敗の原因を診断用の短い英語メッセージに変換する。
// エラーレスポンスのmessageに使用する。信頼の根拠として扱ってはならない。
func AuthFailureDetail(err error) string {
	switch {
	case errors.Is(err, ErrMissingToken):
		return "authorization header is missing"
	case errors.Is(err, ErrMalformedHeader):
		return "authorization header must use the Bearer scheme"
	case errors.Is(err, jwt.ErrTokenExpired):
		return "token is expired"
	case errors.Is(err, jwt.ErrTokenNotValidYet), errors.Is(err, jwt.ErrTokenUsedBeforeIssued):
		return "token is not valid yet"
	case errors.Is(err, jwt.ErrTokenRequiredClaimMissing):
		return "token is missing required claims"
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return "token signature is invalid"
	case errors.Is(err, jwt.ErrTokenMalformed):
		return "token is malformed"
	default:
		return "token is invalid"
	}
}
