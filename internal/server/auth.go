package server

import (
	"errors"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// ctxPlayerKey gin 上下文中已认证的玩家 ID
const ctxPlayerKey = "player_id"

var (
	ErrTokenMissing = errors.New("token is missing")
	ErrTokenInvalid = errors.New("token is invalid")
	ErrTokenExpired = errors.New("token has expired")
)

// Authenticator 校验 HS256 令牌，sub 即玩家 ID
type Authenticator struct {
	secret []byte
	issuer string
}

// NewAuthenticator 密钥为空时返回 nil，表示不启用鉴权
func NewAuthenticator(secret, issuer string) *Authenticator {
	if secret == "" {
		return nil
	}
	return &Authenticator{secret: []byte(secret), issuer: issuer}
}

// Issue 签发令牌
func (a *Authenticator) Issue(playerID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   playerID,
		Issuer:    a.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// Verify 校验令牌并返回玩家 ID
func (a *Authenticator) Verify(tokenString string) (string, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &jwt.RegisteredClaims{}, func(*jwt.Token) (any, error) {
		return a.secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrTokenExpired
		}
		return "", ErrTokenInvalid
	}

	claims, ok := token.Claims.(*jwt.RegisteredClaims)
	if !ok || !token.Valid || claims.Subject == "" {
		return "", ErrTokenInvalid
	}
	return claims.Subject, nil
}

// Middleware 校验 Authorization 头。allowQuery 为真时也接受 ?token=（浏览器的 WebSocket 无法带头）
func (a *Authenticator) Middleware(allowQuery bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c.GetHeader("Authorization"))
		if token == "" && allowQuery {
			token = c.Query("token")
		}
		if token == "" {
			abortUnauthorized(c, ErrTokenMissing)
			return
		}

		playerID, err := a.Verify(token)
		if err != nil {
			abortUnauthorized(c, err)
			return
		}
		c.Set(ctxPlayerKey, playerID)
		c.Next()
	}
}

// bearerToken 从 "Bearer xxx" 中取出令牌
func bearerToken(header string) string {
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// authenticatedPlayer 未启用鉴权时返回空
func authenticatedPlayer(c *gin.Context) string {
	return c.GetString(ctxPlayerKey)
}

// actingPlayer 请求代表的玩家。启用鉴权时请求体不能冒充他人
func actingPlayer(c *gin.Context, claimed string) (string, error) {
	authed := authenticatedPlayer(c)
	switch {
	case authed == "":
		if claimed == "" {
			return "", errMissingPlayer
		}
		return claimed, nil
	case claimed != "" && claimed != authed:
		return "", errImpersonation
	default:
		return authed, nil
	}
}
