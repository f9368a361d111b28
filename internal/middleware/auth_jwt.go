package middleware

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"storefront/internal/domain/model"

	"github.com/golang-jwt/jwt/v4"
	"github.com/labstack/echo/v4"
)

const (
	CtxAccountIDKey = "account_id" // string
	CtxRoleKey      = "role"       // string
	CtxSessionIDKey = "session_id" // string
)

const (
	SessionHeader = "X-Session-ID"
	SessionCookie = "sid"

	RoleUser  = "USER"
	RoleAdmin = "ADMIN"
)

// Identityは持ち主を決める。
// Bearerがあればアカウント（不正なら401、ゲストには落とさない）、
// 無ければX-Session-IDかsid cookieの匿名セッション。どちらも無ければ401。
// JWTはセッション層が発行したもので、ここでは検証するだけ。
func Identity(secret string) echo.MiddlewareFunc {
	key := []byte(secret)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			// ログイン直後のマージ用にゲストのセッションも拾っておく
			if sid := sessionID(c); sid != "" {
				c.Set(CtxSessionIDKey, sid)
			}

			authz := c.Request().Header.Get("Authorization")
			if authz == "" {
				if _, ok := c.Get(CtxSessionIDKey).(string); !ok {
					return c.JSON(http.StatusUnauthorized, errorJSON("unauthorized"))
				}
				return next(c)
			}

			//Bearer形式か確認してtokenを抜く
			parts := strings.SplitN(authz, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				return c.JSON(http.StatusUnauthorized, errorJSON("unauthorized"))
			}
			rawToken := strings.TrimSpace(parts[1])
			if rawToken == "" {
				return c.JSON(http.StatusUnauthorized, errorJSON("unauthorized"))
			}

			token, err := jwt.Parse(rawToken, func(t *jwt.Token) (interface{}, error) {
				if t.Method != jwt.SigningMethodHS256 {
					return nil, errors.New("unexpected signing method")
				}
				return key, nil
			})
			if err != nil || token == nil || !token.Valid {
				return c.JSON(http.StatusUnauthorized, errorJSON("unauthorized"))
			}

			claims, ok := token.Claims.(jwt.MapClaims)
			if !ok {
				return c.JSON(http.StatusUnauthorized, errorJSON("unauthorized"))
			}

			accountID, err := parseSubject(claims["sub"])
			if err != nil || accountID == "" {
				return c.JSON(http.StatusUnauthorized, errorJSON("unauthorized"))
			}

			//roleは無ければUSER
			role := RoleUser
			if raw, exists := claims["role"]; exists {
				s, ok := raw.(string)
				if !ok || s == "" {
					return c.JSON(http.StatusUnauthorized, errorJSON("unauthorized"))
				}
				role = strings.ToUpper(s)
			}

			c.Set(CtxAccountIDKey, accountID)
			c.Set(CtxRoleKey, role)

			return next(c)
		}
	}
}

// Ownerはアカウントがあればアカウント、無ければセッション
func Owner(c echo.Context) (model.Owner, bool) {
	if id, ok := c.Get(CtxAccountIDKey).(string); ok && id != "" {
		return model.AccountOwner(id), true
	}
	if sid, ok := c.Get(CtxSessionIDKey).(string); ok && sid != "" {
		return model.SessionOwner(sid), true
	}
	return model.Owner{}, false
}

func AccountID(c echo.Context) (string, bool) {
	id, ok := c.Get(CtxAccountIDKey).(string)
	return id, ok && id != ""
}

// GuestSessionIDはJWTと一緒に送られてきたセッションID
func GuestSessionID(c echo.Context) (string, bool) {
	sid, ok := c.Get(CtxSessionIDKey).(string)
	return sid, ok && sid != ""
}

func sessionID(c echo.Context) string {
	if v := strings.TrimSpace(c.Request().Header.Get(SessionHeader)); v != "" {
		return v
	}
	if ck, err := c.Cookie(SessionCookie); err == nil {
		return strings.TrimSpace(ck.Value)
	}
	return ""
}

type errorResponse struct {
	Error string `json:"error"`
}

func errorJSON(msg string) errorResponse {
	return errorResponse{Error: msg}
}

// subは文字列でも数値でもよい
func parseSubject(v interface{}) (string, error) {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t), nil
	case float64:
		if t <= 0 {
			return "", errors.New("invalid sub")
		}
		return strconv.FormatInt(int64(t), 10), nil
	default:
		return "", errors.New("invalid sub")
	}
}
