package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"permledger/models"

	restful "github.com/emicklei/go-restful/v3"
	"github.com/golang-jwt/jwt/v4"
	"golang.org/x/crypto/bcrypt"
)

// PrincipalAttribute is the request attribute AuthFilter stores the caller in.
const PrincipalAttribute = "principal"

const issuer = "permission-ledger"

var (
	signingKey = []byte("permledger-signing-key")
	tokenTTL   = 24 * time.Hour
)

// SetSigningKey allows setting the key from outside the package.
func SetSigningKey(key []byte) {
	if len(key) > 0 {
		signingKey = key
	}
}

// SetTokenTTL sets how long tokens from GenerateToken stay valid.
func SetTokenTTL(ttl time.Duration) {
	if ttl > 0 {
		tokenTTL = ttl
	}
}

// CustomClaims carries the principal a token speaks for.
type CustomClaims struct {
	Principal string `json:"principal"`
	jwt.RegisteredClaims
}

// GenerateToken creates a new JWT for the given principal.
func GenerateToken(principal models.Principal) (string, error) {
	if principal == "" {
		return "", errors.New("principal is required")
	}
	now := time.Now()
	claims := &CustomClaims{
		Principal: principal.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(tokenTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    issuer,
			Subject:   principal.String(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(signingKey)
}

// ParseAndValidateToken : used for gRPC and filters
func ParseAndValidateToken(tokenString string) (*CustomClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &CustomClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return signingKey, nil
	})

	if err != nil {
		if ve, ok := err.(*jwt.ValidationError); ok {
			if ve.Errors&jwt.ValidationErrorMalformed != 0 {
				return nil, errors.New("malformed token")
			} else if ve.Errors&(jwt.ValidationErrorExpired|jwt.ValidationErrorNotValidYet) != 0 {
				return nil, errors.New("token is either expired or not active yet")
			} else if ve.Errors&jwt.ValidationErrorSignatureInvalid != 0 {
				return nil, errors.New("invalid token signature")
			}
		}
		return nil, fmt.Errorf("couldn't handle this token: %w", err)
	}

	claims, ok := token.Claims.(*CustomClaims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token")
	}
	if claims.Principal == "" {
		return nil, errors.New("token carries no principal")
	}
	return claims, nil
}

// BearerToken extracts the token from an "Authorization: Bearer <token>"
// header value.
func BearerToken(header string) (string, error) {
	if header == "" {
		return "", errors.New("authorization header required")
	}
	parts := strings.Split(header, " ")
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return "", errors.New("invalid authorization header format")
	}
	return parts[1], nil
}

// AuthFilter creates a go-restful FilterFunction for JWT authentication.
func AuthFilter() restful.FilterFunction {
	return func(req *restful.Request, resp *restful.Response, chain *restful.FilterChain) {
		tokenString, err := BearerToken(req.HeaderParameter("Authorization"))
		if err != nil {
			_ = resp.WriteHeaderAndJson(http.StatusUnauthorized, map[string]string{"message": err.Error()}, restful.MIME_JSON)
			return
		}

		claims, err := ParseAndValidateToken(tokenString)
		if err != nil {
			_ = resp.WriteHeaderAndJson(http.StatusUnauthorized, map[string]string{"message": err.Error()}, restful.MIME_JSON)
			return
		}

		req.SetAttribute(PrincipalAttribute, models.Principal(claims.Principal))
		chain.ProcessFilter(req, resp)
	}
}

// Caller returns the principal AuthFilter attached to the request.
func Caller(req *restful.Request) (models.Principal, bool) {
	p, ok := req.Attribute(PrincipalAttribute).(models.Principal)
	return p, ok && p != ""
}

// HashSecret returns the bcrypt hash stored in the credentials config.
func HashSecret(secret string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// ErrInvalidCredentials is returned by Login for an unknown principal or a
// wrong secret alike.
var ErrInvalidCredentials = errors.New("invalid credentials")

// Login checks secret against the bcrypt hash stored for principal in
// credentials and issues a token on success.
func Login(credentials map[string]string, principal, secret string) (string, error) {
	hashed, ok := credentials[principal]
	if !ok || bcrypt.CompareHashAndPassword([]byte(hashed), []byte(secret)) != nil {
		return "", ErrInvalidCredentials
	}
	return GenerateToken(models.Principal(principal))
}

// --- go-restful login processing function ---

// LoginCredentials defines the structure of the login request
type LoginCredentials struct {
	Principal string `json:"principal" description:"Principal to log in as"`
	Secret    string `json:"secret" description:"Login secret of the principal"`
}

// LoginResponse defines the structure of the login response
type LoginResponse struct {
	Token   string `json:"token,omitempty"`
	Message string `json:"message,omitempty"`
}

// LoginRouteHandler handles POST /login against credentials, a map of
// principal to bcrypt hash.
func LoginRouteHandler(credentials map[string]string) restful.RouteFunction {
	return func(request *restful.Request, response *restful.Response) {
		creds := new(LoginCredentials)
		if err := request.ReadEntity(creds); err != nil {
			_ = response.WriteHeaderAndJson(http.StatusBadRequest, LoginResponse{Message: "Invalid request body: " + err.Error()}, restful.MIME_JSON)
			return
		}
		if creds.Principal == "" || creds.Secret == "" {
			_ = response.WriteHeaderAndJson(http.StatusBadRequest, LoginResponse{Message: "Principal and secret are required"}, restful.MIME_JSON)
			return
		}

		token, err := Login(credentials, creds.Principal, creds.Secret)
		if errors.Is(err, ErrInvalidCredentials) {
			_ = response.WriteHeaderAndJson(http.StatusUnauthorized, LoginResponse{Message: "Invalid credentials"}, restful.MIME_JSON)
			return
		}
		if err != nil {
			_ = response.WriteHeaderAndJson(http.StatusInternalServerError, LoginResponse{Message: "Could not generate token"}, restful.MIME_JSON)
			return
		}
		_ = response.WriteHeaderAndJson(http.StatusOK, LoginResponse{Token: token}, restful.MIME_JSON)
	}
}
