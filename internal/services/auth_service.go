package services

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/avelio/backend/internal/middleware"
	"github.com/avelio/backend/internal/models"
	"github.com/go-redis/redis/v8"
	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/viper"
	"golang.org/x/crypto/argon2"
)

// AuthService handles staff authentication: login, logout (token
// revocation), password changes and account lookup.
type AuthService struct {
	db        *sql.DB
	redis     *redis.Client
	validator *ValidationHelper
}

func NewAuthService(db *sql.DB, redisClient *redis.Client) *AuthService {
	return &AuthService{
		db:        db,
		redis:     redisClient,
		validator: NewValidationHelper(),
	}
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// Login authenticates a staff user
// @Summary Login
// @Description Authenticate with email and password, returns a bearer token
// @Tags auth
// @Accept json
// @Produce json
// @Param credentials body LoginRequest true "Login credentials"
// @Success 200 {object} object{token=string,user=models.User}
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Router /auth/login [post]
func (as *AuthService) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := DecodeJSONBody(w, r, &req); err != nil {
		SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}
	if err := as.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	user, token, err := as.login(r.Context(), req.Email, req.Password)
	if err != nil {
		SendAppError(w, err)
		return
	}

	log.Printf("[AUTH] User %s logged in", user.Email)
	SendJSON(w, http.StatusOK, map[string]any{
		"token": token,
		"user":  user,
	})
}

func (as *AuthService) login(ctx context.Context, email, password string) (*models.User, string, error) {
	var user models.User
	var passwordHash string
	var lastLogin sql.NullTime

	err := as.db.QueryRowContext(ctx, `
		SELECT id, name, email, password_hash, COALESCE(phone, ''), COALESCE(employee_id, ''),
		       station_code, role, is_active, last_login, created_at, updated_at
		FROM users
		WHERE LOWER(email) = LOWER($1)
	`, email).Scan(
		&user.ID, &user.Name, &user.Email, &passwordHash, &user.Phone, &user.EmployeeID,
		&user.StationCode, &user.Role, &user.IsActive, &lastLogin, &user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, "", AuthErr("Invalid email or password")
		}
		return nil, "", StorageErr(err)
	}

	if !verifyPassword(password, passwordHash) {
		return nil, "", AuthErr("Invalid email or password")
	}
	if !user.IsActive {
		return nil, "", ForbiddenErr("Account is deactivated")
	}
	if lastLogin.Valid {
		user.LastLogin = &lastLogin.Time
	}

	if _, err := as.db.ExecContext(ctx,
		`UPDATE users SET last_login = NOW() WHERE id = $1`, user.ID); err != nil {
		log.Printf("[AUTH] Failed to record last login for %s: %v", user.ID, err)
	}

	token, err := generateToken(&user)
	if err != nil {
		return nil, "", StorageErr(err)
	}
	return &user, token, nil
}

// Logout revokes the presented bearer token
// @Summary Logout
// @Description Blacklist the current token until its natural expiry
// @Tags auth
// @Produce json
// @Security BearerAuth
// @Success 200 {object} object{message=string}
// @Failure 401 {object} ErrorResponse
// @Router /auth/logout [post]
func (as *AuthService) Logout(w http.ResponseWriter, r *http.Request) {
	authHeader := r.Header.Get("Authorization")
	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		SendErrorResponse(w, "Authorization header required", http.StatusUnauthorized, nil)
		return
	}
	token := parts[1]

	if as.redis != nil {
		ttl := tokenRemainingTTL(token)
		key := fmt.Sprintf("blacklist:%s", token)
		if err := as.redis.Set(r.Context(), key, "revoked", ttl).Err(); err != nil {
			log.Printf("[AUTH] Failed to blacklist token: %v", err)
			SendAppError(w, StorageErr(err))
			return
		}
	}

	SendJSON(w, http.StatusOK, map[string]any{"message": "Logged out successfully"})
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required,min=8"`
}

// ChangePassword updates the authenticated user's password
// @Summary Change password
// @Tags auth
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body ChangePasswordRequest true "Password change"
// @Success 200 {object} object{message=string}
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Router /auth/change-password [post]
func (as *AuthService) ChangePassword(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.UserFrom(r.Context())
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var req ChangePasswordRequest
	if err := DecodeJSONBody(w, r, &req); err != nil {
		SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}
	if err := as.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	if err := as.changePassword(r.Context(), user.ID, req.CurrentPassword, req.NewPassword); err != nil {
		SendAppError(w, err)
		return
	}

	log.Printf("[AUTH] Password changed for user %s", user.ID)
	SendJSON(w, http.StatusOK, map[string]any{"message": "Password updated successfully"})
}

func (as *AuthService) changePassword(ctx context.Context, userID, current, next string) error {
	var passwordHash string
	err := as.db.QueryRowContext(ctx,
		`SELECT password_hash FROM users WHERE id = $1`, userID).Scan(&passwordHash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return NotFoundErr("User not found")
		}
		return StorageErr(err)
	}

	if !verifyPassword(current, passwordHash) {
		return AuthErr("Current password is incorrect")
	}

	newHash, err := hashPassword(next)
	if err != nil {
		return StorageErr(err)
	}

	if _, err := as.db.ExecContext(ctx,
		`UPDATE users SET password_hash = $1, updated_at = NOW() WHERE id = $2`,
		newHash, userID); err != nil {
		return StorageErr(err)
	}
	return nil
}

// GetUserAccount returns the authenticated user's profile
// @Summary Get account
// @Tags auth
// @Produce json
// @Security BearerAuth
// @Success 200 {object} models.User
// @Failure 401 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /auth/account [get]
func (as *AuthService) GetUserAccount(w http.ResponseWriter, r *http.Request) {
	authUser, ok := middleware.UserFrom(r.Context())
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var user models.User
	var lastLogin sql.NullTime
	err := as.db.QueryRowContext(r.Context(), `
		SELECT id, name, email, COALESCE(phone, ''), COALESCE(employee_id, ''),
		       station_code, role, is_active, last_login, created_at, updated_at
		FROM users
		WHERE id = $1
	`, authUser.ID).Scan(
		&user.ID, &user.Name, &user.Email, &user.Phone, &user.EmployeeID,
		&user.StationCode, &user.Role, &user.IsActive, &lastLogin, &user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			SendErrorResponse(w, "User not found", http.StatusNotFound, nil)
			return
		}
		SendAppError(w, StorageErr(err))
		return
	}
	if lastLogin.Valid {
		user.LastLogin = &lastLogin.Time
	}

	SendJSON(w, http.StatusOK, map[string]any{"user": user})
}

func generateToken(user *models.User) (string, error) {
	expiryHours := viper.GetInt("jwt.expiry_hours")
	if expiryHours <= 0 {
		expiryHours = 24
	}

	claims := jwt.MapClaims{
		"user_id": user.ID,
		"name":    user.Name,
		"role":    user.Role,
		"station": user.StationCode,
		"iat":     time.Now().Unix(),
		"exp":     time.Now().Add(time.Duration(expiryHours) * time.Hour).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(viper.GetString("jwt.secret_key")))
}

// tokenRemainingTTL reads the exp claim without re-verifying the signature;
// the middleware already did. Unparseable tokens get the default lifetime so
// the blacklist entry still outlives them.
func tokenRemainingTTL(tokenString string) time.Duration {
	const fallback = 24 * time.Hour

	parser := jwt.NewParser()
	token, _, err := parser.ParseUnverified(tokenString, jwt.MapClaims{})
	if err != nil {
		return fallback
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return fallback
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return fallback
	}
	remaining := time.Until(exp.Time)
	if remaining <= 0 {
		return time.Minute
	}
	return remaining
}

// Password hashes are stored as base64(salt)$base64(argon2id-key).
func hashPassword(password string) (string, error) {
	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}
	hash := argon2.IDKey([]byte(password), salt, 1, 64*1024, 4, 32)
	return base64.RawStdEncoding.EncodeToString(salt) + "$" +
		base64.RawStdEncoding.EncodeToString(hash), nil
}

func verifyPassword(password, encoded string) bool {
	parts := strings.Split(encoded, "$")
	if len(parts) != 2 {
		return false
	}
	salt, err := base64.RawStdEncoding.DecodeString(parts[0])
	if err != nil {
		return false
	}
	expected, err := base64.RawStdEncoding.DecodeString(parts[1])
	if err != nil {
		return false
	}
	hash := argon2.IDKey([]byte(password), salt, 1, 64*1024, 4, 32)
	return subtle.ConstantTimeCompare(hash, expected) == 1
}
