package services

import (
	"context"
	"database/sql"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-redis/redismock/v8"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
)

func TestPasswordHashing(t *testing.T) {
	t.Run("roundtrip", func(t *testing.T) {
		hash, err := hashPassword("correct horse battery staple")
		assert.NoError(t, err)
		assert.True(t, verifyPassword("correct horse battery staple", hash))
	})

	t.Run("wrong password rejected", func(t *testing.T) {
		hash, err := hashPassword("secret123")
		assert.NoError(t, err)
		assert.False(t, verifyPassword("secret124", hash))
	})

	t.Run("same password hashes differently per salt", func(t *testing.T) {
		h1, _ := hashPassword("secret123")
		h2, _ := hashPassword("secret123")
		assert.NotEqual(t, h1, h2)
	})

	t.Run("malformed stored hash rejected", func(t *testing.T) {
		assert.False(t, verifyPassword("secret123", "not-a-hash"))
		assert.False(t, verifyPassword("secret123", "a$b$c"))
		assert.False(t, verifyPassword("secret123", "!!!$???"))
	})
}

func TestTokenRemainingTTL(t *testing.T) {
	t.Run("garbage token falls back to the default lifetime", func(t *testing.T) {
		assert.Equal(t, 24*time.Hour, tokenRemainingTTL("garbage"))
	})
}

func userRows(passwordHash string, isActive bool) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "name", "email", "password_hash", "phone", "employee_id",
		"station_code", "role", "is_active", "last_login", "created_at", "updated_at",
	}).AddRow(
		"u-0001", "Amal Deng", "amal@avelio.app", passwordHash, "", "EMP-17",
		"JUB", "agent", isActive, nil, testClock, testClock,
	)
}

func TestAuthService_Login(t *testing.T) {
	viper.Set("jwt.secret_key", "test-secret")
	viper.Set("jwt.expiry_hours", 24)

	hash, err := hashPassword("secret123")
	assert.NoError(t, err)

	t.Run("successful login", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		redisClient, _ := redismock.NewClientMock()
		service := NewAuthService(db, redisClient)

		mock.ExpectQuery("FROM users").
			WithArgs("amal@avelio.app").
			WillReturnRows(userRows(hash, true))
		mock.ExpectExec("UPDATE users SET last_login").
			WithArgs("u-0001").
			WillReturnResult(sqlmock.NewResult(0, 1))

		user, token, err := service.login(context.Background(), "amal@avelio.app", "secret123")
		assert.NoError(t, err)
		assert.Equal(t, "Amal Deng", user.Name)
		assert.Len(t, strings.Split(token, "."), 3)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("wrong password", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		redisClient, _ := redismock.NewClientMock()
		service := NewAuthService(db, redisClient)

		mock.ExpectQuery("FROM users").
			WillReturnRows(userRows(hash, true))

		_, _, err = service.login(context.Background(), "amal@avelio.app", "nope")
		appErr, ok := AsAppError(err)
		assert.True(t, ok)
		assert.Equal(t, KindAuth, appErr.Kind)
	})

	t.Run("deactivated account", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		redisClient, _ := redismock.NewClientMock()
		service := NewAuthService(db, redisClient)

		mock.ExpectQuery("FROM users").
			WillReturnRows(userRows(hash, false))

		_, _, err = service.login(context.Background(), "amal@avelio.app", "secret123")
		appErr, ok := AsAppError(err)
		assert.True(t, ok)
		assert.Equal(t, KindForbidden, appErr.Kind)
	})

	t.Run("unknown email looks like a bad password", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		redisClient, _ := redismock.NewClientMock()
		service := NewAuthService(db, redisClient)

		mock.ExpectQuery("FROM users").
			WillReturnError(sql.ErrNoRows)

		_, _, err = service.login(context.Background(), "who@avelio.app", "secret123")
		appErr, ok := AsAppError(err)
		assert.True(t, ok)
		assert.Equal(t, KindAuth, appErr.Kind)
		assert.Equal(t, "Invalid email or password", appErr.Message)
	})
}

func TestAuthService_Logout(t *testing.T) {
	t.Run("token is blacklisted", func(t *testing.T) {
		db, _, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		redisClient, redisMock := redismock.NewClientMock()
		service := NewAuthService(db, redisClient)

		// An unparseable token gets the default blacklist lifetime.
		redisMock.ExpectSet("blacklist:opaque-token", "revoked", 24*time.Hour).SetVal("OK")

		req := httptest.NewRequest("POST", "/auth/logout", nil)
		req.Header.Set("Authorization", "Bearer opaque-token")
		w := httptest.NewRecorder()

		service.Logout(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.NoError(t, redisMock.ExpectationsWereMet())
	})

	t.Run("missing header", func(t *testing.T) {
		db, _, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		redisClient, _ := redismock.NewClientMock()
		service := NewAuthService(db, redisClient)

		req := httptest.NewRequest("POST", "/auth/logout", nil)
		w := httptest.NewRecorder()

		service.Logout(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestAuthService_ChangePassword(t *testing.T) {
	hash, err := hashPassword("old-password")
	assert.NoError(t, err)

	t.Run("successful change", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		redisClient, _ := redismock.NewClientMock()
		service := NewAuthService(db, redisClient)

		mock.ExpectQuery("SELECT password_hash FROM users").
			WithArgs("u-0001").
			WillReturnRows(sqlmock.NewRows([]string{"password_hash"}).AddRow(hash))
		mock.ExpectExec("UPDATE users SET password_hash").
			WillReturnResult(sqlmock.NewResult(0, 1))

		err = service.changePassword(context.Background(), "u-0001", "old-password", "new-password-8")
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("wrong current password", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		redisClient, _ := redismock.NewClientMock()
		service := NewAuthService(db, redisClient)

		mock.ExpectQuery("SELECT password_hash FROM users").
			WillReturnRows(sqlmock.NewRows([]string{"password_hash"}).AddRow(hash))

		err = service.changePassword(context.Background(), "u-0001", "guess", "new-password-8")
		appErr, ok := AsAppError(err)
		assert.True(t, ok)
		assert.Equal(t, KindAuth, appErr.Kind)
	})
}
