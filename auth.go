package main

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

const (
	jwtExpiry        = 7 * 24 * time.Hour
	bcryptCost       = 12
	minPasswordLen   = 4
	minUsernameLen   = 2
	maxUsernameLen   = 16
	loginRateWindow  = 60 * time.Second
	maxLoginAttempts = 10
	jwtSecretSetting = "jwt_secret"
)

var (
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrUsernameTaken      = errors.New("username already taken")
	ErrRateLimited        = errors.New("too many login attempts, try again later")
)

// Auth handles operator accounts and tokens
type Auth struct {
	db        *DB
	jwtSecret []byte

	// Rate limiting for login attempts (IP -> attempts)
	rateMu  sync.Mutex
	rateMap map[string]*rateEntry
}

type rateEntry struct {
	Count   int
	ResetAt time.Time
}

// operatorClaims are carried in operator tokens
type operatorClaims struct {
	OperatorID int64  `json:"oid"`
	Username   string `json:"usr"`
	jwt.RegisteredClaims
}

// NewAuth creates a new Auth handler
func NewAuth(db *DB) *Auth {
	return &Auth{
		db:        db,
		jwtSecret: loadOrCreateSecret(db),
		rateMap:   make(map[string]*rateEntry),
	}
}

// loadOrCreateSecret loads the JWT secret from the database, or generates
// and persists a new one if none exists
func loadOrCreateSecret(db *DB) []byte {
	if db != nil {
		if h := db.GetSetting(jwtSecretSetting); h != "" {
			if b, err := hex.DecodeString(h); err == nil && len(b) == 32 {
				return b
			}
		}
	}
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		panic("failed to generate JWT secret: " + err.Error())
	}
	if db != nil {
		if err := db.SetSetting(jwtSecretSetting, hex.EncodeToString(secret)); err != nil {
			log.Printf("auth: could not persist JWT secret: %v", err)
		}
	}
	return secret
}

// Register creates an operator account and returns its ID and a token
func (a *Auth) Register(username, password string) (int64, string, error) {
	username = strings.TrimSpace(username)

	if len(username) < minUsernameLen || len(username) > maxUsernameLen {
		return 0, "", fmt.Errorf("username must be %d-%d characters", minUsernameLen, maxUsernameLen)
	}
	if len(password) < minPasswordLen {
		return 0, "", fmt.Errorf("password must be at least %d characters", minPasswordLen)
	}

	exists, err := a.db.UsernameExists(username)
	if err != nil {
		return 0, "", fmt.Errorf("check username: %w", err)
	}
	if exists {
		return 0, "", ErrUsernameTaken
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return 0, "", fmt.Errorf("hash password: %w", err)
	}

	id, err := a.db.CreateOperator(username, string(hash))
	if err != nil {
		return 0, "", fmt.Errorf("create operator: %w", err)
	}

	token, err := a.generateToken(id, username)
	if err != nil {
		return 0, "", fmt.Errorf("sign token: %w", err)
	}
	return id, token, nil
}

// Login authenticates an operator and returns its ID and a token
func (a *Auth) Login(username, password, ip string) (int64, string, error) {
	if !a.checkRate(ip) {
		return 0, "", ErrRateLimited
	}

	op, err := a.db.GetOperatorByUsername(strings.TrimSpace(username))
	if err != nil {
		return 0, "", fmt.Errorf("load operator: %w", err)
	}
	if op == nil || op.PassHash == "" {
		return 0, "", ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(op.PassHash), []byte(password)); err != nil {
		return 0, "", ErrInvalidCredentials
	}

	token, err := a.generateToken(op.ID, op.Username)
	if err != nil {
		return 0, "", fmt.Errorf("sign token: %w", err)
	}
	return op.ID, token, nil
}

// ValidateToken validates a JWT and returns (operatorID, username, error)
func (a *Auth) ValidateToken(tokenStr string) (int64, string, error) {
	claims := &operatorClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		return a.jwtSecret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return 0, "", err
	}
	if !token.Valid || claims.OperatorID == 0 || claims.Username == "" {
		return 0, "", fmt.Errorf("invalid token claims")
	}
	return claims.OperatorID, claims.Username, nil
}

func (a *Auth) generateToken(operatorID int64, username string) (string, error) {
	now := time.Now()
	claims := operatorClaims{
		OperatorID: operatorID,
		Username:   username,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(jwtExpiry)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.jwtSecret)
}

func (a *Auth) checkRate(ip string) bool {
	a.rateMu.Lock()
	defer a.rateMu.Unlock()

	now := time.Now()
	entry, ok := a.rateMap[ip]
	if !ok || now.After(entry.ResetAt) {
		a.rateMap[ip] = &rateEntry{Count: 1, ResetAt: now.Add(loginRateWindow)}
		return true
	}
	entry.Count++
	return entry.Count <= maxLoginAttempts
}
