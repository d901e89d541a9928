package api

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/argon2"

	"serotonyl.ru/community-leaderboard/internal/common"
)

// Защита от перебора: после 5 неверных токенов с одного IP блокировка на 15 минут.
const (
	maxAuthFailures   = 5
	authFailureWindow = 15 * time.Minute
)

// AdminAuth проверяет токен администратора (Authorization: Bearer <token>)
// по хешу Argon2id из ADMIN_TOKEN_HASH.
type AdminAuth struct {
	hash     string
	failures *RateLimiter

	mu       sync.Mutex
	verified map[[32]byte]struct{} // sha256 уже проверенных токенов
}

func NewAdminAuth(hash string) *AdminAuth {
	return &AdminAuth{
		hash:     hash,
		failures: NewRateLimiter(maxAuthFailures, authFailureWindow),
		verified: make(map[[32]byte]struct{}),
	}
}

func (a *AdminAuth) Close() {
	a.failures.Close()
}

// Middleware пропускает запрос только с верным токеном. Иначе 403.
func (a *AdminAuth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := a.check(r); err != nil {
			writeError(w, r, err)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (a *AdminAuth) check(r *http.Request) error {
	ip := clientIP(r)
	if a.failures.Exceeded(ip) {
		return fmt.Errorf("слишком много попыток, подождите: %w", common.ErrUnauthorized)
	}

	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	token = strings.TrimSpace(token)
	if !ok || token == "" {
		return fmt.Errorf("не передан токен: %w", common.ErrUnauthorized)
	}

	if !a.verify(token) {
		a.failures.Allow(ip)
		log.WithFields(log.Fields{
			"ip":   ip,
			"path": r.URL.Path,
		}).Warn("Неверный токен администратора")
		return fmt.Errorf("неверный токен: %w", common.ErrUnauthorized)
	}
	return nil
}

func (a *AdminAuth) verify(token string) bool {
	sum := sha256.Sum256([]byte(token))

	a.mu.Lock()
	_, ok := a.verified[sum]
	a.mu.Unlock()
	if ok {
		return true
	}

	if !verifyArgon2id(token, a.hash) {
		return false
	}
	a.mu.Lock()
	a.verified[sum] = struct{}{}
	a.mu.Unlock()
	return true
}

// verifyArgon2id проверяет секрет по хешу Argon2id.
// Формат хеша: $argon2id$v=19$m=65536,t=3,p=2$<salt_base64>$<hash_base64>
func verifyArgon2id(secret, encodedHash string) bool {
	parts := strings.Split(encodedHash, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		log.Error("Некорректный формат хеша Argon2id")
		return false
	}

	var memory, iterations uint32
	var parallelism uint8
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &iterations, &parallelism); err != nil {
		log.WithError(err).Error("Ошибка парсинга параметров Argon2id")
		return false
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		log.WithError(err).Error("Ошибка декодирования соли")
		return false
	}
	expected, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		log.WithError(err).Error("Ошибка декодирования хеша")
		return false
	}

	computed := argon2.IDKey([]byte(secret), salt, iterations, memory, parallelism, uint32(len(expected)))
	return subtle.ConstantTimeCompare(computed, expected) == 1
}

// clientIP: адрес клиента без порта. RealIP уже подставил X-Forwarded-For.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
