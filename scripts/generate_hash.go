//go:build ignore

// generate_hash.go: утилита для выпуска токена администратора и его Argon2id хеша.
// Запуск: go run scripts/generate_hash.go [токен]
//
// Без аргумента генерируется случайный токен. Хеш вставьте в .env как ADMIN_TOKEN_HASH,
// токен передавайте в заголовке Authorization: Bearer <токен>.
package main

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"os"

	"golang.org/x/crypto/argon2"
)

func main() {
	token := ""
	if len(os.Args) > 1 {
		token = os.Args[1]
	} else {
		raw := make([]byte, 32)
		if _, err := rand.Read(raw); err != nil {
			fmt.Printf("Ошибка генерации токена: %v\n", err)
			os.Exit(1)
		}
		token = base64.RawURLEncoding.EncodeToString(raw)
	}

	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		fmt.Printf("Ошибка генерации соли: %v\n", err)
		os.Exit(1)
	}

	// Параметры Argon2id
	var (
		memory      uint32 = 65536 // 64 MB
		iterations  uint32 = 3
		parallelism uint8  = 2
		keyLength   uint32 = 32
	)

	hash := argon2.IDKey([]byte(token), salt, iterations, memory, parallelism, keyLength)

	result := fmt.Sprintf("$argon2id$v=19$m=%d,t=%d,p=%d$%s$%s",
		memory, iterations, parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(hash))

	if len(os.Args) <= 1 {
		fmt.Println("Токен администратора (сохраните, повторно его не получить):")
		fmt.Println(token)
	}
	fmt.Println("Хеш токена (вставьте в .env как ADMIN_TOKEN_HASH):")
	fmt.Println(result)
}
