package services

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

const publicTokenBytes = 24

// TokenGenerator 生成公开访问 token。
type TokenGenerator func() (string, error)

// NewPublicToken 生成 192 bit 随机、URL 安全的不透明 token。
func NewPublicToken() (string, error) {
	buf := make([]byte, publicTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate public token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
