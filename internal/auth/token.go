package auth

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// generateSessionID は暗号的に安全なセッションID（64桁hex）を生成する。
func generateSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// signSessionID はセッションIDにHMAC-SHA256署名を付与したCookie値を返す。
// 形式: "<sessionID>.<hex署名>"。
// 署名によりDBを引く前に偽造Cookieを弾ける。
func signSessionID(sessionID, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(sessionID))
	return sessionID + "." + hex.EncodeToString(mac.Sum(nil))
}

// verifySignedSessionID は署名付きCookie値を検証し、セッションIDを取り出す。
// 署名不一致または形式不正の場合はokにfalseを返す。
func verifySignedSessionID(value, secret string) (sessionID string, ok bool) {
	i := strings.LastIndexByte(value, '.')
	if i <= 0 || i == len(value)-1 {
		return "", false
	}
	sessionID = value[:i]
	gotSig, err := hex.DecodeString(value[i+1:])
	if err != nil {
		return "", false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(sessionID))
	if !hmac.Equal(gotSig, mac.Sum(nil)) {
		return "", false
	}
	return sessionID, true
}
