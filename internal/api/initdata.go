package api

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

var ErrBadInitData = errors.New("api: bad telegram init data")

// verifyInitData проверяет подпись initData Telegram WebApp и возвращает id пользователя.
// secret = HMAC_SHA256("WebAppData", botToken), hash = HMAC_SHA256(secret, data_check_string).
func verifyInitData(raw, botToken string, maxAge time.Duration, now time.Time) (int64, error) {
	vals, err := url.ParseQuery(raw)
	if err != nil {
		return 0, ErrBadInitData
	}
	hash := vals.Get("hash")
	if hash == "" {
		return 0, ErrBadInitData
	}

	keys := make([]string, 0, len(vals))
	for k := range vals {
		if k != "hash" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+vals.Get(k))
	}

	if !hmac.Equal([]byte(signInitData(strings.Join(pairs, "\n"), botToken)), []byte(hash)) {
		return 0, ErrBadInitData
	}

	if maxAge > 0 {
		ts, err := strconv.ParseInt(vals.Get("auth_date"), 10, 64)
		if err != nil || now.Sub(time.Unix(ts, 0)) > maxAge {
			return 0, ErrBadInitData
		}
	}

	var user struct {
		ID int64 `json:"id"`
	}
	if err := json.Unmarshal([]byte(vals.Get("user")), &user); err != nil || user.ID == 0 {
		return 0, ErrBadInitData
	}
	return user.ID, nil
}

func signInitData(dataCheck, botToken string) string {
	secret := hmac.New(sha256.New, []byte("WebAppData"))
	secret.Write([]byte(botToken))
	mac := hmac.New(sha256.New, secret.Sum(nil))
	mac.Write([]byte(dataCheck))
	return hex.EncodeToString(mac.Sum(nil))
}
