package utils

import (
	"context"
	"time"

	"github.com/mojocn/base64Captcha"
)

const captchaTTL = 10 * time.Minute

var memCaptcha = base64Captcha.NewMemoryStore(10240, captchaTTL)

// redisCaptchaStore implements base64Captcha.Store backed by Redis so captchas
// work behind a load balancer. It defers to the memory store when redis is off.
type redisCaptchaStore struct{}

func (redisCaptchaStore) key(id string) string { return "captcha:" + id }

func (s redisCaptchaStore) Set(id string, value string) error {
	rc := GetRedis()
	if rc == nil {
		return memCaptcha.Set(id, value)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return rc.Set(ctx, s.key(id), value, captchaTTL).Err()
}

func (s redisCaptchaStore) Get(id string, clear bool) string {
	rc := GetRedis()
	if rc == nil {
		return memCaptcha.Get(id, clear)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	var (
		v   string
		err error
	)
	if clear {
		v, err = rc.GetDel(ctx, s.key(id)).Result()
	} else {
		v, err = rc.Get(ctx, s.key(id)).Result()
	}
	if err != nil {
		return ""
	}
	return v
}

func (s redisCaptchaStore) Verify(id, answer string, clear bool) bool {
	v := s.Get(id, clear)
	return v != "" && v == answer
}

var captchaStore base64Captcha.Store = redisCaptchaStore{}

// GenerateCaptcha creates a digit captcha and returns (id, dataURI) for the client to display.
func GenerateCaptcha() (string, string, error) {
	driver := base64Captcha.NewDriverDigit(40, 120, 5, 0.7, 80)
	c := base64Captcha.NewCaptcha(driver, captchaStore)
	id, b64, _, err := c.Generate()
	return id, b64, err
}

// VerifyCaptcha verifies the provided answer; it consumes the captcha.
func VerifyCaptcha(id, answer string) bool {
	if id == "" || answer == "" {
		return false
	}
	return captchaStore.Verify(id, answer, true)
}
