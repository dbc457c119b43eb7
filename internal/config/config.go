// Package config loads service configuration from the environment.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"helvetia/internal/transform"
)

// Cryptomus holds the payment provider credentials. All three values
// must be set for billing to be enabled.
type Cryptomus struct {
	BaseURL        string
	Merchant       string
	APIKey         string
	CallbackSecret string
}

// Enabled reports whether the provider is fully configured.
func (c Cryptomus) Enabled() bool {
	return c.Merchant != "" && c.APIKey != "" && c.CallbackSecret != ""
}

// Config is the resolved service configuration.
type Config struct {
	HTTPAddr      string
	PublicBaseURL string
	CORSOrigins   []string

	DatabaseURL string
	RedisAddr   string

	TempDir       string
	QueueCapacity int

	FFmpegPath         string
	FFprobePath        string
	TranscodeTimeout   time.Duration
	StderrExcerptBytes int

	MaxVideoBytes  int64
	MaxUploadBytes int64

	ClaimTTL      time.Duration
	SweepInterval time.Duration
	SweepMaxAge   time.Duration

	RateLimitPerMinute int

	Transform transform.Bounds

	PaymentSuccessURL string
	PaymentFailURL    string
	Cryptomus         Cryptomus
}

// Load reads configuration from the environment. It panics when a
// required variable is missing.
func Load() *Config {
	base := Env("BASE_URL", "http://localhost:8080")

	bounds := transform.DefaultBounds()
	bounds.Image.RotationMaxDeg = FloatEnv("IMAGE_ROTATION_DEG_MAX", bounds.Image.RotationMaxDeg)
	bounds.Image.CropMaxPct = FloatEnv("IMAGE_CROP_PCT_MAX", bounds.Image.CropMaxPct)
	bounds.Image.NoiseMax = FloatEnv("IMAGE_NOISE_MAX", bounds.Image.NoiseMax)
	bounds.Video.BitrateDeltaPct = FloatEnv("VIDEO_BITRATE_DELTA_PCT", bounds.Video.BitrateDeltaPct)
	bounds.Video.SpeedDeltaPct = FloatEnv("VIDEO_SPEED_DELTA_PCT", bounds.Video.SpeedDeltaPct)
	bounds.Video.GammaDelta = FloatEnv("VIDEO_GAMMA_DELTA", bounds.Video.GammaDelta)

	return &Config{
		HTTPAddr:      Env("HTTP_ADDR", ":8080"),
		PublicBaseURL: strings.TrimRight(base, "/"),
		CORSOrigins:   ListEnv("CORS_ORIGINS"),

		DatabaseURL: MustEnv("DATABASE_URL"),
		RedisAddr:   MustEnv("REDIS_ADDR"),

		TempDir:       Env("TEMP_DIR", "./data/tmp"),
		QueueCapacity: IntEnv("QUEUE_MAXSIZE", 3),

		FFmpegPath:         Env("FFMPEG_PATH", "ffmpeg"),
		FFprobePath:        Env("FFPROBE_PATH", "ffprobe"),
		TranscodeTimeout:   DurationEnv("TRANSCODE_TIMEOUT", 10*time.Minute),
		StderrExcerptBytes: IntEnv("STDERR_EXCERPT_BYTES", 4096),

		MaxVideoBytes:  Int64Env("MAX_VIDEO_BYTES", 50<<20),
		MaxUploadBytes: Int64Env("MAX_UPLOAD_BYTES", 512<<20),

		ClaimTTL:      DurationEnv("ARTIFACT_CLAIM_TTL", 10*time.Minute),
		SweepInterval: DurationEnv("SWEEP_INTERVAL", 10*time.Minute),
		SweepMaxAge:   DurationEnv("SWEEP_MAX_AGE", time.Hour),

		RateLimitPerMinute: IntEnv("RATE_LIMIT_PER_MINUTE", 10),

		Transform: bounds,

		PaymentSuccessURL: Env("PAYMENT_SUCCESS_URL", base+"/payments/success"),
		PaymentFailURL:    Env("PAYMENT_FAIL_URL", base+"/payments/fail"),
		Cryptomus: Cryptomus{
			BaseURL:        Env("CRYPTOMUS_BASE_URL", "https://api.cryptomus.com/v1"),
			Merchant:       Env("CRYPTOMUS_MERCHANT", ""),
			APIKey:         Env("CRYPTOMUS_API_KEY", ""),
			CallbackSecret: Env("CRYPTOMUS_CALLBACK_SECRET", ""),
		},
	}
}

func Env(k, def string) string {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	return v
}

func MustEnv(k string) string {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		panic("missing env: " + k)
	}
	return v
}

// BoolEnv reads an env var as bool. If empty or invalid, returns def.
// strconv.ParseBool accepts: 1,t,T,TRUE,true,True,0,f,F,FALSE,false,False.
func BoolEnv(k string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func IntEnv(k string, def int) int {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func Int64Env(k string, def int64) int64 {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return def
	}
	return n
}

func FloatEnv(k string, def float64) float64 {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func DurationEnv(k string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

// ListEnv reads a comma separated env var, trimming blanks.
func ListEnv(k string) []string {
	v := os.Getenv(k)
	if strings.TrimSpace(v) == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
