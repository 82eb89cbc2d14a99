// Package config loads gateway configuration. Values come from an optional
// YAML or JSON file and from VAANI_* environment variables; the environment
// wins over the file, the file wins over defaults.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	yaml "go.yaml.in/yaml/v2"

	"github.com/vaani-ai/vaani/pkg/core/types"
)

type AuthMode string

const (
	AuthModeRequired AuthMode = "required"
	AuthModeOptional AuthMode = "optional"
	AuthModeDisabled AuthMode = "disabled"
)

// Config holds all gateway configuration. Session-shaping fields left at
// zero fall through to the live session defaults.
type Config struct {
	Addr string

	AuthMode AuthMode
	APIKeys  map[string]struct{}

	CORSAllowedOrigins map[string]struct{}

	OpenAIAPIKey  string
	OpenAIBaseURL string

	ChatModel   string
	STTModel    string
	TTSModel    string
	SpeechSpeed float64

	DefaultLanguage string
	Voices          map[string]string
	Greeting        bool
	EnhanceSpeech   bool
	HistoryWindow   int
	SwitchThreshold int

	IdleTimeout     time.Duration
	SilenceCommit   time.Duration
	MaxUtterance    time.Duration
	PrefixPadding   time.Duration
	EnergyThreshold float64
	RetryBackoff    []time.Duration

	// RedisAddr empty disables session persistence and utterance archiving.
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	SessionTTL    time.Duration
	AudioTTL      time.Duration

	MetricsNamespace string

	MaxSessions             int
	LiveMaxAudioFrameBytes  int
	LiveMaxJSONMessageBytes int64
	LiveMaxAudioFPS         int
	LiveMaxAudioBPS         int64
	LiveInboundBurstSeconds int
	LiveHandshakeTimeout    time.Duration
	LiveWSPingInterval      time.Duration
	LiveWSWriteTimeout      time.Duration
	LiveWSReadTimeout       time.Duration
	LiveOutboundQueueSize   int

	ReadHeaderTimeout   time.Duration
	ReadTimeout         time.Duration
	ShutdownGracePeriod time.Duration
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Addr:            ":8080",
		AuthMode:        AuthModeRequired,
		DefaultLanguage: "english",
		Greeting:        true,
		EnhanceSpeech:   true,

		SessionTTL: 24 * time.Hour,
		AudioTTL:   10 * time.Minute,

		MetricsNamespace: "vaani",

		MaxSessions:             16,
		LiveMaxAudioFrameBytes:  8192,
		LiveMaxJSONMessageBytes: 64 << 10,
		LiveMaxAudioFPS:         120,
		LiveMaxAudioBPS:         128 << 10,
		LiveInboundBurstSeconds: 2,
		LiveHandshakeTimeout:    5 * time.Second,
		LiveWSPingInterval:      20 * time.Second,
		LiveWSWriteTimeout:      5 * time.Second,
		LiveOutboundQueueSize:   128,

		ReadHeaderTimeout:   10 * time.Second,
		ReadTimeout:         30 * time.Second,
		ShutdownGracePeriod: 30 * time.Second,
	}
}

// Load reads configuration from the file at path (or $VAANI_CONFIG when path
// is empty) and then applies environment overrides.
func Load(path string) (Config, error) {
	base := Default()
	if err := applyFile(&base, path); err != nil {
		return Config{}, err
	}
	cfg := fromEnv(base)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadFromEnv loads configuration without an explicit file path.
func LoadFromEnv() (Config, error) {
	return Load("")
}

func fromEnv(base Config) Config {
	cfg := Config{
		Addr:     envOr("VAANI_ADDR", base.Addr),
		AuthMode: AuthMode(strings.ToLower(envOr("VAANI_AUTH_MODE", string(base.AuthMode)))),

		OpenAIAPIKey:  envOr("VAANI_OPENAI_API_KEY", envOr("OPENAI_API_KEY", base.OpenAIAPIKey)),
		OpenAIBaseURL: envOr("VAANI_OPENAI_BASE_URL", base.OpenAIBaseURL),

		ChatModel:   envOr("VAANI_CHAT_MODEL", base.ChatModel),
		STTModel:    envOr("VAANI_STT_MODEL", base.STTModel),
		TTSModel:    envOr("VAANI_TTS_MODEL", base.TTSModel),
		SpeechSpeed: envFloat64Or("VAANI_SPEECH_SPEED", base.SpeechSpeed),

		DefaultLanguage: strings.ToLower(envOr("VAANI_DEFAULT_LANGUAGE", base.DefaultLanguage)),
		Greeting:        envBoolOr("VAANI_GREETING", base.Greeting),
		EnhanceSpeech:   envBoolOr("VAANI_ENHANCE_SPEECH", base.EnhanceSpeech),
		HistoryWindow:   envIntOr("VAANI_HISTORY_WINDOW", base.HistoryWindow),
		SwitchThreshold: envIntOr("VAANI_SWITCH_THRESHOLD", base.SwitchThreshold),

		IdleTimeout:     envDurationOr("VAANI_IDLE_TIMEOUT", base.IdleTimeout),
		SilenceCommit:   envDurationOr("VAANI_SILENCE_COMMIT", base.SilenceCommit),
		MaxUtterance:    envDurationOr("VAANI_MAX_UTTERANCE", base.MaxUtterance),
		PrefixPadding:   envDurationOr("VAANI_PREFIX_PADDING", base.PrefixPadding),
		EnergyThreshold: envFloat64Or("VAANI_ENERGY_THRESHOLD", base.EnergyThreshold),
		RetryBackoff:    base.RetryBackoff,

		RedisAddr:     envOr("VAANI_REDIS_ADDR", base.RedisAddr),
		RedisPassword: envOr("VAANI_REDIS_PASSWORD", base.RedisPassword),
		RedisDB:       envIntOr("VAANI_REDIS_DB", base.RedisDB),
		SessionTTL:    envDurationOr("VAANI_SESSION_TTL", base.SessionTTL),
		AudioTTL:      envDurationOr("VAANI_AUDIO_TTL", base.AudioTTL),

		MetricsNamespace: envOr("VAANI_METRICS_NAMESPACE", base.MetricsNamespace),

		MaxSessions:             envIntOr("VAANI_MAX_SESSIONS", base.MaxSessions),
		LiveMaxAudioFrameBytes:  envIntOr("VAANI_LIVE_MAX_AUDIO_FRAME_BYTES", base.LiveMaxAudioFrameBytes),
		LiveMaxJSONMessageBytes: envInt64Or("VAANI_LIVE_MAX_JSON_MESSAGE_BYTES", base.LiveMaxJSONMessageBytes),
		LiveMaxAudioFPS:         envIntOr("VAANI_LIVE_MAX_AUDIO_FPS", base.LiveMaxAudioFPS),
		LiveMaxAudioBPS:         envInt64Or("VAANI_LIVE_MAX_AUDIO_BPS", base.LiveMaxAudioBPS),
		LiveInboundBurstSeconds: envIntOr("VAANI_LIVE_INBOUND_BURST_SECONDS", base.LiveInboundBurstSeconds),
		LiveHandshakeTimeout:    envDurationOr("VAANI_LIVE_HANDSHAKE_TIMEOUT", base.LiveHandshakeTimeout),
		LiveWSPingInterval:      envDurationOr("VAANI_LIVE_WS_PING_INTERVAL", base.LiveWSPingInterval),
		LiveWSWriteTimeout:      envDurationOr("VAANI_LIVE_WS_WRITE_TIMEOUT", base.LiveWSWriteTimeout),
		LiveWSReadTimeout:       envDurationOr("VAANI_LIVE_WS_READ_TIMEOUT", base.LiveWSReadTimeout),
		LiveOutboundQueueSize:   envIntOr("VAANI_LIVE_OUTBOUND_QUEUE", base.LiveOutboundQueueSize),

		ReadHeaderTimeout:   envDurationOr("VAANI_READ_HEADER_TIMEOUT", base.ReadHeaderTimeout),
		ReadTimeout:         envDurationOr("VAANI_READ_TIMEOUT", base.ReadTimeout),
		ShutdownGracePeriod: envDurationOr("VAANI_SHUTDOWN_GRACE_PERIOD", base.ShutdownGracePeriod),
	}

	cfg.APIKeys = keySet(splitCSV(os.Getenv("VAANI_API_KEYS")))
	if len(cfg.APIKeys) == 0 {
		cfg.APIKeys = base.APIKeys
	}
	cfg.CORSAllowedOrigins = keySet(splitCSV(os.Getenv("VAANI_CORS_ORIGINS")))
	if len(cfg.CORSAllowedOrigins) == 0 {
		cfg.CORSAllowedOrigins = base.CORSAllowedOrigins
	}
	cfg.Voices = parseVoices(os.Getenv("VAANI_VOICES"))
	if len(cfg.Voices) == 0 {
		cfg.Voices = base.Voices
	}
	if schedule, ok := parseBackoff(os.Getenv("VAANI_STT_RETRY_BACKOFF")); ok {
		cfg.RetryBackoff = schedule
	}
	return cfg
}

// Validate checks the configuration for values the gateway cannot run with.
func (c Config) Validate() error {
	switch c.AuthMode {
	case AuthModeRequired, AuthModeOptional, AuthModeDisabled:
	default:
		return fmt.Errorf("VAANI_AUTH_MODE must be one of required, optional, disabled")
	}
	if c.AuthMode == AuthModeRequired && len(c.APIKeys) == 0 {
		return fmt.Errorf("VAANI_API_KEYS is required when VAANI_AUTH_MODE=required")
	}
	if strings.TrimSpace(c.Addr) == "" {
		return fmt.Errorf("VAANI_ADDR must not be empty")
	}
	if _, err := types.ParseLanguage(c.DefaultLanguage); err != nil {
		return fmt.Errorf("VAANI_DEFAULT_LANGUAGE: %w", err)
	}
	for lang := range c.Voices {
		if _, err := types.ParseLanguage(lang); err != nil {
			return fmt.Errorf("VAANI_VOICES: %w", err)
		}
	}
	if c.SpeechSpeed < 0 {
		return fmt.Errorf("VAANI_SPEECH_SPEED must be >= 0")
	}
	if c.HistoryWindow < 0 {
		return fmt.Errorf("VAANI_HISTORY_WINDOW must be >= 0")
	}
	if c.SwitchThreshold < 0 {
		return fmt.Errorf("VAANI_SWITCH_THRESHOLD must be >= 0")
	}
	if c.SilenceCommit < 0 {
		return fmt.Errorf("VAANI_SILENCE_COMMIT must be >= 0")
	}
	if c.MaxUtterance < 0 {
		return fmt.Errorf("VAANI_MAX_UTTERANCE must be >= 0")
	}
	if c.PrefixPadding < 0 {
		return fmt.Errorf("VAANI_PREFIX_PADDING must be >= 0")
	}
	if c.EnergyThreshold < 0 || c.EnergyThreshold >= 1 {
		return fmt.Errorf("VAANI_ENERGY_THRESHOLD must be in [0, 1)")
	}
	if c.RedisAddr != "" {
		if c.SessionTTL <= 0 {
			return fmt.Errorf("VAANI_SESSION_TTL must be > 0")
		}
		if c.AudioTTL <= 0 {
			return fmt.Errorf("VAANI_AUDIO_TTL must be > 0")
		}
	}
	if c.MaxSessions < 0 {
		return fmt.Errorf("VAANI_MAX_SESSIONS must be >= 0")
	}
	if c.LiveMaxAudioFrameBytes <= 0 {
		return fmt.Errorf("VAANI_LIVE_MAX_AUDIO_FRAME_BYTES must be > 0")
	}
	if c.LiveMaxJSONMessageBytes <= 0 {
		return fmt.Errorf("VAANI_LIVE_MAX_JSON_MESSAGE_BYTES must be > 0")
	}
	// A frame arrives base64-encoded inside a JSON envelope, so the message
	// budget must leave room for the 4/3 expansion plus framing.
	if int64(c.LiveMaxAudioFrameBytes/3+1)*4 >= c.LiveMaxJSONMessageBytes {
		return fmt.Errorf("VAANI_LIVE_MAX_JSON_MESSAGE_BYTES must exceed the base64 size of one audio frame")
	}
	if c.LiveMaxAudioFPS < 0 {
		return fmt.Errorf("VAANI_LIVE_MAX_AUDIO_FPS must be >= 0")
	}
	if c.LiveMaxAudioBPS < 0 {
		return fmt.Errorf("VAANI_LIVE_MAX_AUDIO_BPS must be >= 0")
	}
	if (c.LiveMaxAudioFPS > 0 || c.LiveMaxAudioBPS > 0) && c.LiveInboundBurstSeconds <= 0 {
		return fmt.Errorf("VAANI_LIVE_INBOUND_BURST_SECONDS must be > 0 when inbound audio limits are set")
	}
	if c.LiveHandshakeTimeout <= 0 {
		return fmt.Errorf("VAANI_LIVE_HANDSHAKE_TIMEOUT must be > 0")
	}
	if c.LiveWSPingInterval <= 0 {
		return fmt.Errorf("VAANI_LIVE_WS_PING_INTERVAL must be > 0")
	}
	if c.LiveWSWriteTimeout <= 0 {
		return fmt.Errorf("VAANI_LIVE_WS_WRITE_TIMEOUT must be > 0")
	}
	if c.LiveWSReadTimeout < 0 {
		return fmt.Errorf("VAANI_LIVE_WS_READ_TIMEOUT must be >= 0")
	}
	if c.LiveOutboundQueueSize <= 0 {
		return fmt.Errorf("VAANI_LIVE_OUTBOUND_QUEUE must be > 0")
	}
	if c.ReadHeaderTimeout <= 0 {
		return fmt.Errorf("VAANI_READ_HEADER_TIMEOUT must be > 0")
	}
	if c.ReadTimeout <= 0 {
		return fmt.Errorf("VAANI_READ_TIMEOUT must be > 0")
	}
	if c.ShutdownGracePeriod <= 0 {
		return fmt.Errorf("VAANI_SHUTDOWN_GRACE_PERIOD must be > 0")
	}
	return nil
}

// duration parses "600ms" style strings from YAML and JSON config files.
type duration time.Duration

func (d *duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var raw string
	if err := unmarshal(&raw); err != nil {
		return err
	}
	v, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return err
	}
	*d = duration(v)
	return nil
}

func (d *duration) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	v, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return err
	}
	*d = duration(v)
	return nil
}

type fileConfig struct {
	Addr        string   `yaml:"addr" json:"addr"`
	AuthMode    string   `yaml:"auth_mode" json:"auth_mode"`
	APIKeys     []string `yaml:"api_keys" json:"api_keys"`
	CORSOrigins []string `yaml:"cors_origins" json:"cors_origins"`

	OpenAIAPIKey  string `yaml:"openai_api_key" json:"openai_api_key"`
	OpenAIBaseURL string `yaml:"openai_base_url" json:"openai_base_url"`

	ChatModel   string  `yaml:"chat_model" json:"chat_model"`
	STTModel    string  `yaml:"stt_model" json:"stt_model"`
	TTSModel    string  `yaml:"tts_model" json:"tts_model"`
	SpeechSpeed float64 `yaml:"speech_speed" json:"speech_speed"`

	DefaultLanguage string            `yaml:"default_language" json:"default_language"`
	Voices          map[string]string `yaml:"voices" json:"voices"`
	Greeting        *bool             `yaml:"greeting" json:"greeting"`
	EnhanceSpeech   *bool             `yaml:"enhance_speech" json:"enhance_speech"`
	HistoryWindow   int               `yaml:"history_window" json:"history_window"`
	SwitchThreshold int               `yaml:"switch_threshold" json:"switch_threshold"`

	IdleTimeout     *duration  `yaml:"idle_timeout" json:"idle_timeout"`
	SilenceCommit   duration   `yaml:"silence_commit" json:"silence_commit"`
	MaxUtterance    duration   `yaml:"max_utterance" json:"max_utterance"`
	PrefixPadding   duration   `yaml:"prefix_padding" json:"prefix_padding"`
	EnergyThreshold float64    `yaml:"energy_threshold" json:"energy_threshold"`
	RetryBackoff    []duration `yaml:"stt_retry_backoff" json:"stt_retry_backoff"`

	Redis struct {
		Addr       string   `yaml:"addr" json:"addr"`
		Password   string   `yaml:"password" json:"password"`
		DB         int      `yaml:"db" json:"db"`
		SessionTTL duration `yaml:"session_ttl" json:"session_ttl"`
		AudioTTL   duration `yaml:"audio_ttl" json:"audio_ttl"`
	} `yaml:"redis" json:"redis"`

	Live struct {
		MaxSessions         int      `yaml:"max_sessions" json:"max_sessions"`
		MaxAudioFrameBytes  int      `yaml:"max_audio_frame_bytes" json:"max_audio_frame_bytes"`
		MaxJSONMessageBytes int64    `yaml:"max_json_message_bytes" json:"max_json_message_bytes"`
		MaxAudioFPS         int      `yaml:"max_audio_fps" json:"max_audio_fps"`
		MaxAudioBPS         int64    `yaml:"max_audio_bps" json:"max_audio_bps"`
		InboundBurstSeconds int      `yaml:"inbound_burst_seconds" json:"inbound_burst_seconds"`
		HandshakeTimeout    duration `yaml:"handshake_timeout" json:"handshake_timeout"`
		PingInterval        duration `yaml:"ping_interval" json:"ping_interval"`
		WriteTimeout        duration `yaml:"write_timeout" json:"write_timeout"`
		ReadTimeout         duration `yaml:"read_timeout" json:"read_timeout"`
		OutboundQueueSize   int      `yaml:"outbound_queue" json:"outbound_queue"`
	} `yaml:"live" json:"live"`

	Server struct {
		ReadHeaderTimeout   duration `yaml:"read_header_timeout" json:"read_header_timeout"`
		ReadTimeout         duration `yaml:"read_timeout" json:"read_timeout"`
		ShutdownGracePeriod duration `yaml:"shutdown_grace_period" json:"shutdown_grace_period"`
		MetricsNamespace    string   `yaml:"metrics_namespace" json:"metrics_namespace"`
	} `yaml:"server" json:"server"`
}

func applyFile(cfg *Config, path string) error {
	if path == "" {
		path = strings.TrimSpace(os.Getenv("VAANI_CONFIG"))
	}
	if path == "" {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}

	var fc fileConfig
	switch filepath.Ext(path) {
	case ".json":
		if err := json.Unmarshal(data, &fc); err != nil {
			return fmt.Errorf("parse json config: %w", err)
		}
	default:
		if err := yaml.Unmarshal(data, &fc); err != nil {
			return fmt.Errorf("parse yaml config: %w", err)
		}
	}

	fc.apply(cfg)
	return nil
}

func (fc fileConfig) apply(cfg *Config) {
	if fc.Addr != "" {
		cfg.Addr = fc.Addr
	}
	if fc.AuthMode != "" {
		cfg.AuthMode = AuthMode(strings.ToLower(strings.TrimSpace(fc.AuthMode)))
	}
	if len(fc.APIKeys) > 0 {
		cfg.APIKeys = keySet(fc.APIKeys)
	}
	if len(fc.CORSOrigins) > 0 {
		cfg.CORSAllowedOrigins = keySet(fc.CORSOrigins)
	}
	if fc.OpenAIAPIKey != "" {
		cfg.OpenAIAPIKey = fc.OpenAIAPIKey
	}
	if fc.OpenAIBaseURL != "" {
		cfg.OpenAIBaseURL = fc.OpenAIBaseURL
	}
	if fc.ChatModel != "" {
		cfg.ChatModel = fc.ChatModel
	}
	if fc.STTModel != "" {
		cfg.STTModel = fc.STTModel
	}
	if fc.TTSModel != "" {
		cfg.TTSModel = fc.TTSModel
	}
	if fc.SpeechSpeed > 0 {
		cfg.SpeechSpeed = fc.SpeechSpeed
	}
	if fc.DefaultLanguage != "" {
		cfg.DefaultLanguage = strings.ToLower(strings.TrimSpace(fc.DefaultLanguage))
	}
	if len(fc.Voices) > 0 {
		voices := make(map[string]string, len(fc.Voices))
		for lang, voice := range fc.Voices {
			lang = strings.ToLower(strings.TrimSpace(lang))
			voice = strings.TrimSpace(voice)
			if lang == "" || voice == "" {
				continue
			}
			voices[lang] = voice
		}
		cfg.Voices = voices
	}
	if fc.Greeting != nil {
		cfg.Greeting = *fc.Greeting
	}
	if fc.EnhanceSpeech != nil {
		cfg.EnhanceSpeech = *fc.EnhanceSpeech
	}
	if fc.HistoryWindow > 0 {
		cfg.HistoryWindow = fc.HistoryWindow
	}
	if fc.SwitchThreshold > 0 {
		cfg.SwitchThreshold = fc.SwitchThreshold
	}
	if fc.IdleTimeout != nil {
		cfg.IdleTimeout = time.Duration(*fc.IdleTimeout)
	}
	if fc.SilenceCommit > 0 {
		cfg.SilenceCommit = time.Duration(fc.SilenceCommit)
	}
	if fc.MaxUtterance > 0 {
		cfg.MaxUtterance = time.Duration(fc.MaxUtterance)
	}
	if fc.PrefixPadding > 0 {
		cfg.PrefixPadding = time.Duration(fc.PrefixPadding)
	}
	if fc.EnergyThreshold > 0 {
		cfg.EnergyThreshold = fc.EnergyThreshold
	}
	if len(fc.RetryBackoff) > 0 {
		schedule := make([]time.Duration, 0, len(fc.RetryBackoff))
		for _, d := range fc.RetryBackoff {
			schedule = append(schedule, time.Duration(d))
		}
		cfg.RetryBackoff = schedule
	}

	if fc.Redis.Addr != "" {
		cfg.RedisAddr = fc.Redis.Addr
	}
	if fc.Redis.Password != "" {
		cfg.RedisPassword = fc.Redis.Password
	}
	if fc.Redis.DB > 0 {
		cfg.RedisDB = fc.Redis.DB
	}
	if fc.Redis.SessionTTL > 0 {
		cfg.SessionTTL = time.Duration(fc.Redis.SessionTTL)
	}
	if fc.Redis.AudioTTL > 0 {
		cfg.AudioTTL = time.Duration(fc.Redis.AudioTTL)
	}

	if fc.Live.MaxSessions > 0 {
		cfg.MaxSessions = fc.Live.MaxSessions
	}
	if fc.Live.MaxAudioFrameBytes > 0 {
		cfg.LiveMaxAudioFrameBytes = fc.Live.MaxAudioFrameBytes
	}
	if fc.Live.MaxJSONMessageBytes > 0 {
		cfg.LiveMaxJSONMessageBytes = fc.Live.MaxJSONMessageBytes
	}
	if fc.Live.MaxAudioFPS > 0 {
		cfg.LiveMaxAudioFPS = fc.Live.MaxAudioFPS
	}
	if fc.Live.MaxAudioBPS > 0 {
		cfg.LiveMaxAudioBPS = fc.Live.MaxAudioBPS
	}
	if fc.Live.InboundBurstSeconds > 0 {
		cfg.LiveInboundBurstSeconds = fc.Live.InboundBurstSeconds
	}
	if fc.Live.HandshakeTimeout > 0 {
		cfg.LiveHandshakeTimeout = time.Duration(fc.Live.HandshakeTimeout)
	}
	if fc.Live.PingInterval > 0 {
		cfg.LiveWSPingInterval = time.Duration(fc.Live.PingInterval)
	}
	if fc.Live.WriteTimeout > 0 {
		cfg.LiveWSWriteTimeout = time.Duration(fc.Live.WriteTimeout)
	}
	if fc.Live.ReadTimeout > 0 {
		cfg.LiveWSReadTimeout = time.Duration(fc.Live.ReadTimeout)
	}
	if fc.Live.OutboundQueueSize > 0 {
		cfg.LiveOutboundQueueSize = fc.Live.OutboundQueueSize
	}

	if fc.Server.ReadHeaderTimeout > 0 {
		cfg.ReadHeaderTimeout = time.Duration(fc.Server.ReadHeaderTimeout)
	}
	if fc.Server.ReadTimeout > 0 {
		cfg.ReadTimeout = time.Duration(fc.Server.ReadTimeout)
	}
	if fc.Server.ShutdownGracePeriod > 0 {
		cfg.ShutdownGracePeriod = time.Duration(fc.Server.ShutdownGracePeriod)
	}
	if fc.Server.MetricsNamespace != "" {
		cfg.MetricsNamespace = fc.Server.MetricsNamespace
	}
}

func envOr(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func envIntOr(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envInt64Or(key string, def int64) int64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return def
	}
	return n
}

func envFloat64Or(key string, def float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func envBoolOr(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envDurationOr(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}

func keySet(keys []string) map[string]struct{} {
	if len(keys) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		set[k] = struct{}{}
	}
	return set
}

// parseVoices reads "tamil=onyx,kannada=fable" pairs; malformed entries are
// skipped.
func parseVoices(s string) map[string]string {
	voices := make(map[string]string)
	for _, pair := range splitCSV(s) {
		lang, voice, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		lang = strings.ToLower(strings.TrimSpace(lang))
		voice = strings.TrimSpace(voice)
		if lang == "" || voice == "" {
			continue
		}
		voices[lang] = voice
	}
	if len(voices) == 0 {
		return nil
	}
	return voices
}

// parseBackoff reads a "500ms,1.5s" schedule. The second return is false
// when the variable is unset or any entry fails to parse.
func parseBackoff(s string) ([]time.Duration, bool) {
	parts := splitCSV(s)
	if len(parts) == 0 {
		return nil, false
	}
	schedule := make([]time.Duration, 0, len(parts))
	for _, p := range parts {
		d, err := time.ParseDuration(p)
		if err != nil || d < 0 {
			return nil, false
		}
		schedule = append(schedule, d)
	}
	return schedule, true
}
