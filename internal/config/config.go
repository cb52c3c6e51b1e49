package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type TelemetryConfig struct {
	LogLevel       string `yaml:"log_level"`
	OTLPEndpoint   string `yaml:"otlp_endpoint"`
	OTLPInsecure   bool   `yaml:"otlp_insecure"`
	PrometheusBind string `yaml:"prometheus_bind"`
}

type HTTPConfig struct {
	Bind           string   `yaml:"bind"`
	Port           int      `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	TempDir        string   `yaml:"temp_dir"`
	FileTTLSeconds int      `yaml:"file_ttl_seconds"`
}

type Config struct {
	RuntimeName string          `yaml:"runtime_name"`
	Environment string          `yaml:"environment"`
	HTTP        HTTPConfig      `yaml:"http"`
	Telemetry   TelemetryConfig `yaml:"telemetry"`
	Bus         BusConfig       `yaml:"bus"`
	History     HistoryConfig   `yaml:"history"`
	STT         STTConfig       `yaml:"stt"`
	Chat        ChatConfig      `yaml:"chat"`
	TTS         TTSConfig       `yaml:"tts"`
}

type BusConfig struct {
	Enabled        bool     `yaml:"enabled"`
	Embedded       bool     `yaml:"embedded"`
	Port           int      `yaml:"port"`
	Servers        []string `yaml:"servers"`
	Username       string   `yaml:"username"`
	Password       string   `yaml:"password"`
	Token          string   `yaml:"token"`
	TLSInsecure    bool     `yaml:"tls_insecure"`
	ConnectTimeout int      `yaml:"connect_timeout_ms"`
}

type HistoryConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Path          string `yaml:"path"`
	RetentionDays int    `yaml:"retention_days"`
	MaxSessions   int    `yaml:"max_sessions"`
	VacuumOnStart bool   `yaml:"vacuum_on_start"`
}

type STTConfig struct {
	Mode            string `yaml:"mode"` // mock, exec
	Command         string `yaml:"command"`
	ModelPath       string `yaml:"model_path"`
	Language        string `yaml:"language"`
	VADMinSilenceMS int    `yaml:"vad_min_silence_ms"`
}

type ChatConfig struct {
	Endpoint       string  `yaml:"endpoint"`
	Model          string  `yaml:"model"`
	APIKeyEnv      string  `yaml:"api_key_env"`
	SystemPrompt   string  `yaml:"system_prompt"`
	MaxTokens      int     `yaml:"max_tokens"`
	Temperature    float64 `yaml:"temperature"`
	TimeoutSeconds int     `yaml:"timeout_seconds"`
}

type TTSConfig struct {
	Mode            string `yaml:"mode"` // mock, exec
	Command         string `yaml:"command"`
	CheckpointPath  string `yaml:"checkpoint_path"`
	ConfigPath      string `yaml:"config_path"`
	PromptVoicePath string `yaml:"prompt_voice_path"`
	PromptText      string `yaml:"prompt_text"`
	SampleRate      int    `yaml:"sample_rate"`
	CacheSize       int    `yaml:"cache_size"`
	EncoderCommand  string `yaml:"encoder_command"`
}

// DefaultSystemPrompt is the persona used when a chat request carries none.
const DefaultSystemPrompt = "당신은 도움이 되고 친근한 AI 어시스턴트입니다. 사용자의 질문에 정확하고 유용한 답변을 제공해주세요."

// DefaultPromptText is the transcript paired with the prompt voice recording.
const DefaultPromptText = "안녕하세요, 저는 메티스 음성 비서입니다. 무엇을 도와드릴까요?"

func Default() Config {
	return Config{
		RuntimeName: "voicecore",
		Environment: "development",
		HTTP: HTTPConfig{
			Bind:           "0.0.0.0",
			Port:           8000,
			AllowedOrigins: []string{"*"},
			TempDir:        "./data/tmp",
			FileTTLSeconds: 120,
		},
		Telemetry: TelemetryConfig{
			LogLevel:       "info",
			OTLPEndpoint:   "",
			OTLPInsecure:   true,
			PrometheusBind: ":9091",
		},
		Bus: BusConfig{
			Enabled:        false,
			Embedded:       true,
			Port:           4222,
			Servers:        []string{"nats://localhost:4222"},
			ConnectTimeout: 2000,
		},
		History: HistoryConfig{
			Enabled:       false,
			Path:          "./data/voicecore-history.db",
			RetentionDays: 30,
			MaxSessions:   10000,
		},
		STT: STTConfig{
			Mode:            "mock",
			Language:        "ko",
			VADMinSilenceMS: 500,
		},
		Chat: ChatConfig{
			Endpoint:       "https://api.deepseek.com/v1",
			Model:          "deepseek-chat",
			APIKeyEnv:      "DEEPSEEK_API_KEY",
			MaxTokens:      500,
			Temperature:    0.7,
			TimeoutSeconds: 30,
		},
		TTS: TTSConfig{
			Mode:       "mock",
			PromptText: DefaultPromptText,
			SampleRate: 24000,
			CacheSize:  32,
		},
	}
}

func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return cfg, fmt.Errorf("config file not found: %w", err)
			}
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.RuntimeName, "VOICE_RUNTIME_NAME")
	overrideString(&cfg.Environment, "VOICE_RUNTIME_ENVIRONMENT")
	overrideString(&cfg.HTTP.Bind, "VOICE_HTTP_BIND")
	overrideInt(&cfg.HTTP.Port, "VOICE_HTTP_PORT")
	overrideStringSlice(&cfg.HTTP.AllowedOrigins, "VOICE_HTTP_ALLOWED_ORIGINS")
	overrideString(&cfg.HTTP.TempDir, "VOICE_HTTP_TEMP_DIR")
	overrideInt(&cfg.HTTP.FileTTLSeconds, "VOICE_HTTP_FILE_TTL_SECONDS")
	overrideString(&cfg.Telemetry.LogLevel, "VOICE_TELEMETRY_LOG_LEVEL")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "VOICE_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "VOICE_TELEMETRY_OTLP_INSECURE")
	overrideString(&cfg.Telemetry.PrometheusBind, "VOICE_TELEMETRY_PROMETHEUS_BIND")
	overrideBool(&cfg.Bus.Enabled, "VOICE_BUS_ENABLED")
	overrideBool(&cfg.Bus.Embedded, "VOICE_BUS_EMBEDDED")
	overrideInt(&cfg.Bus.Port, "VOICE_BUS_PORT")
	overrideStringSlice(&cfg.Bus.Servers, "VOICE_BUS_SERVERS")
	overrideString(&cfg.Bus.Username, "VOICE_BUS_USERNAME")
	overrideString(&cfg.Bus.Password, "VOICE_BUS_PASSWORD")
	overrideString(&cfg.Bus.Token, "VOICE_BUS_TOKEN")
	overrideBool(&cfg.Bus.TLSInsecure, "VOICE_BUS_TLS_INSECURE")
	overrideInt(&cfg.Bus.ConnectTimeout, "VOICE_BUS_CONNECT_TIMEOUT_MS")
	overrideBool(&cfg.History.Enabled, "VOICE_HISTORY_ENABLED")
	overrideString(&cfg.History.Path, "VOICE_HISTORY_PATH")
	overrideInt(&cfg.History.RetentionDays, "VOICE_HISTORY_RETENTION_DAYS")
	overrideInt(&cfg.History.MaxSessions, "VOICE_HISTORY_MAX_SESSIONS")
	overrideBool(&cfg.History.VacuumOnStart, "VOICE_HISTORY_VACUUM_ON_START")
	overrideString(&cfg.STT.Mode, "VOICE_STT_MODE")
	overrideString(&cfg.STT.Command, "VOICE_STT_COMMAND")
	overrideString(&cfg.STT.ModelPath, "VOICE_STT_MODEL_PATH")
	overrideString(&cfg.STT.Language, "VOICE_STT_LANGUAGE")
	overrideInt(&cfg.STT.VADMinSilenceMS, "VOICE_STT_VAD_MIN_SILENCE_MS")
	overrideString(&cfg.Chat.Endpoint, "VOICE_CHAT_ENDPOINT")
	overrideString(&cfg.Chat.Model, "VOICE_CHAT_MODEL")
	overrideString(&cfg.Chat.APIKeyEnv, "VOICE_CHAT_API_KEY_ENV")
	overrideString(&cfg.Chat.SystemPrompt, "VOICE_CHAT_SYSTEM_PROMPT")
	overrideInt(&cfg.Chat.MaxTokens, "VOICE_CHAT_MAX_TOKENS")
	overrideFloat(&cfg.Chat.Temperature, "VOICE_CHAT_TEMPERATURE")
	overrideInt(&cfg.Chat.TimeoutSeconds, "VOICE_CHAT_TIMEOUT_SECONDS")
	overrideString(&cfg.TTS.Mode, "VOICE_TTS_MODE")
	overrideString(&cfg.TTS.Command, "VOICE_TTS_COMMAND")
	overrideString(&cfg.TTS.CheckpointPath, "VOICE_TTS_CHECKPOINT_PATH")
	overrideString(&cfg.TTS.ConfigPath, "VOICE_TTS_CONFIG_PATH")
	overrideString(&cfg.TTS.PromptVoicePath, "VOICE_TTS_PROMPT_VOICE_PATH")
	overrideString(&cfg.TTS.PromptText, "VOICE_TTS_PROMPT_TEXT")
	overrideInt(&cfg.TTS.SampleRate, "VOICE_TTS_SAMPLE_RATE")
	overrideInt(&cfg.TTS.CacheSize, "VOICE_TTS_CACHE_SIZE")
	overrideString(&cfg.TTS.EncoderCommand, "VOICE_TTS_ENCODER_COMMAND")
}

func overrideString(target *string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok && strings.TrimSpace(value) != "" {
		*target = value
	}
}

func overrideInt(target *int, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			*target = parsed
		}
	}
}

func overrideBool(target *bool, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			*target = parsed
		}
	}
}

func overrideStringSlice(target *[]string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		parts := strings.Split(value, ",")
		var trimmed []string
		for _, p := range parts {
			if s := strings.TrimSpace(p); s != "" {
				trimmed = append(trimmed, s)
			}
		}
		if len(trimmed) > 0 {
			*target = trimmed
		}
	}
}

func overrideFloat(target *float64, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			*target = parsed
		}
	}
}

func validate(cfg Config) error {
	if cfg.RuntimeName == "" {
		return errors.New("runtime_name must not be empty")
	}
	if cfg.HTTP.Port <= 0 || cfg.HTTP.Port > 65535 {
		return errors.New("http.port must be between 1 and 65535")
	}
	if cfg.HTTP.TempDir == "" {
		return errors.New("http.temp_dir must not be empty")
	}
	if cfg.HTTP.FileTTLSeconds <= 0 {
		return errors.New("http.file_ttl_seconds must be positive")
	}
	if cfg.Telemetry.PrometheusBind == "" {
		return errors.New("telemetry.prometheus_bind must not be empty")
	}
	if cfg.Bus.Enabled {
		if cfg.Bus.Embedded {
			if cfg.Bus.Port <= 0 || cfg.Bus.Port > 65535 {
				return errors.New("bus.port must be between 1 and 65535 when embedded mode is enabled")
			}
		} else if len(cfg.Bus.Servers) == 0 {
			return errors.New("bus.servers must not be empty when embedded mode is disabled")
		}
	}
	if cfg.History.Enabled && cfg.History.Path == "" {
		return errors.New("history.path must not be empty when history is enabled")
	}
	if cfg.History.RetentionDays < 0 {
		return errors.New("history.retention_days must be >= 0")
	}
	switch cfg.STT.Mode {
	case "mock", "exec":
	default:
		return errors.New("stt.mode must be one of mock|exec")
	}
	if cfg.STT.Mode == "exec" && cfg.STT.Command == "" {
		return errors.New("stt.command must be set when mode=exec")
	}
	if cfg.STT.VADMinSilenceMS <= 0 {
		return errors.New("stt.vad_min_silence_ms must be positive")
	}
	if cfg.Chat.Endpoint == "" {
		return errors.New("chat.endpoint must not be empty")
	}
	if cfg.Chat.Model == "" {
		return errors.New("chat.model must not be empty")
	}
	if cfg.Chat.APIKeyEnv == "" {
		return errors.New("chat.api_key_env must not be empty")
	}
	if cfg.Chat.MaxTokens <= 0 {
		return errors.New("chat.max_tokens must be positive")
	}
	if cfg.Chat.TimeoutSeconds <= 0 {
		return errors.New("chat.timeout_seconds must be positive")
	}
	switch cfg.TTS.Mode {
	case "mock", "exec":
	default:
		return errors.New("tts.mode must be one of mock|exec")
	}
	if cfg.TTS.Mode == "exec" && cfg.TTS.Command == "" {
		return errors.New("tts.command must be set when mode=exec")
	}
	if cfg.TTS.SampleRate <= 0 {
		return errors.New("tts.sample_rate must be positive")
	}
	if cfg.TTS.CacheSize <= 0 {
		return errors.New("tts.cache_size must be positive")
	}
	return nil
}
