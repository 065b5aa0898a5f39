package config

import (
	"log"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Application config structure
type AppConfig struct {
	Name     string `mapstructure:"service_name" validate:"required"`
	Version  string `mapstructure:"version" validate:"required"`
	Host     string `mapstructure:"host" validate:"required"`
	Port     int    `mapstructure:"port" validate:"required"`
	LogLevel string `mapstructure:"log_level" validate:"required"`
	LogPath  string `mapstructure:"log_path"`

	// LLM (Together, OpenAI-compatible)
	TogetherApiKey  string `mapstructure:"together_api_key"`
	TogetherModel   string `mapstructure:"together_model" validate:"required"`
	TogetherBaseUrl string `mapstructure:"together_base_url" validate:"required"`
	TogetherTimeout int    `mapstructure:"together_timeout" validate:"required"` // seconds

	// External developer API
	ExternalApiBaseUrl string `mapstructure:"external_api_base_url"`
	ApiBaseUrl         string `mapstructure:"api_base_url"`

	// Voice toolchain
	FfmpegBin    string `mapstructure:"ffmpeg_bin" validate:"required"`
	WhisperBin   string `mapstructure:"whisper_bin" validate:"required"`
	WhisperModel string `mapstructure:"whisper_model" validate:"required"`
	PiperBin     string `mapstructure:"piper_bin"`
	PiperVoice   string `mapstructure:"piper_voice"`
	SileroModel  string `mapstructure:"silero_model" validate:"required"`
	UseCuda      string `mapstructure:"use_cuda"` // true | false | auto

	// Voice activity detection defaults
	VadThreshold    float32 `mapstructure:"vad_threshold"`
	VadMinSpeechMs  int     `mapstructure:"vad_min_speech_ms"`
	VadMinSilenceMs int     `mapstructure:"vad_min_silence_ms"`

	// Knowledge base
	ChromaDir        string  `mapstructure:"chroma_dir" validate:"required"`
	EmbeddingsModel  string  `mapstructure:"embeddings_model" validate:"required"`
	KbTopK           int     `mapstructure:"kb_top_k"`
	KbScoreMode      string  `mapstructure:"kb_score_mode" validate:"oneof=similarity distance"`
	KbScoreThreshold float64 `mapstructure:"kb_score_threshold"`

	// Paths
	VoiceStorageDir  string `mapstructure:"voice_storage_dir" validate:"required"`
	ScriptConfigPath string `mapstructure:"script_config_path" validate:"required"`
	RawScriptPath    string `mapstructure:"raw_script_path" validate:"required"`
}

// ExternalBaseUrl resolves the external API base, honouring the legacy
// API_BASE_URL name when EXTERNAL_API_BASE_URL is unset.
func (c *AppConfig) ExternalBaseUrl() string {
	if c.ExternalApiBaseUrl != "" {
		return c.ExternalApiBaseUrl
	}
	return c.ApiBaseUrl
}

// reading config and intializing configs for application
func InitConfig() (*viper.Viper, error) {
	vConfig := viper.NewWithOptions(viper.KeyDelimiter("__"))

	vConfig.AddConfigPath(".")
	vConfig.SetConfigName(".env")
	path := os.Getenv("ENV_PATH")
	if path != "" {
		log.Printf("env path %v", path)
		vConfig.SetConfigFile(path)
	}
	vConfig.SetConfigType("env")
	vConfig.AutomaticEnv()

	setDefault(vConfig)
	if err := vConfig.ReadInConfig(); err != nil && !os.IsNotExist(err) {
		log.Printf("Reading from env varaibles.")
	}

	return vConfig, nil
}

func setDefault(v *viper.Viper) {
	// setting all default values
	// keeping watch on https://github.com/spf13/viper/issues/188

	v.SetDefault("SERVICE_NAME", "voice-agent")
	v.SetDefault("VERSION", "0.0.1")
	v.SetDefault("HOST", "0.0.0.0")
	v.SetDefault("PORT", 8000)
	v.SetDefault("LOG_LEVEL", "debug")
	v.SetDefault("LOG_PATH", "")

	v.SetDefault("TOGETHER_API_KEY", "")
	v.SetDefault("TOGETHER_MODEL", "Qwen/QwQ-32B")
	v.SetDefault("TOGETHER_BASE_URL", "https://api.together.xyz/v1")
	v.SetDefault("TOGETHER_TIMEOUT", 60)

	v.SetDefault("EXTERNAL_API_BASE_URL", "http://localhost:8001")
	v.SetDefault("API_BASE_URL", "")

	v.SetDefault("FFMPEG_BIN", "ffmpeg")
	v.SetDefault("WHISPER_BIN", "whisper-cli")
	v.SetDefault("WHISPER_MODEL", "models/ggml-base.bin")
	v.SetDefault("PIPER_BIN", "piper")
	v.SetDefault("PIPER_VOICE", "")
	v.SetDefault("SILERO_MODEL", "models/silero_vad.onnx")
	v.SetDefault("USE_CUDA", "auto")

	v.SetDefault("VAD_THRESHOLD", 0.3)
	v.SetDefault("VAD_MIN_SPEECH_MS", 100)
	v.SetDefault("VAD_MIN_SILENCE_MS", 800)

	v.SetDefault("CHROMA_DIR", "data/chroma")
	v.SetDefault("EMBEDDINGS_MODEL", "BAAI/bge-base-en-v1.5")
	v.SetDefault("KB_TOP_K", 3)
	v.SetDefault("KB_SCORE_MODE", "similarity")
	v.SetDefault("KB_SCORE_THRESHOLD", 0.3)

	v.SetDefault("VOICE_STORAGE_DIR", "storage/voice")
	v.SetDefault("SCRIPT_CONFIG_PATH", "configs/script.json")
	v.SetDefault("RAW_SCRIPT_PATH", "simpleScript.txt")
}

// Getting application config from viper
func GetApplicationConfig(v *viper.Viper) (*AppConfig, error) {
	var config AppConfig
	err := v.Unmarshal(&config)
	if err != nil {
		log.Printf("%+v\n", err)
		return nil, err
	}

	// valdating the app config
	validate := validator.New()
	err = validate.Struct(&config)
	if err != nil {
		log.Printf("%+v\n", err)
		return nil, err
	}
	return &config, nil
}
