package app

import (
	"strings"

	coreconfig "github.com/m3rciful/ticketbot/core/config"
	coredatabase "github.com/m3rciful/ticketbot/core/database"
	"github.com/m3rciful/ticketbot/internal/render"
)

// DialogConfig tunes the per-user pipeline.
type DialogConfig struct {
	LockTimeoutMS        int `yaml:"lock_timeout_ms" envconfig:"DIALOG_LOCK_TIMEOUT_MS" validate:"gte=0"`
	SweepIntervalSeconds int `yaml:"sweep_interval_seconds" envconfig:"DIALOG_SWEEP_INTERVAL_SECONDS" validate:"gte=0"`
	IdleTTLSeconds       int `yaml:"idle_ttl_seconds" envconfig:"DIALOG_IDLE_TTL_SECONDS" validate:"gte=0"`
}

// RenderConfig selects and configures the ticket renderer.
type RenderConfig struct {
	Mode           string `yaml:"mode" envconfig:"RENDER_MODE" validate:"omitempty,oneof=image video"`
	Template       string `yaml:"template" envconfig:"RENDER_TEMPLATE" validate:"required"`
	FontRegular    string `yaml:"font_regular" envconfig:"RENDER_FONT_REGULAR" validate:"required"`
	FontMedium     string `yaml:"font_medium" envconfig:"RENDER_FONT_MEDIUM" validate:"required"`
	BaseVideo      string `yaml:"base_video" envconfig:"RENDER_BASE_VIDEO" validate:"required_if=Mode video"`
	CropTopPx      int    `yaml:"crop_top_px" envconfig:"RENDER_CROP_TOP_PX" validate:"gte=0"`
	OutputDir      string `yaml:"output_dir" envconfig:"RENDER_OUTPUT_DIR"`
	Timezone       string `yaml:"timezone" envconfig:"RENDER_TIMEZONE"`
	TimeoutSeconds int    `yaml:"timeout_seconds" envconfig:"RENDER_TIMEOUT_SECONDS" validate:"gte=0"`
	FFmpeg         string `yaml:"ffmpeg" envconfig:"RENDER_FFMPEG"`
}

// RoutesConfig points at an optional route table file.
type RoutesConfig struct {
	File string `yaml:"file" envconfig:"ROUTES_FILE"`
}

// MetricsConfig enables the Prometheus endpoint when Listen is set.
type MetricsConfig struct {
	Listen string `yaml:"listen" envconfig:"METRICS_LISTEN" validate:"omitempty,hostname_port"`
}

// Config is the full application configuration.
type Config struct {
	coreconfig.Config `yaml:",inline"`

	Database coredatabase.Config `yaml:"database"`
	Dialog   DialogConfig        `yaml:"dialog"`
	Render   RenderConfig        `yaml:"render"`
	Routes   RoutesConfig        `yaml:"routes"`
	Metrics  MetricsConfig       `yaml:"metrics"`
}

const (
	defaultLockTimeoutMS        = 5000
	defaultSweepIntervalSeconds = 60
	defaultIdleTTLSeconds       = 600
	defaultCropTopPx            = 200
	defaultRenderTimeoutSeconds = 120
)

// CoreConfig exposes the embedded core configuration.
func (c *Config) CoreConfig() *coreconfig.Config {
	if c == nil {
		return nil
	}
	return &c.Config
}

// LoadConfig reads path, applies environment overrides, fills defaults and
// validates the result.
func LoadConfig(path string) (*Config, error) {
	var cfg Config
	if err := coreconfig.Decode(path, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Normalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Normalize applies defaults and validates cfg.
func (c *Config) Normalize() error {
	if err := coreconfig.Normalize(&c.Config); err != nil {
		return err
	}
	c.Database.ApplyDefaults()

	if c.Dialog.LockTimeoutMS == 0 {
		c.Dialog.LockTimeoutMS = defaultLockTimeoutMS
	}
	if c.Dialog.SweepIntervalSeconds == 0 {
		c.Dialog.SweepIntervalSeconds = defaultSweepIntervalSeconds
	}
	if c.Dialog.IdleTTLSeconds == 0 {
		c.Dialog.IdleTTLSeconds = defaultIdleTTLSeconds
	}

	c.Render.Mode = strings.ToLower(strings.TrimSpace(c.Render.Mode))
	if c.Render.Mode == "" {
		c.Render.Mode = render.ModeImage
	}
	if c.Render.CropTopPx == 0 {
		c.Render.CropTopPx = defaultCropTopPx
	}
	if c.Render.TimeoutSeconds == 0 {
		c.Render.TimeoutSeconds = defaultRenderTimeoutSeconds
	}

	return coreconfig.ValidationError(coreconfig.NewValidator().Struct(c))
}

// RenderOptions maps the render section onto renderer options.
func (c *Config) RenderOptions() render.Options {
	return render.Options{
		Mode:        c.Render.Mode,
		Template:    c.Render.Template,
		FontRegular: c.Render.FontRegular,
		FontMedium:  c.Render.FontMedium,
		BaseVideo:   c.Render.BaseVideo,
		CropTopPx:   c.Render.CropTopPx,
		OutputDir:   c.Render.OutputDir,
		Timezone:    c.Render.Timezone,
		FFmpeg:      c.Render.FFmpeg,
	}
}
