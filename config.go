package relaypager

import (
	"fmt"
	"sync"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Configuration encapsulates the settings shared by every Page.
type Configuration struct {
	// Encoder encodes and decodes cursors. Defaults to Base64URLCodec.
	Encoder Codec
	// DefaultPageSize is used as `first` when neither `first` nor `last` were
	// given. Every record fitting the cursor constraints is returned when both
	// DefaultPageSize and MaximumPageSize are nil.
	DefaultPageSize *int
	// MaximumPageSize caps both `first` and `last`. No cap when nil.
	MaximumPageSize *int
	// Logger receives debug events about the queries a Page issues.
	Logger *zap.Logger
}

// NewConfiguration returns the default configuration.
func NewConfiguration() *Configuration {
	return &Configuration{
		Encoder: Base64URLCodec,
		Logger:  zap.NewNop(),
	}
}

func (c *Configuration) encoder() Codec {
	if c == nil || c.Encoder == nil {
		return Base64URLCodec
	}

	return c.Encoder
}

func (c *Configuration) logger() *zap.Logger {
	if c == nil || c.Logger == nil {
		return zap.NewNop()
	}

	return c.Logger
}

var (
	_configurationMu sync.RWMutex
	_configuration   = NewConfiguration()
)

// CurrentConfiguration returns the process-wide configuration used by pages
// built without WithConfiguration.
func CurrentConfiguration() *Configuration {
	_configurationMu.RLock()
	defer _configurationMu.RUnlock()

	return _configuration
}

// SetConfiguration replaces the process-wide configuration. A nil value
// restores the defaults.
func SetConfiguration(cfg *Configuration) {
	_configurationMu.Lock()
	defer _configurationMu.Unlock()

	_configuration = lo.Ternary(cfg == nil, NewConfiguration(), cfg)
}

// Configure mutates the process-wide configuration in place. It is meant to be
// called once at startup.
func Configure(fn func(cfg *Configuration)) {
	_configurationMu.Lock()
	defer _configurationMu.Unlock()

	fn(_configuration)
}

// Reset restores the default process-wide configuration.
func Reset() {
	SetConfiguration(nil)
}

const (
	EncodingBase64URL       = "base64url"
	EncodingBase64URLPadded = "base64url_padded"
)

// FileConfig is the YAML shape accepted by LoadConfiguration.
//
//	default_page_size: 20
//	maximum_page_size: 100
//	cursor_encoding: base64url
type FileConfig struct {
	DefaultPageSize *int   `yaml:"default_page_size" validate:"omitnil,gte=0"`
	MaximumPageSize *int   `yaml:"maximum_page_size" validate:"omitnil,gte=1"`
	CursorEncoding  string `yaml:"cursor_encoding" default:"base64url" validate:"oneof=base64url base64url_padded"`
}

// LoadConfiguration parses a YAML document into a Configuration. Missing keys
// take their defaults; the result is validated before it is returned.
func LoadConfiguration(data []byte) (*Configuration, error) {
	var fc FileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := defaults.Set(&fc); err != nil {
		return nil, fmt.Errorf("failed to set configuration defaults: %w", err)
	}

	if err := validator.New(validator.WithRequiredStructEnabled()).Struct(&fc); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	if fc.DefaultPageSize != nil && fc.MaximumPageSize != nil && *fc.DefaultPageSize > *fc.MaximumPageSize {
		return nil, fmt.Errorf(
			"invalid configuration: default_page_size %d exceeds maximum_page_size %d",
			*fc.DefaultPageSize, *fc.MaximumPageSize,
		)
	}

	cfg := NewConfiguration()
	cfg.DefaultPageSize = fc.DefaultPageSize
	cfg.MaximumPageSize = fc.MaximumPageSize
	if fc.CursorEncoding == EncodingBase64URLPadded {
		cfg.Encoder = PaddedBase64URLCodec
	}

	return cfg, nil
}
