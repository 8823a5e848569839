package archive

import (
	"fmt"
	"log/slog"

	"github.com/arloliu/eelsfit/format"
	"github.com/arloliu/eelsfit/internal/options"
)

// Config holds the encoding choices of an archive writer.
type Config struct {
	Compression   format.CompressionType
	ValueEncoding format.ValueEncoding
	BigEndian     bool
	Logger        *slog.Logger
}

func defaultConfig() Config {
	return Config{
		Compression:   format.CompressionZstd,
		ValueEncoding: format.ValueRaw,
		Logger:        slog.New(slog.DiscardHandler),
	}
}

// Option configures SaveModel and SaveSignal.
type Option = options.Option[*Config]

// WithCompression selects the payload compression. The default is Zstd.
func WithCompression(c format.CompressionType) Option {
	return options.New(func(cfg *Config) error {
		switch c {
		case format.CompressionNone, format.CompressionZstd, format.CompressionS2, format.CompressionLZ4:
			cfg.Compression = c
			return nil
		default:
			return fmt.Errorf("invalid compression: %s", c)
		}
	})
}

// WithValueEncoding selects how float64 columns are stored. Both encodings
// are lossless; ValueXOR is smaller for smooth maps.
func WithValueEncoding(enc format.ValueEncoding) Option {
	return options.New(func(cfg *Config) error {
		switch enc {
		case format.ValueRaw, format.ValueXOR:
			cfg.ValueEncoding = enc
			return nil
		default:
			return fmt.Errorf("invalid value encoding: %s", enc)
		}
	})
}

// WithBigEndian writes fixed-width fields big-endian.
func WithBigEndian() Option {
	return options.NoError(func(cfg *Config) { cfg.BigEndian = true })
}

// WithLogger sets the logger receiving compression statistics.
func WithLogger(logger *slog.Logger) Option {
	return options.NoError(func(cfg *Config) {
		if logger != nil {
			cfg.Logger = logger
		}
	})
}
