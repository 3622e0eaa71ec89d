package storage

import (
	"context"
	"fmt"

	"github.com/mitchellh/mapstructure"
)

// New creates the backend named by typ, decoding its type specific
// options from the raw config map.
//
// Supported types:
//   - "local": filesystem under base_dir
//   - "b2":    Backblaze B2 bucket
//   - "s3":    Amazon S3 or a compatible store
func New(ctx context.Context, typ string, options map[string]any) (Backend, error) {
	switch typ {
	case "local":
		var opts LocalOptions
		if err := decodeOptions(options, &opts); err != nil {
			return nil, fmt.Errorf("failed to decode local storage config: %w", err)
		}
		return NewLocalBackend(opts)
	case "b2":
		var opts B2Options
		if err := decodeOptions(options, &opts); err != nil {
			return nil, fmt.Errorf("failed to decode b2 storage config: %w", err)
		}
		return NewB2Backend(ctx, opts)
	case "s3":
		var opts S3Options
		if err := decodeOptions(options, &opts); err != nil {
			return nil, fmt.Errorf("failed to decode s3 storage config: %w", err)
		}
		return NewS3Backend(ctx, opts)
	default:
		return nil, fmt.Errorf("unknown storage type: %q", typ)
	}
}

func decodeOptions(options map[string]any, out any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
	})
	if err != nil {
		return err
	}
	return decoder.Decode(options)
}
