package checkpoint

import (
	"encoding/json"
	"fmt"

	"github.com/klauspost/compress/zstd"

	"github.com/ksteimel/fast-coref/internal/domain"
	apperrors "github.com/ksteimel/fast-coref/internal/pkg/errors"
)

var (
	encoder *zstd.Encoder
	decoder *zstd.Decoder
)

func init() {
	var err error
	if encoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault)); err != nil {
		panic(fmt.Sprintf("checkpoint: zstd encoder: %v", err))
	}
	if decoder, err = zstd.NewReader(nil); err != nil {
		panic(fmt.Sprintf("checkpoint: zstd decoder: %v", err))
	}
}

// Encode serializes a checkpoint as zstd-compressed JSON
func Encode(cp *domain.Checkpoint) ([]byte, error) {
	raw, err := json.Marshal(cp)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal checkpoint: %w", err)
	}
	return encoder.EncodeAll(raw, make([]byte, 0, len(raw)/4)), nil
}

// Decode parses a checkpoint and rejects schema versions it does not know
func Decode(data []byte) (*domain.Checkpoint, error) {
	raw, err := decoder.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress checkpoint: %w", err)
	}
	var cp domain.Checkpoint
	if err := json.Unmarshal(raw, &cp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal checkpoint: %w", err)
	}
	if cp.Version < 1 || cp.Version > domain.CheckpointVersion {
		return nil, apperrors.UnsupportedVersion(cp.Version)
	}
	return &cp, nil
}
