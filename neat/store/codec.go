package store

import (
	"bytes"
	"fmt"

	"github.com/baldhumanity/neat-evo/neat"
)

func encode(cp *neat.Checkpoint) ([]byte, error) {
	var buf bytes.Buffer
	if err := cp.Encode(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decode(payload []byte) (*neat.Checkpoint, bool, error) {
	cp, err := neat.DecodeCheckpoint(bytes.NewReader(payload))
	if err != nil {
		return nil, false, fmt.Errorf("decode checkpoint: %w", err)
	}
	return cp, true, nil
}
