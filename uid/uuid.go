package uid

import (
	"context"
	"encoding/hex"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

type UUIDOptions struct {
	// Version v1, v4, v6, v7
	Version string `cfg:"version" def:"v4" validate:"omitempty,oneof=v1 v4 v6 v7"`
	// WithHyphens 为 false 时输出 32 位十六进制，和 uuid 主键列的长度一致
	WithHyphens bool `cfg:"withHyphens"`
}

type UUIDGenerator struct {
	newUUID     func() (uuid.UUID, error)
	withHyphens bool
}

func NewUUIDGeneratorWithOptions(options *UUIDOptions) (*UUIDGenerator, error) {
	if options == nil {
		options = &UUIDOptions{}
	}
	g := &UUIDGenerator{withHyphens: options.WithHyphens}
	switch options.Version {
	case "", "v4":
		g.newUUID = uuid.NewRandom
	case "v1":
		g.newUUID = uuid.NewUUID
	case "v6":
		g.newUUID = uuid.NewV6
	case "v7":
		g.newUUID = uuid.NewV7
	default:
		return nil, errors.Errorf("unsupported uuid version %s", options.Version)
	}
	return g, nil
}

func (g *UUIDGenerator) Generate(ctx context.Context) (string, error) {
	u, err := g.newUUID()
	if err != nil {
		return "", errors.Wrap(err, "generate uuid failed")
	}
	if g.withHyphens {
		return u.String(), nil
	}
	return hex.EncodeToString(u[:]), nil
}
