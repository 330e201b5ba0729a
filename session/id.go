package session

import (
	"fmt"

	"github.com/hashicorp/go-uuid"
)

// NewId generates an id with an optional prefix. The id generated is
// suitable for an authorization request's state or nonce.
//
// Supported options: WithPrefix
func NewId(opt ...Option) (string, error) {
	const op = "session.NewId"
	opts := getIdOpts(opt...)
	id, err := uuid.GenerateUUID()
	if err != nil {
		return "", fmt.Errorf("%s: unable to generate id: %w", op, ErrIdGeneratorFailed)
	}
	if opts.withPrefix != "" {
		return fmt.Sprintf("%s_%s", opts.withPrefix, id), nil
	}
	return id, nil
}
