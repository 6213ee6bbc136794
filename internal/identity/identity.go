// Package identity obtains the session identifier peers use to find this
// instance.
package identity

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"

	"github.com/rudransh-shrivastava/peerdrop/internal/transport"
)

const (
	DefaultDigits = 4
	MaxAttempts   = 10
)

// Registrar confirms an identifier with the signaling side. An empty id asks
// it to assign one.
type Registrar interface {
	Open(ctx context.Context, id string) (string, error)
}

// Provider returns an identifier only once it is registered and reachable.
type Provider interface {
	Obtain(ctx context.Context) (string, error)
}

// Assigned leaves the choice of identifier to the registrar.
type Assigned struct {
	registrar Registrar
}

func NewAssigned(r Registrar) *Assigned {
	return &Assigned{registrar: r}
}

func (a *Assigned) Obtain(ctx context.Context) (string, error) {
	id, err := a.registrar.Open(ctx, "")
	if err != nil {
		return "", fmt.Errorf("register identifier: %w", err)
	}
	return id, nil
}

// Numeric generates a short decimal identifier without a leading zero and
// registers it, trying again when it is already taken.
type Numeric struct {
	registrar Registrar
	digits    int
	generate  func(digits int) (string, error)
}

func NewNumeric(r Registrar, digits int) *Numeric {
	if digits <= 0 {
		digits = DefaultDigits
	}
	return &Numeric{registrar: r, digits: digits, generate: GenerateNumeric}
}

func (n *Numeric) Obtain(ctx context.Context) (string, error) {
	var lastErr error
	for attempt := 0; attempt < MaxAttempts; attempt++ {
		candidate, err := n.generate(n.digits)
		if err != nil {
			return "", err
		}

		id, err := n.registrar.Open(ctx, candidate)
		if err == nil {
			return id, nil
		}
		if !errors.Is(err, transport.ErrIDTaken) {
			return "", fmt.Errorf("register identifier %s: %w", candidate, err)
		}
		lastErr = err
	}
	return "", fmt.Errorf("no free identifier after %d attempts: %w", MaxAttempts, lastErr)
}

// GenerateNumeric returns a random number in [10^(digits-1), 10^digits).
func GenerateNumeric(digits int) (string, error) {
	if digits <= 0 {
		return "", fmt.Errorf("digits must be positive, got %d", digits)
	}

	low := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(digits-1)), nil)
	high := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(digits)), nil)
	if digits == 1 {
		low = big.NewInt(0)
	}

	span := new(big.Int).Sub(high, low)
	n, err := rand.Int(rand.Reader, span)
	if err != nil {
		return "", fmt.Errorf("generate identifier: %w", err)
	}
	return n.Add(n, low).String(), nil
}

const (
	PolicyNumeric  = "numeric"
	PolicyAssigned = "assigned"
)

// New picks a provider by policy name. An empty name means numeric.
func New(policy string, r Registrar, digits int) (Provider, error) {
	switch policy {
	case "", PolicyNumeric:
		return NewNumeric(r, digits), nil
	case PolicyAssigned:
		return NewAssigned(r), nil
	default:
		return nil, fmt.Errorf("unknown identity policy %q", policy)
	}
}
