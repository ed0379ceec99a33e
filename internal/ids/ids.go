package ids

import "github.com/google/uuid"

// Provider issues identifiers for new rows.
type Provider interface {
	NewID() (string, error)
}

type uuidProvider struct{}

// NewUUIDProvider constructs a Provider that issues UUIDv7 identifiers.
func NewUUIDProvider() Provider {
	return &uuidProvider{}
}

func (p *uuidProvider) NewID() (string, error) {
	value, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return value.String(), nil
}

// Sequence hands out a fixed list of identifiers, then falls back to UUIDv7.
type Sequence struct {
	ids   []string
	index int
}

// NewSequence returns a Provider that yields values in order.
func NewSequence(values ...string) *Sequence {
	return &Sequence{ids: values}
}

func (s *Sequence) NewID() (string, error) {
	if s.index < len(s.ids) {
		id := s.ids[s.index]
		s.index++
		return id, nil
	}
	return (&uuidProvider{}).NewID()
}
