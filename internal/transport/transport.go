package transport

import (
	"context"

	"github.com/skobkin/myolink/internal/bgapi"
)

// Transport is a dongle byte channel with an explicit connect step.
type Transport interface {
	bgapi.Port
	Name() string
	Connect(ctx context.Context) error
}

// StatusTargetResolver is implemented by transports that can name the
// endpoint they talk to.
type StatusTargetResolver interface {
	StatusTarget() string
}
