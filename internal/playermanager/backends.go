package playermanager

import (
	"github.com/sendspin/endpoint-core/internal/player/backend"
	"github.com/sendspin/endpoint-core/internal/player/backend/malgobackend"
	"github.com/sendspin/endpoint-core/internal/player/backend/mock"
)

// BackendRegistry resolves a PlayerConfiguration.Backend tag ("pulse",
// "alsa", "mock") to the shared backend.Backend instance of that kind.
// Built once at process startup and shared by every runtime C7 creates.
type BackendRegistry map[string]backend.Backend

// DefaultBackendRegistry wires the three backend variants named in spec
// §4.6/§9.
func DefaultBackendRegistry() BackendRegistry {
	return BackendRegistry{
		"pulse": malgobackend.New(malgobackend.VariantPulse),
		"alsa":  malgobackend.New(malgobackend.VariantAlsaDirect),
		"mock":  mock.New(),
	}
}

func (r BackendRegistry) resolve(tag string) (backend.Backend, error) {
	be, ok := r[tag]
	if !ok {
		return nil, newFailure(FailureDeviceInvalid, "unknown backend %q", tag)
	}
	return be, nil
}
