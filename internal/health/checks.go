package health

import (
	"context"
	"errors"
	"fmt"
	"os"
)

// Pinger is implemented by dependencies with a cheap liveness probe, such as
// the settings stores.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingChecker returns a [Checker] that pings p.
func PingChecker(name string, p Pinger) Checker {
	return Checker{Name: name, Check: p.Ping}
}

// ErrKeyRejected is reported by [KeyChecker] when the service answers but
// refuses the configured key.
var ErrKeyRejected = errors.New("health: API key rejected")

// KeyChecker returns a [Checker] that validates the API key against the voice
// service. validate has the shape of voice.Service.ValidateKey.
func KeyChecker(name string, validate func(ctx context.Context) (bool, error)) Checker {
	return Checker{
		Name: name,
		Check: func(ctx context.Context) error {
			ok, err := validate(ctx)
			if err != nil {
				return err
			}
			if !ok {
				return ErrKeyRejected
			}
			return nil
		},
	}
}

// DirChecker returns an optional [Checker] that verifies dir exists and
// accepts new files, which the recorder needs to save takes.
func DirChecker(name, dir string) Checker {
	return Checker{
		Name:     name,
		Optional: true,
		Check: func(context.Context) error {
			info, err := os.Stat(dir)
			if err != nil {
				return err
			}
			if !info.IsDir() {
				return fmt.Errorf("%s is not a directory", dir)
			}
			f, err := os.CreateTemp(dir, ".sheng-probe-*")
			if err != nil {
				return err
			}
			f.Close()
			return os.Remove(f.Name())
		},
	}
}
