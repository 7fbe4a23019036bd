// Package codec holds the HEIF-family encoders and the registry the
// converter picks them from.
package codec

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Extension is the file extension given to every converted image.
const Extension = ".heic"

// DefaultCodec is the codec used when none is configured.
const DefaultCodec = "heif"

var ErrUnknownCodec = errors.New("unknown codec")

// Codec re-encodes a complete source image (JPEG or PNG bytes) into a
// HEIF-family container.
type Codec interface {
	// Name is the registry key, e.g. "heif".
	Name() string

	// Available reports whether the backing library can encode on this
	// machine.
	Available() bool

	// Encode decodes src and encodes it at quality. Quality is handed to
	// the backend as is.
	Encode(src []byte, quality int) ([]byte, error)
}

var (
	mu       sync.RWMutex
	registry = map[string]Codec{}
	skipped  = map[string]Codec{}
)

// Register adds c to the registry when it is available and reports whether
// it was added. Registering a name twice replaces the earlier codec.
func Register(c Codec) bool {
	mu.Lock()
	defer mu.Unlock()

	name := strings.ToLower(c.Name())
	if !c.Available() {
		skipped[name] = c
		return false
	}
	delete(skipped, name)
	registry[name] = c
	return true
}

// RegisterDefaults brings up libvips and registers the built-in codecs.
// It must run once before any conversion. The returned names are codecs
// that could not be used on this machine.
func RegisterDefaults() []string {
	startVips()

	var unavailable []string
	for _, c := range []Codec{NewHEIF(), NewAVIF()} {
		if !Register(c) {
			unavailable = append(unavailable, c.Name())
		}
	}
	return unavailable
}

// Shutdown releases the resources taken by RegisterDefaults.
func Shutdown() {
	stopVips()
}

// Get returns the registered codec called name.
func Get(name string) (Codec, error) {
	mu.RLock()
	defer mu.RUnlock()

	key := strings.ToLower(strings.TrimSpace(name))
	if c, ok := registry[key]; ok {
		return c, nil
	}
	if _, ok := skipped[key]; ok {
		return nil, fmt.Errorf("%w: %q is not supported by the libraries on this machine (available: %s)",
			ErrUnknownCodec, name, strings.Join(namesLocked(), ", "))
	}
	return nil, fmt.Errorf("%w: %q (available: %s)", ErrUnknownCodec, name, strings.Join(namesLocked(), ", "))
}

// Names lists the registered codecs in alphabetical order.
func Names() []string {
	mu.RLock()
	defer mu.RUnlock()
	return namesLocked()
}

func namesLocked() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
