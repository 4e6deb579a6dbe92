package instrument

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/halcyonbeam/halcyon-core/internal/signal"
)

// Device is one registered control point with its lookup metadata.
type Device struct {
	Name      string
	Labels    []string
	Units     string
	Precision int
	Point     signal.ControlPoint
}

// Registry holds the instrument's control points, indexed by name, with
// label-based lookup for groups like "motors" or "baseline".
//
// All methods are safe for concurrent use. Registration normally stops
// once the loader has run, but nothing prevents later additions.
type Registry struct {
	mu      sync.RWMutex
	devices map[string]Device
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{devices: make(map[string]Device)}
}

// Register adds a device. Names are unique; a second registration under
// the same name returns ErrDuplicateName.
func (r *Registry) Register(dev Device) error {
	if dev.Name == "" {
		return fmt.Errorf("instrument: device name required")
	}
	if dev.Point == nil {
		return fmt.Errorf("instrument: device %q has no control point", dev.Name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.devices[dev.Name]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicateName, dev.Name)
	}
	r.devices[dev.Name] = dev
	return nil
}

// Get returns the device registered under name.
func (r *Registry) Get(name string) (Device, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	dev, ok := r.devices[name]
	if !ok {
		return Device{}, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	return dev, nil
}

// Point returns just the control point registered under name.
func (r *Registry) Point(name string) (signal.ControlPoint, error) {
	dev, err := r.Get(name)
	if err != nil {
		return nil, err
	}
	return dev.Point, nil
}

// All returns every registered device, sorted by name.
func (r *Registry) All() []Device {
	r.mu.RLock()
	defer r.mu.RUnlock()
	devices := make([]Device, 0, len(r.devices))
	for _, dev := range r.devices {
		devices = append(devices, dev)
	}
	sort.Slice(devices, func(i, j int) bool { return devices[i].Name < devices[j].Name })
	return devices
}

// FindByLabel returns the devices carrying label, sorted by name.
func (r *Registry) FindByLabel(label string) []Device {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var matched []Device
	for _, dev := range r.devices {
		for _, l := range dev.Labels {
			if l == label {
				matched = append(matched, dev)
				break
			}
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].Name < matched[j].Name })
	return matched
}

// Names returns all registered names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.devices))
	for name := range r.devices {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ConnectAll connects every registered device concurrently and waits
// for all of them, reporting the first failure.
func (r *Registry) ConnectAll(ctx context.Context, timeout time.Duration) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, dev := range r.All() {
		g.Go(func() error {
			if err := dev.Point.Connect(ctx, timeout); err != nil {
				return fmt.Errorf("instrument: connecting %q: %w", dev.Name, err)
			}
			return nil
		})
	}
	return g.Wait()
}
