package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"

	"classroom-lock/client/internal/device/domain"
	"classroom-lock/client/internal/mdm"
)

// ErrDeviceNotFound is returned for a UDID that is not in the loaded listing.
var ErrDeviceNotFound = errors.New("device not found")

// Inventory is the subset of the MDM client used to list apps and devices.
type Inventory interface {
	FetchApps(ctx context.Context) ([]mdm.App, error)
	FetchDevices(ctx context.Context) ([]mdm.Device, error)
}

// VisibilityStore is the per-device hidden-app set used to filter the picker.
type VisibilityStore interface {
	IsHidden(deviceKey string, appID uuid.UUID) bool
	PurgeOrphaned(ctx context.Context, deviceKey string, validIDs []uuid.UUID) (int, error)
}

// Catalog holds the devices and apps from the most recent remote listing. Records are
// rebuilt on every Load and never persisted.
type Catalog struct {
	remote     Inventory
	visibility VisibilityStore

	mu      sync.RWMutex
	devices []domain.Device
	byUDID  map[string]int
	apps    map[uuid.UUID]domain.App
}

// NewCatalog returns an empty catalog; call Load to populate it.
func NewCatalog(remote Inventory, visibility VisibilityStore) *Catalog {
	return &Catalog{
		remote:     remote,
		visibility: visibility,
		byUDID:     make(map[string]int),
		apps:       make(map[uuid.UUID]domain.App),
	}
}

// Load fetches the app inventory and the device listing and replaces the catalog contents.
// On error the previous contents are kept.
func (c *Catalog) Load(ctx context.Context) error {
	remoteApps, err := c.remote.FetchApps(ctx)
	if err != nil {
		return fmt.Errorf("fetch apps: %w", err)
	}
	remoteDevices, err := c.remote.FetchDevices(ctx)
	if err != nil {
		return fmt.Errorf("fetch devices: %w", err)
	}

	apps := make(map[uuid.UUID]domain.App, len(remoteApps))
	for _, ra := range remoteApps {
		a := appFromInventory(ra)
		apps[a.ID] = a
	}
	devices := make([]domain.Device, 0, len(remoteDevices))
	byUDID := make(map[string]int, len(remoteDevices))
	for _, rd := range remoteDevices {
		udid := strings.TrimSpace(rd.UDID)
		if udid == "" {
			log.Printf("device: skipping listing entry %q without UDID", rd.Name)
			continue
		}
		if _, dup := byUDID[udid]; dup {
			continue
		}
		d := domain.Device{
			ID:            domain.DeviceIDForUDID(udid),
			UDID:          udid,
			Name:          rd.Name,
			IconKind:      domain.IconKindTablet,
			RingColorKind: domain.RingColorKinds[len(devices)%len(domain.RingColorKinds)],
		}
		if rd.Owner != nil && rd.Owner.ID != 0 {
			d.OwnerID = strconv.FormatInt(rd.Owner.ID, 10)
		}
		seen := make(map[uuid.UUID]bool, len(rd.Apps))
		for _, da := range rd.Apps {
			bundle := strings.TrimSpace(da.Identifier)
			if bundle == "" {
				continue
			}
			id := domain.AppIDForBundle(bundle)
			if seen[id] {
				continue
			}
			seen[id] = true
			if _, ok := apps[id]; !ok {
				apps[id] = domain.App{
					ID:       id,
					Title:    da.Name,
					IconKind: domain.IconKindApp,
					BundleID: bundle,
					Details:  versionDetails(da.Version),
				}
			}
			d.AppIDs = append(d.AppIDs, id)
		}
		byUDID[udid] = len(devices)
		devices = append(devices, d)
	}

	c.mu.Lock()
	c.devices = devices
	c.byUDID = byUDID
	c.apps = apps
	c.mu.Unlock()
	log.Printf("device: catalog loaded (%d devices, %d apps)", len(devices), len(apps))
	return nil
}

// Devices returns the devices in listing order.
func (c *Catalog) Devices() []domain.Device {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]domain.Device, len(c.devices))
	for i, d := range c.devices {
		out[i] = cloneDevice(d)
	}
	return out
}

// Device returns the device with the given UDID.
func (c *Catalog) Device(udid string) (*domain.Device, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	i, ok := c.byUDID[udid]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrDeviceNotFound, udid)
	}
	d := cloneDevice(c.devices[i])
	return &d, nil
}

// App returns the app with the given id.
func (c *Catalog) App(id uuid.UUID) (*domain.App, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	a, ok := c.apps[id]
	if !ok {
		return nil, false
	}
	return &a, true
}

// Apps returns every known app ordered by title.
func (c *Catalog) Apps() []domain.App {
	c.mu.RLock()
	out := make([]domain.App, 0, len(c.apps))
	for _, a := range c.apps {
		out = append(out, a)
	}
	c.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].Title != out[j].Title {
			return out[i].Title < out[j].Title
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out
}

// DeviceApp resolves a bundle identifier to an app installed on the device.
func (c *Catalog) DeviceApp(udid, bundleID string) (*domain.Device, *domain.App, error) {
	d, err := c.Device(udid)
	if err != nil {
		return nil, nil, err
	}
	id := domain.AppIDForBundle(bundleID)
	if !d.HasApp(id) {
		return nil, nil, fmt.Errorf("app %s is not installed on %s", bundleID, udid)
	}
	a, ok := c.App(id)
	if !ok {
		return nil, nil, fmt.Errorf("app %s is not in the inventory", bundleID)
	}
	return d, a, nil
}

// DeviceApps returns the apps installed on the device, in listing order.
func (c *Catalog) DeviceApps(udid string) ([]domain.App, error) {
	d, err := c.Device(udid)
	if err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]domain.App, 0, len(d.AppIDs))
	for _, id := range d.AppIDs {
		if a, ok := c.apps[id]; ok {
			out = append(out, a)
		}
	}
	return out, nil
}

// VisibleApps returns the device's apps that are not hidden. Observing the app list purges
// hidden ids for apps the device no longer has.
func (c *Catalog) VisibleApps(ctx context.Context, udid string) ([]domain.App, error) {
	apps, err := c.DeviceApps(udid)
	if err != nil {
		return nil, err
	}
	if c.visibility == nil {
		return apps, nil
	}
	if err := c.PurgeOrphaned(ctx, udid); err != nil {
		return nil, err
	}
	out := apps[:0]
	for _, a := range apps {
		if !c.visibility.IsHidden(udid, a.ID) {
			out = append(out, a)
		}
	}
	return out, nil
}

// PurgeOrphaned drops hidden ids of the device that are not in its current app list.
func (c *Catalog) PurgeOrphaned(ctx context.Context, udid string) error {
	if c.visibility == nil {
		return nil
	}
	d, err := c.Device(udid)
	if err != nil {
		return err
	}
	removed, err := c.visibility.PurgeOrphaned(ctx, udid, d.AppIDs)
	if err != nil {
		return fmt.Errorf("purge hidden apps: %w", err)
	}
	if removed > 0 {
		log.Printf("device: purged %d orphaned hidden apps on %s", removed, udid)
	}
	return nil
}

func appFromInventory(ra mdm.App) domain.App {
	bundle := strings.TrimSpace(ra.BundleID)
	id := domain.AppIDForRemote(ra.ID)
	if bundle != "" {
		id = domain.AppIDForBundle(bundle)
	}
	return domain.App{
		ID:          id,
		Title:       ra.Name,
		Description: ra.Description,
		IconKind:    domain.IconKindApp,
		IconURL:     ra.Icon,
		BundleID:    bundle,
		Details:     versionDetails(ra.Version),
	}
}

func versionDetails(version string) string {
	if version == "" {
		return ""
	}
	return "Version " + version
}

func cloneDevice(d domain.Device) domain.Device {
	d.AppIDs = append([]uuid.UUID(nil), d.AppIDs...)
	return d
}
