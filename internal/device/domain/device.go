package domain

import (
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// Namespaces for deterministic local ids. Ids derived from the same remote identifier are
// stable across inventory reloads, so ledger keys keep pointing at the same app.
var (
	appNamespace       = uuid.MustParse("2b7c3f0e-9a41-4d2e-8f5b-6c1d0e3a7b92")
	remoteAppNamespace = uuid.MustParse("5e8d1a4c-3b27-4f90-a6c8-0d9e2f1b4c73")
	deviceNamespace    = uuid.MustParse("9c4a6e2d-1f83-4b5a-b7d0-3e2c8f6a1d54")
)

// Icon kinds used by the presentation layer.
const (
	IconKindApp    = "app"
	IconKindTablet = "tablet"
)

// RingColorKinds is the palette devices cycle through in listing order.
var RingColorKinds = []string{"blue", "green", "orange", "purple", "pink", "teal"}

// App is an installable application the teacher can lock a device to.
type App struct {
	ID          uuid.UUID
	Title       string
	Description string
	IconKind    string
	IconURL     string
	// BundleID is the remote app identifier sent in lock requests; empty when unknown.
	BundleID string
	Details  string
}

// Lockable reports whether the app can be used as a lock target.
func (a *App) Lockable() bool {
	return a != nil && strings.TrimSpace(a.BundleID) != ""
}

// Device is a managed tablet. UDID keys every remote call and every local ledger.
type Device struct {
	ID            uuid.UUID
	UDID          string
	Name          string
	IconKind      string
	RingColorKind string
	// AppIDs lists the device's apps in remote listing order.
	AppIDs []uuid.UUID
	// OwnerID is the remote user id the device is assigned to; empty when unassigned.
	OwnerID string
}

// HasOwner reports whether the device has an owner and is therefore eligible for locks.
func (d *Device) HasOwner() bool {
	return d != nil && strings.TrimSpace(d.OwnerID) != ""
}

// HasApp reports whether appID is installed on the device.
func (d *Device) HasApp(appID uuid.UUID) bool {
	for _, id := range d.AppIDs {
		if id == appID {
			return true
		}
	}
	return false
}

// AppIDForBundle returns the local id of the app with the given bundle identifier.
func AppIDForBundle(bundleID string) uuid.UUID {
	return uuid.NewSHA1(appNamespace, []byte(strings.TrimSpace(bundleID)))
}

// AppIDForRemote returns the local id of an inventory app that has no bundle identifier.
func AppIDForRemote(remoteID int64) uuid.UUID {
	return uuid.NewSHA1(remoteAppNamespace, []byte(strconv.FormatInt(remoteID, 10)))
}

// DeviceIDForUDID returns the local id of the device with the given UDID.
func DeviceIDForUDID(udid string) uuid.UUID {
	return uuid.NewSHA1(deviceNamespace, []byte(udid))
}
