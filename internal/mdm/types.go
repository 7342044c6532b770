package mdm

import "time"

// APIError is the structured error body returned with 4xx/5xx responses.
type APIError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// MessageResponse is the generic {code, message} body of mutating calls and token validation.
type MessageResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// App is one entry of the remote app inventory.
type App struct {
	ID          int64  `json:"id"`
	BundleID    string `json:"bundleId"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Icon        string `json:"icon"`
	Version     string `json:"version"`
	Platform    string `json:"platform"`
}

// AppsResponse is the body of GET /apps.
type AppsResponse struct {
	Code int   `json:"code"`
	Apps []App `json:"apps"`
}

// DeviceOwner is the remote user a device is assigned to.
type DeviceOwner struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// DeviceApp is an app installed on a device.
type DeviceApp struct {
	Identifier string `json:"identifier"`
	Name       string `json:"name"`
	Version    string `json:"version"`
}

// Device is one entry of the remote device listing.
type Device struct {
	UDID         string       `json:"UDID"`
	Name         string       `json:"name"`
	SerialNumber string       `json:"serialNumber"`
	Model        string       `json:"model"`
	Owner        *DeviceOwner `json:"owner"`
	Apps         []DeviceApp  `json:"apps"`
}

// DevicesResponse is the body of GET /devices.
type DevicesResponse struct {
	Code    int      `json:"code"`
	Devices []Device `json:"devices"`
}

// ClassMember is a student or teacher entry of a class.
type ClassMember struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Class is one class of the roster.
type Class struct {
	UUID        string        `json:"uuid"`
	Name        string        `json:"name"`
	Description string        `json:"description"`
	Students    []ClassMember `json:"students"`
	Teachers    []ClassMember `json:"teachers"`
}

// ClassesResponse is the body of GET /classes.
type ClassesResponse struct {
	Code    int     `json:"code"`
	Classes []Class `json:"classes"`
}

// TeacherGroup is a user group visible to the teacher.
type TeacherGroup struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Members     int    `json:"members"`
}

// TeacherGroupsResponse is the body of GET /users/groups.
type TeacherGroupsResponse struct {
	Code   int            `json:"code"`
	Groups []TeacherGroup `json:"groups"`
}

// AuthenticatedAs is the user record returned with a teacher token.
type AuthenticatedAs struct {
	ID        int64  `json:"id"`
	CompanyID int64  `json:"companyId"`
	Username  string `json:"username"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Name      string `json:"name"`
}

// AuthenticateRequest is the JSON body of POST /teacher/authenticate.
type AuthenticateRequest struct {
	Company  string `json:"company"`
	Username string `json:"username"`
	Password string `json:"password"`
}

// AuthenticateResponse is the body of POST /teacher/authenticate.
type AuthenticateResponse struct {
	Code            int             `json:"code"`
	Token           string          `json:"token"`
	AuthenticatedAs AuthenticatedAs `json:"authenticatedAs"`
}

// AppLockRequest holds the parameters of POST /apps/applock.
type AppLockRequest struct {
	// BundleID is the whitelisted app.
	BundleID string
	// ClearAfter is rounded down to whole seconds on the wire.
	ClearAfter time.Duration
	// StudentIDs are joined with commas on the wire.
	StudentIDs []string
}
