package domain

// AuthenticatedUser is the teacher account the MDM API authenticated.
type AuthenticatedUser struct {
	ID          int64  `json:"id"`
	CompanyID   int64  `json:"companyId"`
	Username    string `json:"username"`
	FirstName   string `json:"firstName"`
	LastName    string `json:"lastName"`
	DisplayName string `json:"displayName"`
}

// Session is an opaque MDM token paired with the user it was issued to.
type Session struct {
	Token string
	User  AuthenticatedUser
}

// Clone returns a copy of s, or nil when s is nil.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}
