package models

// Role is the account role assigned at registration.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleDriver  Role = "driver"
	RoleCarrier Role = "carrier"
	RoleShipper Role = "shipper"
)

// Valid reports whether the role is a known enum value.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleDriver, RoleCarrier, RoleShipper:
		return true
	}
	return false
}
