// Package identity defines the account roles and lifecycle statuses used by
// the credential engine, together with the authorization predicates that act
// on them. Values are stable wire ordinals: they appear inside signed access
// tokens and in persisted user records, so existing constants must never be
// renumbered.
package identity

// Role identifies the access tier of an account.
//
// Role instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Role uint8

const (
	// RoleUnknown is the zero value and never a valid persisted role.
	RoleUnknown Role = 0
	// RoleCustomer is an exported constant or variable used by the credential engine.
	RoleCustomer Role = 1
	// RoleStaff is an exported constant or variable used by the credential engine.
	RoleStaff Role = 2
	// RoleAdmin is an exported constant or variable used by the credential engine.
	RoleAdmin Role = 3
)

// Status identifies the lifecycle state of an account.
//
// Status instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Status uint8

const (
	// StatusUnknown is the zero value and never a valid persisted status.
	StatusUnknown Status = 0
	// StatusActive is an exported constant or variable used by the credential engine.
	StatusActive Status = 1
	// StatusInactive is an exported constant or variable used by the credential engine.
	StatusInactive Status = 2
	// StatusSuspended is an exported constant or variable used by the credential engine.
	StatusSuspended Status = 3
)

// String returns the canonical role name embedded in token claims.
func (r Role) String() string {
	switch r {
	case RoleCustomer:
		return "Customer"
	case RoleStaff:
		return "Staff"
	case RoleAdmin:
		return "Admin"
	default:
		return "Unknown"
	}
}

// Description returns the human-readable label for the role.
func (r Role) Description() string {
	switch r {
	case RoleCustomer:
		return "Customer"
	case RoleStaff:
		return "Station Staff"
	case RoleAdmin:
		return "Administrator"
	default:
		return "Unknown Role"
	}
}

// Valid reports whether the role is one of the defined tiers.
func (r Role) Valid() bool {
	return r >= RoleCustomer && r <= RoleAdmin
}

// HasAdminAccess reports whether the role may perform administrative
// operations.
func (r Role) HasAdminAccess() bool {
	return r == RoleAdmin
}

// HasStaffAccess reports whether the role may perform staff-level
// operations. Administrators always pass staff checks.
func (r Role) HasStaffAccess() bool {
	return r == RoleStaff || r == RoleAdmin
}

// RoleFromValue maps a wire ordinal back to a Role. The second result is
// false for ordinals outside the defined range.
func RoleFromValue(v int) (Role, bool) {
	if v < int(RoleCustomer) || v > int(RoleAdmin) {
		return RoleUnknown, false
	}
	return Role(v), true
}

// RoleFromName maps a canonical role name back to a Role.
func RoleFromName(name string) (Role, bool) {
	switch name {
	case "Customer":
		return RoleCustomer, true
	case "Staff":
		return RoleStaff, true
	case "Admin":
		return RoleAdmin, true
	default:
		return RoleUnknown, false
	}
}

// String returns the canonical status name embedded in token claims.
func (s Status) String() string {
	switch s {
	case StatusActive:
		return "Active"
	case StatusInactive:
		return "Inactive"
	case StatusSuspended:
		return "Suspended"
	default:
		return "Unknown"
	}
}

// Description returns the human-readable label for the status.
func (s Status) Description() string {
	switch s {
	case StatusActive:
		return "Active"
	case StatusInactive:
		return "Inactive"
	case StatusSuspended:
		return "Suspended"
	default:
		return "Unknown Status"
	}
}

// Valid reports whether the status is one of the defined lifecycle states.
func (s Status) Valid() bool {
	return s >= StatusActive && s <= StatusSuspended
}

// CanLogin reports whether an account in this status may authenticate.
// Only active accounts may log in; inactive and suspended accounts are
// rejected before any password verification happens.
func (s Status) CanLogin() bool {
	return s == StatusActive
}

// StatusFromValue maps a wire ordinal back to a Status. The second result
// is false for ordinals outside the defined range.
func StatusFromValue(v int) (Status, bool) {
	if v < int(StatusActive) || v > int(StatusSuspended) {
		return StatusUnknown, false
	}
	return Status(v), true
}
