package session

import "github.com/wareflow/authkit/permission"

// Status is the lifecycle position of a [State].
type Status uint8

const (
	// Uninitialized is the state before Init has started.
	Uninitialized Status = iota
	// Resolving means the durable store or refresh is being consulted.
	Resolving
	// Authenticated means a valid identity is present.
	Authenticated
	// Anonymous means resolution finished without an identity.
	Anonymous
)

func (s Status) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Resolving:
		return "resolving"
	case Authenticated:
		return "authenticated"
	case Anonymous:
		return "anonymous"
	default:
		return "unknown"
	}
}

// Identity is the role and username carried by a valid credential.
type Identity struct {
	Role     permission.Role
	Username string
}

// Snapshot is a read-only copy of the session handed to consumers.
//
// When IsAuthenticated is false, Role is [permission.RoleNone] and Username
// is empty. IsLoading is true until resolution finishes.
type Snapshot struct {
	State           Status
	IsAuthenticated bool
	Role            permission.Role
	Username        string
	IsLoading       bool
}

// Identity returns the identity in s, or the zero value when anonymous.
func (s Snapshot) Identity() Identity {
	return Identity{Role: s.Role, Username: s.Username}
}
