package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/wareflow/authkit/permission"
)

// Registration is the sign-up payload.
type Registration struct {
	PhoneNumber string `json:"phone_number"`
	Username    string `json:"username"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	Surname     string `json:"surname"`
	Email       string `json:"email"`
	Password    string `json:"password"`
	Role        string `json:"role"`
}

type tokenResponse struct {
	AccessToken string `json:"accessToken"`
}

type messageResponse struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}

// SignInEmail exchanges email and password for an access credential. The
// refresh cookie set by the backend lands in the client's jar.
func (c *Client) SignInEmail(ctx context.Context, email, password string) (string, error) {
	var out tokenResponse
	err := c.Post(ctx, "/auth/sign-in-email", map[string]string{
		"email":    email,
		"password": password,
	}, &out)
	return credentialOrErr(out, err)
}

// SignInPhone exchanges phone number and password for an access credential.
func (c *Client) SignInPhone(ctx context.Context, phone, password string) (string, error) {
	var out tokenResponse
	err := c.Post(ctx, "/auth/sign-in-phone", map[string]string{
		"phone_number": phone,
		"password":     password,
	}, &out)
	return credentialOrErr(out, err)
}

// Register creates an account. The backend answers duplicates with 200 and
// an error field, reported here as [ErrAlreadyRegistered].
func (c *Client) Register(ctx context.Context, reg Registration) error {
	var out messageResponse
	if err := c.Post(ctx, "/auth/sign-up", reg, &out); err != nil {
		return err
	}
	if out.Error != "" {
		return fmt.Errorf("%w: %s", ErrAlreadyRegistered, out.Error)
	}
	return nil
}

// RefreshToken exchanges the refresh cookie for a new access credential.
func (c *Client) RefreshToken(ctx context.Context) (string, error) {
	var out tokenResponse
	err := c.Get(ctx, "/auth/refresh", &out)
	return credentialOrErr(out, err)
}

// ExchangeRefresh lets the client serve as a refresh exchanger.
func (c *Client) ExchangeRefresh(ctx context.Context) (string, error) {
	return c.RefreshToken(ctx)
}

// Logout notifies the backend. It never enters 401 recovery.
func (c *Client) Logout(ctx context.Context) error {
	return c.Get(ctx, "/logout", nil, NoRefresh())
}

// WarehousePermissionsPath returns the self-permission route for role.
func WarehousePermissionsPath(role permission.Role, warehouseID string) (string, error) {
	wid := url.PathEscape(strings.TrimSpace(warehouseID))
	switch role {
	case permission.RoleEmployer:
		return "/employer/permission/" + wid + "/" + permission.CapGetMyPermissions, nil
	case permission.RoleOwner:
		return "/owner/role/permission/" + wid, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedRole, role)
	}
}

// FetchWarehousePermissions loads the capability names granted to username
// on warehouseID.
func (c *Client) FetchWarehousePermissions(ctx context.Context, role permission.Role, warehouseID, username string) ([]string, error) {
	path, err := WarehousePermissionsPath(role, warehouseID)
	if err != nil {
		return nil, err
	}
	var out struct {
		Permissions capabilityList `json:"permissions"`
	}
	if err := c.Post(ctx, path, map[string]string{"username": username}, &out); err != nil {
		return nil, err
	}
	return []string(out.Permissions), nil
}

// FetchSystemPermissions loads the capability descriptors for role.
func (c *Client) FetchSystemPermissions(ctx context.Context, role permission.Role) ([]permission.SystemPermission, error) {
	if !role.Valid() {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedRole, role)
	}
	var out []permission.SystemPermission
	if err := c.Get(ctx, "/"+string(role)+"/permission", &out); err != nil {
		return nil, err
	}
	return out, nil
}

func credentialOrErr(out tokenResponse, err error) (string, error) {
	if err != nil {
		return "", err
	}
	token := strings.TrimSpace(out.AccessToken)
	if token == "" {
		return "", ErrEmptyCredential
	}
	return token, nil
}

// capabilityList accepts capability entries as plain names or as
// {"id","name"} descriptors.
type capabilityList []string

func (l *capabilityList) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*l = nil
		return nil
	}
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		var name string
		if err := json.Unmarshal(item, &name); err == nil {
			out = append(out, name)
			continue
		}
		var desc permission.SystemPermission
		if err := json.Unmarshal(item, &desc); err != nil {
			return fmt.Errorf("capability entry: %w", err)
		}
		out = append(out, desc.Name)
	}
	*l = out
	return nil
}
