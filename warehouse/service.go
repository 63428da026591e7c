package warehouse

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/wareflow/authkit/api"
	"github.com/wareflow/authkit/authz"
	"github.com/wareflow/authkit/permission"
	"github.com/wareflow/authkit/session"
)

// ErrEmptyAssignment is returned by AssignRole without a username or
// capabilities.
var ErrEmptyAssignment = errors.New("role assignment needs a username and capabilities")

// SessionSource exposes the session and its permission views.
type SessionSource interface {
	Session() session.Snapshot
	GetPermissionsForWarehouse(ctx context.Context, warehouseID, username string) ([]string, error)
	GetSystemPermissions(ctx context.Context) ([]permission.SystemPermission, error)
}

// Service issues domain calls for the current session.
type Service struct {
	client *api.Client
	src    SessionSource
}

// New binds a service to client and src.
func New(client *api.Client, src SessionSource) *Service {
	return &Service{client: client, src: src}
}

// authorize gates a call. Owners and admins pass on role alone; employers
// need capability on warehouseID unless capability is empty.
func (s *Service) authorize(ctx context.Context, warehouseID, capability string) (session.Snapshot, error) {
	snap := s.src.Session()
	if d := authz.Route(snap); d != authz.Allowed {
		return snap, d.Err()
	}
	if !snap.Role.Scoped() || capability == "" {
		return snap, nil
	}
	perms, err := s.src.GetPermissionsForWarehouse(ctx, warehouseID, "")
	if err != nil {
		return snap, err
	}
	return snap, authz.Capability(snap, perms, capability).Err()
}

func unsupported(role permission.Role) error {
	return fmt.Errorf("%w: %s", api.ErrUnsupportedRole, role)
}

func rolePrefix(role permission.Role) string {
	return "/" + string(role)
}

func whID(id uint64) string {
	return strconv.FormatUint(id, 10)
}

/*
====================================
WAREHOUSES
====================================
*/

// List returns the warehouses visible to the session.
func (s *Service) List(ctx context.Context) ([]Warehouse, error) {
	snap, err := s.authorize(ctx, "", "")
	if err != nil {
		return nil, err
	}
	path := rolePrefix(snap.Role) + "/warehouse"
	var out warehouseList
	if err := s.client.Get(ctx, path, &out); err != nil {
		return nil, err
	}
	return out.Warehouses, nil
}

// Get returns one warehouse. Employers need warehouse_manage.
func (s *Service) Get(ctx context.Context, id uint64) (*Warehouse, error) {
	wid := whID(id)
	snap, err := s.authorize(ctx, wid, permission.CapWarehouseManage)
	if err != nil {
		return nil, err
	}
	path := rolePrefix(snap.Role) + "/warehouse/" + wid
	if snap.Role.Scoped() {
		path = "/employer/warehouse/global/" + wid + "/" + permission.CapWarehouseManage
	}
	var out Warehouse
	if err := s.client.Get(ctx, path, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Create adds a warehouse. Owners and admins only.
func (s *Service) Create(ctx context.Context, in WarehouseInput) error {
	snap, err := s.authorize(ctx, "", "")
	if err != nil {
		return err
	}
	if snap.Role.Scoped() {
		return unsupported(snap.Role)
	}
	return s.client.Post(ctx, rolePrefix(snap.Role)+"/warehouse", in, nil)
}

// Update replaces a warehouse's name and address. Owners and admins only.
func (s *Service) Update(ctx context.Context, id uint64, in WarehouseInput) error {
	snap, err := s.authorize(ctx, "", "")
	if err != nil {
		return err
	}
	if snap.Role.Scoped() {
		return unsupported(snap.Role)
	}
	return s.client.Put(ctx, rolePrefix(snap.Role)+"/warehouse/"+whID(id), in, nil)
}

// Delete removes a warehouse. Owners and admins only.
func (s *Service) Delete(ctx context.Context, id uint64) error {
	snap, err := s.authorize(ctx, "", "")
	if err != nil {
		return err
	}
	if snap.Role.Scoped() {
		return unsupported(snap.Role)
	}
	return s.client.Delete(ctx, rolePrefix(snap.Role)+"/warehouse/"+whID(id), nil)
}

/*
====================================
ZONES
====================================
*/

func (s *Service) zonesPath(ctx context.Context, warehouseID uint64) (string, error) {
	wid := whID(warehouseID)
	snap, err := s.authorize(ctx, wid, permission.CapZoneManage)
	if err != nil {
		return "", err
	}
	if snap.Role.Scoped() {
		return "/employer/warehouse/" + wid + "/zone/" + permission.CapZoneManage, nil
	}
	return rolePrefix(snap.Role) + "/warehouse/" + wid + "/zone", nil
}

// ListZones returns the zones of a warehouse. Employers need zone_manage.
func (s *Service) ListZones(ctx context.Context, warehouseID uint64) ([]Zone, error) {
	path, err := s.zonesPath(ctx, warehouseID)
	if err != nil {
		return nil, err
	}
	var out zoneList
	if err := s.client.Get(ctx, path, &out); err != nil {
		return nil, err
	}
	return out.Zones, nil
}

// GetZone returns one zone.
func (s *Service) GetZone(ctx context.Context, warehouseID uint64, zoneID int) (*Zone, error) {
	path, err := s.zonesPath(ctx, warehouseID)
	if err != nil {
		return nil, err
	}
	var out zoneEnvelope
	if err := s.client.Get(ctx, path+"/"+strconv.Itoa(zoneID), &out); err != nil {
		return nil, err
	}
	return &out.Zone, nil
}

// CreateZone adds a zone to a warehouse.
func (s *Service) CreateZone(ctx context.Context, warehouseID uint64, in ZoneInput) error {
	path, err := s.zonesPath(ctx, warehouseID)
	if err != nil {
		return err
	}
	return s.client.Post(ctx, path, in, nil)
}

// UpdateZone replaces a zone's name and capacity.
func (s *Service) UpdateZone(ctx context.Context, warehouseID uint64, zoneID int, in ZoneInput) error {
	path, err := s.zonesPath(ctx, warehouseID)
	if err != nil {
		return err
	}
	return s.client.Put(ctx, path+"/"+strconv.Itoa(zoneID), in, nil)
}

// DeleteZone removes a zone.
func (s *Service) DeleteZone(ctx context.Context, warehouseID uint64, zoneID int) error {
	path, err := s.zonesPath(ctx, warehouseID)
	if err != nil {
		return err
	}
	return s.client.Delete(ctx, path+"/"+strconv.Itoa(zoneID), nil)
}

/*
====================================
PRODUCTS
====================================
*/

// ListProducts returns every product stored in a warehouse. Employers need
// product_manage.
func (s *Service) ListProducts(ctx context.Context, warehouseID uint64) ([]Product, error) {
	wid := whID(warehouseID)
	snap, err := s.authorize(ctx, wid, permission.CapProductManage)
	if err != nil {
		return nil, err
	}
	path := rolePrefix(snap.Role) + "/warehouse/" + wid + "/product"
	if snap.Role.Scoped() {
		path = "/employer/warehouse/" + wid + "/product/" + permission.CapProductManage
	}
	var out []Product
	if err := s.client.Get(ctx, path, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ListZoneProducts returns the products of one zone. Owners and admins only.
func (s *Service) ListZoneProducts(ctx context.Context, warehouseID uint64, zoneID int) ([]Product, error) {
	snap, err := s.authorize(ctx, "", "")
	if err != nil {
		return nil, err
	}
	if snap.Role.Scoped() {
		return nil, unsupported(snap.Role)
	}
	path := rolePrefix(snap.Role) + "/warehouse/" + whID(warehouseID) + "/zone/" + strconv.Itoa(zoneID) + "/product"
	var out []Product
	if err := s.client.Get(ctx, path, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetProduct returns one product addressed through its zone.
func (s *Service) GetProduct(ctx context.Context, warehouseID uint64, zoneID int, productID string) (*Product, error) {
	wid := whID(warehouseID)
	snap, err := s.authorize(ctx, wid, permission.CapProductManage)
	if err != nil {
		return nil, err
	}
	pid := url.PathEscape(productID)
	zone := strconv.Itoa(zoneID)
	path := rolePrefix(snap.Role) + "/warehouse/" + wid + "/zone/" + zone + "/product/" + pid
	if snap.Role.Scoped() {
		path = "/employer/warehouse/" + wid + "/zone/" + zone + "/product/" + permission.CapProductManage + "/" + pid
	}
	var out Product
	if err := s.client.Get(ctx, path, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ProductByID returns a product without its warehouse context, as reached
// from a scanned QR code. Owners only.
func (s *Service) ProductByID(ctx context.Context, productID string) (*Product, error) {
	snap, err := s.authorize(ctx, "", "")
	if err != nil {
		return nil, err
	}
	if snap.Role != permission.RoleOwner {
		return nil, unsupported(snap.Role)
	}
	var out Product
	if err := s.client.Get(ctx, "/owner/product/"+url.PathEscape(productID), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateProduct adds a product to a warehouse. Admins address the zone
// named by in.ZoneID.
func (s *Service) CreateProduct(ctx context.Context, warehouseID uint64, in ProductInput) error {
	wid := whID(warehouseID)
	snap, err := s.authorize(ctx, wid, permission.CapProductManage)
	if err != nil {
		return err
	}
	var path string
	switch snap.Role {
	case permission.RoleEmployer:
		path = "/employer/warehouse/" + wid + "/product/" + permission.CapProductManage
	case permission.RoleAdmin:
		path = "/admin/warehouse/" + wid + "/zone/" + strconv.FormatUint(in.ZoneID, 10) + "/product"
	default:
		path = rolePrefix(snap.Role) + "/warehouse/" + wid + "/product"
	}
	return s.client.Post(ctx, path, in, nil)
}

// UpdateProduct replaces a product's fields. Owners and employers only.
func (s *Service) UpdateProduct(ctx context.Context, warehouseID uint64, productID string, in ProductInput) error {
	wid := whID(warehouseID)
	snap, err := s.authorize(ctx, wid, permission.CapProductManage)
	if err != nil {
		return err
	}
	pid := url.PathEscape(productID)
	var path string
	switch snap.Role {
	case permission.RoleEmployer:
		path = "/employer/warehouse/" + wid + "/product/" + permission.CapProductManage + "/" + pid
	case permission.RoleOwner:
		path = "/owner/warehouse/" + wid + "/product/" + pid
	default:
		return unsupported(snap.Role)
	}
	return s.client.Put(ctx, path, in, nil)
}

/*
====================================
EMPLOYEES
====================================
*/

// ListEmployers returns the users attached to a warehouse. Employers need
// role_manage.
func (s *Service) ListEmployers(ctx context.Context, warehouseID uint64) ([]Employer, error) {
	wid := whID(warehouseID)
	snap, err := s.authorize(ctx, wid, permission.CapRoleManage)
	if err != nil {
		return nil, err
	}
	var path string
	switch snap.Role {
	case permission.RoleEmployer:
		path = "/employer/warehouse/role/" + wid + "/" + permission.CapRoleManage + "/employer"
	case permission.RoleOwner:
		path = "/owner/warehouse/" + wid + "/employer"
	default:
		return nil, unsupported(snap.Role)
	}
	var out []Employer
	if err := s.client.Get(ctx, path, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// AssignRole grants capabilities on a warehouse to an employer. Names are
// resolved to backend IDs through the session role's system permissions;
// an unknown name fails with [permission.ErrCapabilityUnknown] before any
// write.
func (s *Service) AssignRole(ctx context.Context, warehouseID uint64, ra RoleAssignment) error {
	if strings.TrimSpace(ra.Username) == "" || len(ra.Capabilities) == 0 {
		return ErrEmptyAssignment
	}
	wid := whID(warehouseID)
	snap, err := s.authorize(ctx, wid, permission.CapRoleManage)
	if err != nil {
		return err
	}
	var path string
	switch snap.Role {
	case permission.RoleEmployer:
		path = "/employer/warehouse/role/" + wid + "/" + permission.CapRoleManage
	case permission.RoleOwner:
		path = "/owner/role/" + wid
	default:
		return unsupported(snap.Role)
	}

	descriptors, err := s.src.GetSystemPermissions(ctx)
	if err != nil {
		return err
	}
	catalog, err := permission.NewCatalog(descriptors)
	if err != nil {
		return err
	}
	ids, err := catalog.ResolveIDs(ra.Capabilities)
	if err != nil {
		return err
	}

	name := ra.Name
	if name == "" {
		name = ra.Username
	}
	return s.client.Post(ctx, path, roleRequest{
		Name:        name,
		Username:    ra.Username,
		Permissions: ids,
	}, nil)
}

/*
====================================
QR CODES
====================================
*/

const qrStoragePrefix = "./qr_storage/"

// QRImageURL returns the public URL of p's QR image, or "" when p has none.
// Images are served from the backend origin, outside the API base path.
func (s *Service) QRImageURL(p Product) string {
	file := strings.TrimPrefix(p.QRPath, qrStoragePrefix)
	file = strings.TrimLeft(file, "/")
	if file == "" {
		return ""
	}
	u, err := url.Parse(s.client.BaseURL())
	if err != nil {
		return ""
	}
	u.Path = "/qr_storage/" + file
	u.RawQuery = ""
	u.Fragment = ""
	return u.String()
}

// ProductIDFromScan extracts a product UUID from scanned QR text. The
// payload may be the bare UUID or a URL whose last path segment is one.
func ProductIDFromScan(payload string) (uuid.UUID, error) {
	payload = strings.TrimSpace(payload)
	if u, err := url.Parse(payload); err == nil && u.Scheme != "" {
		payload = strings.TrimRight(u.Path, "/")
		if i := strings.LastIndex(payload, "/"); i >= 0 {
			payload = payload[i+1:]
		}
	}
	id, err := uuid.Parse(payload)
	if err != nil {
		return uuid.Nil, fmt.Errorf("scan is not a product id: %w", err)
	}
	return id, nil
}
