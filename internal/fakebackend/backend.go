package fakebackend

import (
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wareflow/authkit/jwt"
	"github.com/wareflow/authkit/permission"
	"github.com/wareflow/authkit/warehouse"
)

// BasePath is the API prefix served by the backend.
const BasePath = "/api/v1"

// RefreshCookie is the name of the refresh artifact cookie.
const RefreshCookie = "refresh-token"

// Account is a user known to the backend.
type Account struct {
	Username  string
	Email     string
	Phone     string
	Password  string
	Role      permission.Role
	FirstName string
	LastName  string
	Surname   string
}

// Options configures a Backend.
type Options struct {
	// TTL of issued access credentials. Defaults to 15 minutes.
	TTL    time.Duration
	Secret []byte
	Now    func() time.Time
	Logger *zap.Logger
}

type grantKey struct {
	warehouseID uint64
	username    string
}

type warehouseRecord struct {
	info      warehouse.Warehouse
	owner     string
	zones     map[int]*warehouse.Zone
	nextZone  int
	products  map[string]*warehouse.Product
	employers map[string]struct{}
}

// Backend serves the WareFlow API from memory.
type Backend struct {
	issuer *jwt.Issuer
	now    func() time.Time
	log    *zap.Logger

	mu         sync.Mutex
	accounts   map[string]*Account
	access     map[string]string
	refresh    map[string]string
	grants     map[grantKey][]string
	system     map[permission.Role][]permission.SystemPermission
	warehouses map[uint64]*warehouseRecord
	nextWH     uint64
	hits       map[string]int

	failRefresh     bool
	failLogout      bool
	failPermissions int
	refreshGate     chan struct{}
}

// New creates an empty backend with the default system permissions.
func New(opts Options) (*Backend, error) {
	if opts.TTL <= 0 {
		opts.TTL = 15 * time.Minute
	}
	if len(opts.Secret) == 0 {
		opts.Secret = []byte("wareflow-fake-backend-secret")
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	issuer, err := jwt.NewIssuer(jwt.IssuerConfig{
		TTL:           opts.TTL,
		SigningMethod: jwt.MethodHS256,
		PrivateKey:    opts.Secret,
		Issuer:        "wareflow-fake",
		Now:           opts.Now,
	})
	if err != nil {
		return nil, err
	}

	return &Backend{
		issuer:     issuer,
		now:        opts.Now,
		log:        opts.Logger,
		accounts:   make(map[string]*Account),
		access:     make(map[string]string),
		refresh:    make(map[string]string),
		grants:     make(map[grantKey][]string),
		system:     DefaultSystemPermissions(),
		warehouses: make(map[uint64]*warehouseRecord),
		hits:       make(map[string]int),
	}, nil
}

// DefaultSystemPermissions returns the capability descriptors the backend
// publishes for owners and employers.
func DefaultSystemPermissions() map[permission.Role][]permission.SystemPermission {
	perms := []permission.SystemPermission{
		{ID: 1, Name: permission.CapWarehouseManage},
		{ID: 2, Name: permission.CapZoneManage},
		{ID: 3, Name: permission.CapProductManage},
		{ID: 4, Name: permission.CapRoleManage},
		{ID: 5, Name: permission.CapGetMyPermissions},
	}
	return map[permission.Role][]permission.SystemPermission{
		permission.RoleOwner:    perms,
		permission.RoleEmployer: perms,
		permission.RoleAdmin:    perms,
	}
}

/*
====================================
SEEDING
====================================
*/

// AddAccount registers a user. An existing username is replaced.
func (b *Backend) AddAccount(a Account) {
	b.mu.Lock()
	defer b.mu.Unlock()
	cp := a
	b.accounts[a.Username] = &cp
}

// AddWarehouse creates a warehouse owned by owner and returns its ID.
func (b *Backend) AddWarehouse(owner, name, address string) uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.addWarehouseLocked(owner, name, address)
}

func (b *Backend) addWarehouseLocked(owner, name, address string) uint64 {
	b.nextWH++
	id := b.nextWH
	b.warehouses[id] = &warehouseRecord{
		info:      warehouse.Warehouse{ID: id, Name: name, Address: address},
		owner:     owner,
		zones:     make(map[int]*warehouse.Zone),
		products:  make(map[string]*warehouse.Product),
		employers: make(map[string]struct{}),
	}
	return id
}

// AddZone creates a zone and returns its ID.
func (b *Backend) AddZone(warehouseID uint64, name string, capacity int) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	wh, ok := b.warehouses[warehouseID]
	if !ok {
		return 0, errors.New("unknown warehouse")
	}
	return wh.addZone(name, capacity), nil
}

func (w *warehouseRecord) addZone(name string, capacity int) int {
	w.nextZone++
	w.zones[w.nextZone] = &warehouse.Zone{ID: w.nextZone, Name: name, Capacity: capacity}
	return w.nextZone
}

// AddProduct stores a product and returns its UUID.
func (b *Backend) AddProduct(warehouseID uint64, in warehouse.ProductInput) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	wh, ok := b.warehouses[warehouseID]
	if !ok {
		return "", errors.New("unknown warehouse")
	}
	return wh.addProduct(in), nil
}

func (w *warehouseRecord) addProduct(in warehouse.ProductInput) string {
	id := uuid.NewString()
	w.products[id] = &warehouse.Product{
		UUID:        id,
		Title:       in.Title,
		Count:       in.Count,
		Description: in.Description,
		ZoneID:      in.ZoneID,
		QRPath:      "./qr_storage/" + id + ".png",
	}
	return id
}

// Grant gives username the named capabilities on a warehouse and attaches
// them as an employee.
func (b *Backend) Grant(warehouseID uint64, username string, caps ...string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.grantLocked(warehouseID, username, caps)
}

func (b *Backend) grantLocked(warehouseID uint64, username string, caps []string) {
	k := grantKey{warehouseID: warehouseID, username: username}
	b.grants[k] = append(b.grants[k], caps...)
	if wh, ok := b.warehouses[warehouseID]; ok {
		wh.employers[username] = struct{}{}
	}
}

// SetSystemPermissions replaces the descriptors published for role.
func (b *Backend) SetSystemPermissions(role permission.Role, perms []permission.SystemPermission) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.system[role] = append([]permission.SystemPermission(nil), perms...)
}

/*
====================================
CREDENTIALS
====================================
*/

// IssueAccess mints an access credential the backend accepts.
func (b *Backend) IssueAccess(username string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.issueAccessLocked(username)
}

func (b *Backend) issueAccessLocked(username string) (string, error) {
	acct, ok := b.accounts[username]
	if !ok {
		return "", errors.New("unknown account")
	}
	tok, err := b.issuer.Issue(acct.Role, acct.Username)
	if err != nil {
		return "", err
	}
	b.access[tok] = username
	return tok, nil
}

// IssueExpired mints a credential for username that expired a minute ago.
func (b *Backend) IssueExpired(username string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	acct, ok := b.accounts[username]
	if !ok {
		return "", errors.New("unknown account")
	}
	return b.issuer.IssueWithExpiry(acct.Role, acct.Username, b.now().Add(-time.Minute))
}

// RefreshCookieFor mints a refresh cookie for username, as if it had
// signed in earlier.
func (b *Backend) RefreshCookieFor(username string) *http.Cookie {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.newRefreshLocked(username)
}

func (b *Backend) newRefreshLocked(username string) *http.Cookie {
	value := uuid.NewString()
	b.refresh[value] = username
	return &http.Cookie{
		Name:     RefreshCookie,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		MaxAge:   int((24 * time.Hour).Seconds()),
	}
}

// RevokeAccess invalidates every access credential issued so far; protected
// routes answer 401 until the client refreshes.
func (b *Backend) RevokeAccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.access = make(map[string]string)
}

/*
====================================
FAULTS AND COUNTERS
====================================
*/

// FailRefresh makes the refresh route answer 401.
func (b *Backend) FailRefresh(fail bool) {
	b.mu.Lock()
	b.failRefresh = fail
	b.mu.Unlock()
}

// FailLogout makes the logout route answer 500.
func (b *Backend) FailLogout(fail bool) {
	b.mu.Lock()
	b.failLogout = fail
	b.mu.Unlock()
}

// FailPermissions makes the next n permission fetches answer 500.
func (b *Backend) FailPermissions(n int) {
	b.mu.Lock()
	b.failPermissions = n
	b.mu.Unlock()
}

// HoldRefresh blocks refresh requests until the returned release function
// is called.
func (b *Backend) HoldRefresh() (release func()) {
	gate := make(chan struct{})
	b.mu.Lock()
	b.refreshGate = gate
	b.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			if b.refreshGate == gate {
				b.refreshGate = nil
			}
			b.mu.Unlock()
			close(gate)
		})
	}
}

// Hits returns how many requests matched route, e.g. "GET /auth/refresh".
// Routes are written without the base path and with IDs as in the request.
func (b *Backend) Hits(route string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.hits[route]
}

func (b *Backend) record(method, path string) {
	route := method + " " + strings.TrimPrefix(path, BasePath)
	b.mu.Lock()
	b.hits[route]++
	b.mu.Unlock()
}
