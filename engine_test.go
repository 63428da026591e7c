package authkit

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/wareflow/authkit/api"
	"github.com/wareflow/authkit/authz"
	"github.com/wareflow/authkit/internal/fakebackend"
	"github.com/wareflow/authkit/permission"
)

const (
	routeRefresh = "GET /auth/refresh"
	routeLogout  = "GET /logout"
)

func selfPermRoute(wid uint64) string {
	return "POST /employer/permission/" + strconv.FormatUint(wid, 10) + "/get_my_permissions"
}

func TestSessionLoadingBeforeInit(t *testing.T) {
	fx := newEngineFixture(t)

	snap := fx.engine.Session()
	if !snap.IsLoading {
		t.Fatalf("expected loading before init")
	}
	if d := authz.Route(snap); d != authz.Pending {
		t.Fatalf("expected pending route decision, got %s", d)
	}
}

func TestInitWithoutCredentialEndsAnonymous(t *testing.T) {
	fx := newEngineFixture(t)

	snap, err := fx.engine.Init(context.Background())
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	if snap.IsLoading || snap.IsAuthenticated || snap.Role != permission.RoleNone {
		t.Fatalf("expected anonymous, got %+v", snap)
	}
	if got := fx.backend.Hits(routeRefresh); got != 1 {
		t.Fatalf("expected one refresh attempt, got %d", got)
	}
}

func TestInitUsesValidStoredCredential(t *testing.T) {
	fx := newEngineFixture(t, withStoredCredential(func(b *fakebackend.Backend) (string, error) {
		return b.IssueAccess("boss")
	}))

	snap, err := fx.engine.Init(context.Background())
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	if !snap.IsAuthenticated || snap.Role != permission.RoleOwner || snap.Username != "boss" {
		t.Fatalf("unexpected session %+v", snap)
	}
	if got := fx.backend.Hits(routeRefresh); got != 0 {
		t.Fatalf("valid credential must not refresh, got %d", got)
	}
}

func TestConcurrentInitSharesOneRefresh(t *testing.T) {
	fx := newEngineFixture(t, withRefreshCookie("clerk"))
	release := fx.backend.HoldRefresh()
	defer release()

	const callers = 8
	var wg sync.WaitGroup
	results := make([]Snapshot, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = fx.engine.Init(context.Background())
		}(i)
	}

	waitFor(t, "refresh request", func() bool { return fx.backend.Hits(routeRefresh) == 1 })
	if !fx.engine.Session().IsLoading {
		t.Fatalf("session must stay loading while refresh is held")
	}
	release()
	wg.Wait()

	for i := 0; i < callers; i++ {
		if errs[i] != nil {
			t.Fatalf("caller %d: %v", i, errs[i])
		}
		if !results[i].IsAuthenticated || results[i].Role != permission.RoleEmployer {
			t.Fatalf("caller %d got %+v", i, results[i])
		}
	}
	if got := fx.backend.Hits(routeRefresh); got != 1 {
		t.Fatalf("expected exactly one refresh, got %d", got)
	}
	if got := fx.engine.RefreshAttempts(); got != 1 {
		t.Fatalf("expected one gateway attempt, got %d", got)
	}
}

func TestInitCallerCancellationDoesNotStopResolution(t *testing.T) {
	fx := newEngineFixture(t, withRefreshCookie("boss"))
	release := fx.backend.HoldRefresh()
	defer release()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	snap, err := fx.engine.Init(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if !snap.IsLoading {
		t.Fatalf("expected loading snapshot on early return")
	}

	waitFor(t, "refresh request", func() bool { return fx.backend.Hits(routeRefresh) == 1 })
	release()

	snap, err = fx.engine.Init(context.Background())
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	if !snap.IsAuthenticated || snap.Username != "boss" {
		t.Fatalf("expected resolution to finish authenticated, got %+v", snap)
	}
}

func TestExpiredStoredCredentialRefreshesOnce(t *testing.T) {
	var expired string
	fx := newEngineFixture(t,
		withStoredCredential(func(b *fakebackend.Backend) (string, error) {
			tok, err := b.IssueExpired("clerk")
			expired = tok
			return tok, err
		}),
		withRefreshCookie("clerk"),
	)

	snap, err := fx.engine.Init(context.Background())
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	if !snap.IsAuthenticated || snap.Role != permission.RoleEmployer || snap.Username != "clerk" {
		t.Fatalf("expected refreshed employer session, got %+v", snap)
	}
	if got := fx.backend.Hits(routeRefresh); got != 1 {
		t.Fatalf("expected one refresh, got %d", got)
	}
	if stored := fx.storedCredential(t); stored == "" || stored == expired {
		t.Fatalf("expected refreshed credential in store")
	}
}

func TestExpiredStoredCredentialWithFailedRefreshEndsAnonymous(t *testing.T) {
	fx := newEngineFixture(t, withStoredCredential(func(b *fakebackend.Backend) (string, error) {
		return b.IssueExpired("boss")
	}))

	snap, err := fx.engine.Init(context.Background())
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	if snap.IsAuthenticated {
		t.Fatalf("expected anonymous, got %+v", snap)
	}
	if stored := fx.storedCredential(t); stored != "" {
		t.Fatalf("expected store cleared after failed refresh")
	}
}

func TestLoginRejectedLeavesStateUntouched(t *testing.T) {
	fx := newEngineFixture(t)
	ctx := context.Background()

	err := fx.engine.LoginWithEmail(ctx, "boss@example.com", "wrong")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if snap := fx.engine.Session(); snap.IsAuthenticated || snap.IsLoading {
		t.Fatalf("expected anonymous after rejected login, got %+v", snap)
	}
	if fx.storedCredential(t) != "" {
		t.Fatalf("store must stay empty")
	}

	fx.login(t, "boss@example.com")
	before := fx.storedCredential(t)

	err = fx.engine.LoginWithPhone(ctx, "+15550101", "wrong")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if snap := fx.engine.Session(); snap.Username != "boss" {
		t.Fatalf("previous session must survive a rejected login, got %+v", snap)
	}
	if fx.storedCredential(t) != before {
		t.Fatalf("previous credential must survive a rejected login")
	}
}

func TestLoginWithPhoneInstallsIdentity(t *testing.T) {
	fx := newEngineFixture(t)

	if err := fx.engine.LoginWithPhone(context.Background(), "+15550101", fakePassword); err != nil {
		t.Fatalf("login: %v", err)
	}
	snap := fx.engine.Session()
	if !snap.IsAuthenticated || snap.Role != permission.RoleEmployer || snap.Username != "clerk" {
		t.Fatalf("unexpected session %+v", snap)
	}
	if fx.storedCredential(t) == "" {
		t.Fatalf("expected credential persisted")
	}
}

func TestLoginSwitchDropsPermissionCache(t *testing.T) {
	fx := newEngineFixture(t)
	ctx := context.Background()
	wid := strconv.FormatUint(fx.whID, 10)

	fx.login(t, "clerk@example.com")
	if _, err := fx.engine.GetPermissionsForWarehouse(ctx, wid, ""); err != nil {
		t.Fatalf("permissions: %v", err)
	}
	if !fx.engine.PermissionsLoaded(wid) {
		t.Fatalf("expected cached permissions")
	}

	fx.login(t, "boss@example.com")
	if fx.engine.PermissionsLoaded(wid) {
		t.Fatalf("identity change must drop cached permissions")
	}
}

func TestLogoutClearsEverythingWhenBackendFails(t *testing.T) {
	fx := newEngineFixture(t)
	ctx := context.Background()
	wid := strconv.FormatUint(fx.whID, 10)

	fx.login(t, "clerk@example.com")
	if _, err := fx.engine.GetPermissionsForWarehouse(ctx, wid, ""); err != nil {
		t.Fatalf("permissions: %v", err)
	}

	fx.backend.FailLogout(true)
	if err := fx.engine.Logout(ctx); err != nil {
		t.Fatalf("logout: %v", err)
	}

	snap := fx.engine.Session()
	if snap.IsAuthenticated || snap.Role != permission.RoleNone || snap.Username != "" {
		t.Fatalf("expected anonymous after logout, got %+v", snap)
	}
	if fx.storedCredential(t) != "" {
		t.Fatalf("expected store cleared")
	}
	if fx.engine.PermissionsLoaded(wid) {
		t.Fatalf("expected permission cache cleared")
	}
	if got := fx.backend.Hits(routeLogout); got != 1 {
		t.Fatalf("expected one logout notification, got %d", got)
	}
	if got := fx.engine.MetricsSnapshot().Counters[MetricLogoutNotifyFailure]; got != 1 {
		t.Fatalf("expected logout notify failure counted, got %d", got)
	}

	// The refresh cookie went with the session.
	refreshes := fx.backend.Hits(routeRefresh)
	if _, err := fx.engine.Refresh(ctx); !errors.Is(err, ErrRefreshFailed) {
		t.Fatalf("expected refresh failure after logout, got %v", err)
	}
	if got := fx.backend.Hits(routeRefresh); got != refreshes+1 {
		t.Fatalf("expected one more refresh hit, got %d", got)
	}
	if fx.engine.Session().IsAuthenticated {
		t.Fatalf("refresh after logout must not authenticate")
	}
}

func TestLogoutWhileAnonymousIsHarmless(t *testing.T) {
	fx := newEngineFixture(t)

	if err := fx.engine.Logout(context.Background()); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if snap := fx.engine.Session(); snap.IsAuthenticated || snap.IsLoading {
		t.Fatalf("expected anonymous, got %+v", snap)
	}
}

func TestPermissionsFetchedOncePerWarehouse(t *testing.T) {
	fx := newEngineFixture(t)
	ctx := context.Background()
	fx.login(t, "clerk@example.com")
	wid := strconv.FormatUint(fx.whID, 10)

	const callers = 6
	var wg sync.WaitGroup
	errs := make([]error, callers)
	sets := make([][]string, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sets[i], errs[i] = fx.engine.GetPermissionsForWarehouse(ctx, wid, "")
		}(i)
	}
	wg.Wait()

	for i := 0; i < callers; i++ {
		if errs[i] != nil {
			t.Fatalf("caller %d: %v", i, errs[i])
		}
		if !permission.Contains(sets[i], permission.CapZoneManage) {
			t.Fatalf("caller %d missing zone_manage: %v", i, sets[i])
		}
	}
	if _, err := fx.engine.GetPermissionsForWarehouse(ctx, wid, ""); err != nil {
		t.Fatalf("cached read: %v", err)
	}
	if got := fx.backend.Hits(selfPermRoute(fx.whID)); got != 1 {
		t.Fatalf("expected one fetch for warehouse, got %d", got)
	}

	other := strconv.FormatUint(fx.otherWH, 10)
	perms, err := fx.engine.GetPermissionsForWarehouse(ctx, other, "")
	if err != nil {
		t.Fatalf("other warehouse: %v", err)
	}
	if !permission.Contains(perms, permission.CapProductManage) || permission.Contains(perms, permission.CapZoneManage) {
		t.Fatalf("unexpected capabilities for second warehouse: %v", perms)
	}
	if got := fx.backend.Hits(selfPermRoute(fx.otherWH)); got != 1 {
		t.Fatalf("expected one fetch for second warehouse, got %d", got)
	}
	if got := fx.engine.Permissions(wid); !permission.Contains(got, permission.CapZoneManage) {
		t.Fatalf("expected cached view, got %v", got)
	}
}

func TestPermissionFailureNotCached(t *testing.T) {
	fx := newEngineFixture(t)
	ctx := context.Background()
	fx.login(t, "clerk@example.com")
	wid := strconv.FormatUint(fx.whID, 10)

	fx.backend.FailPermissions(1)
	if _, err := fx.engine.GetPermissionsForWarehouse(ctx, wid, ""); !errors.Is(err, ErrPermissionFetch) {
		t.Fatalf("expected ErrPermissionFetch, got %v", err)
	}
	if fx.engine.PermissionsLoaded(wid) {
		t.Fatalf("failed fetch must not be cached")
	}

	perms, err := fx.engine.GetPermissionsForWarehouse(ctx, wid, "")
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if !permission.Contains(perms, permission.CapZoneManage) {
		t.Fatalf("unexpected permissions %v", perms)
	}
	if got := fx.backend.Hits(selfPermRoute(fx.whID)); got != 2 {
		t.Fatalf("expected two fetches, got %d", got)
	}
}

func TestPermissionsRequireSession(t *testing.T) {
	fx := newEngineFixture(t)

	if _, err := fx.engine.GetPermissionsForWarehouse(context.Background(), "1", ""); !errors.Is(err, ErrNotAuthenticated) {
		t.Fatalf("expected ErrNotAuthenticated, got %v", err)
	}
}

func TestOwnerAuthorizedWithoutFetch(t *testing.T) {
	fx := newEngineFixture(t)
	ctx := context.Background()
	fx.login(t, "boss@example.com")
	wid := strconv.FormatUint(fx.whID, 10)

	perms, err := fx.engine.GetPermissionsForWarehouse(ctx, wid, "")
	if err != nil {
		t.Fatalf("permissions: %v", err)
	}
	if len(perms) != 0 {
		t.Fatalf("owners carry no scoped grants, got %v", perms)
	}
	if d := fx.engine.Authorize(ctx, wid, permission.CapRoleManage); d != authz.Allowed {
		t.Fatalf("owner must be allowed, got %s", d)
	}
	if got := fx.backend.Hits("POST /owner/role/permission/" + wid); got != 0 {
		t.Fatalf("owner authorization must not fetch, got %d", got)
	}
}

func TestAuthorizeEmployerByGrant(t *testing.T) {
	fx := newEngineFixture(t)
	ctx := context.Background()
	fx.login(t, "clerk@example.com")
	wid := strconv.FormatUint(fx.whID, 10)

	if d := fx.engine.Authorize(ctx, wid, permission.CapZoneManage); d != authz.Allowed {
		t.Fatalf("expected zone_manage allowed, got %s", d)
	}
	if d := fx.engine.Authorize(ctx, wid, permission.CapRoleManage); d != authz.Denied {
		t.Fatalf("expected role_manage denied, got %s", d)
	}
}

func TestUnauthorizedRecoveredWithOneRefresh(t *testing.T) {
	fx := newEngineFixture(t)
	ctx := context.Background()
	fx.login(t, "boss@example.com")
	before := fx.storedCredential(t)
	refreshes := fx.backend.Hits(routeRefresh)

	fx.backend.RevokeAccess()
	list, err := fx.engine.Warehouses().List(ctx)
	if err != nil {
		t.Fatalf("list after revoke: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected two warehouses, got %d", len(list))
	}
	if got := fx.backend.Hits(routeRefresh); got != refreshes+1 {
		t.Fatalf("expected one refresh, got %d", got-refreshes)
	}
	if got := fx.backend.Hits("GET /owner/warehouse"); got != 2 {
		t.Fatalf("expected original and one retry, got %d", got)
	}
	if after := fx.storedCredential(t); after == "" || after == before {
		t.Fatalf("expected rotated credential in store")
	}
	if !fx.engine.Session().IsAuthenticated {
		t.Fatalf("session must survive recovery")
	}

	snap := fx.engine.MetricsSnapshot()
	if snap.Counters[MetricUnauthorized] != 1 || snap.Counters[MetricRetrySuccess] != 1 {
		t.Fatalf("unexpected recovery counters: %+v", snap.Counters)
	}
}

func TestUnauthorizedWithFailedRefreshSignsOut(t *testing.T) {
	fx := newEngineFixture(t)
	ctx := context.Background()
	fx.login(t, "boss@example.com")

	fx.backend.RevokeAccess()
	fx.backend.FailRefresh(true)

	_, err := fx.engine.Warehouses().List(ctx)
	if !api.IsStatus(err, http.StatusUnauthorized) {
		t.Fatalf("expected the original 401, got %v", err)
	}
	if got := fx.backend.Hits("GET /owner/warehouse"); got != 1 {
		t.Fatalf("request must not be retried without a new credential, got %d", got)
	}
	if fx.engine.Session().IsAuthenticated {
		t.Fatalf("failed refresh must sign the session out")
	}
	if fx.storedCredential(t) != "" {
		t.Fatalf("failed refresh must clear the store")
	}
}

func TestConcurrentUnauthorizedShareRefresh(t *testing.T) {
	fx := newEngineFixture(t)
	ctx := context.Background()
	fx.login(t, "boss@example.com")
	refreshes := fx.backend.Hits(routeRefresh)

	fx.backend.RevokeAccess()
	release := fx.backend.HoldRefresh()

	const callers = 4
	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = fx.engine.Warehouses().List(ctx)
		}(i)
	}

	waitFor(t, "all callers rejected", func() bool { return fx.backend.Hits("GET /owner/warehouse") == callers })
	// Late 401s join the held flight; give them a moment to arrive.
	time.Sleep(50 * time.Millisecond)
	release()
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("caller %d: %v", i, err)
		}
	}
	if got := fx.backend.Hits(routeRefresh) - refreshes; got != 1 {
		t.Fatalf("expected one shared refresh, got %d", got)
	}
}

func TestRegisterAndDuplicate(t *testing.T) {
	fx := newEngineFixture(t)
	ctx := context.Background()
	reg := Registration{
		Username:    "newbie",
		Email:       "newbie@example.com",
		PhoneNumber: "+15550199",
		Password:    fakePassword,
		Role:        "employer",
	}

	if err := fx.engine.Register(ctx, reg); err != nil {
		t.Fatalf("register: %v", err)
	}
	if fx.engine.Session().IsAuthenticated {
		t.Fatalf("register must not sign in")
	}
	if err := fx.engine.Register(ctx, reg); !errors.Is(err, ErrAlreadyRegistered) {
		t.Fatalf("expected ErrAlreadyRegistered, got %v", err)
	}
	if err := fx.engine.LoginWithEmail(ctx, reg.Email, reg.Password); err != nil {
		t.Fatalf("login as new user: %v", err)
	}
}

func TestNilEngineNotReady(t *testing.T) {
	var e *Engine

	if _, err := e.Init(context.Background()); !errors.Is(err, ErrNotReady) {
		t.Fatalf("expected ErrNotReady, got %v", err)
	}
	if !e.Session().IsLoading {
		t.Fatalf("nil engine session must report loading")
	}
	if e.AuditDropped() != 0 {
		t.Fatalf("nil engine has no audit")
	}
}
