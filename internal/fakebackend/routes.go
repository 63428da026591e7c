package fakebackend

import (
	"encoding/json"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/wareflow/authkit/permission"
	"github.com/wareflow/authkit/warehouse"
)

var (
	errForbidden = map[string]string{"error": "You don't have permission on this warehouse"}
	errAction    = map[string]string{"error": "Invalid action for this group"}
	errNotFound  = map[string]string{"error": "not found"}
	errBadBody   = map[string]string{"error": "invalid request body"}
)

// route dispatches every role-scoped API route. The caller holds no lock.
func (b *Backend) route(w http.ResponseWriter, r *http.Request, acct *Account) {
	segs := strings.Split(strings.Trim(strings.TrimPrefix(r.URL.Path, BasePath), "/"), "/")
	if len(segs) == 0 || segs[0] != string(acct.Role) {
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "role mismatch"})
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	rest := segs[1:]
	if len(rest) == 1 && rest[0] == "permission" && r.Method == http.MethodGet {
		perms := b.system[acct.Role]
		if perms == nil {
			perms = []permission.SystemPermission{}
		}
		writeJSON(w, http.StatusOK, perms)
		return
	}

	if acct.Role == permission.RoleEmployer {
		b.routeEmployer(w, r, acct, rest)
		return
	}
	b.routeManager(w, r, acct, rest)
}

/*
====================================
OWNER AND ADMIN
====================================
*/

func (b *Backend) routeManager(w http.ResponseWriter, r *http.Request, acct *Account, segs []string) {
	switch {
	case len(segs) == 2 && segs[0] == "product" && r.Method == http.MethodGet:
		for _, wh := range b.visible(acct) {
			if p, ok := wh.products[segs[1]]; ok {
				writeJSON(w, http.StatusOK, p)
				return
			}
		}
		writeJSON(w, http.StatusNotFound, errNotFound)
		return

	case len(segs) == 2 && segs[0] == "role" && r.Method == http.MethodPost:
		wh, ok := b.managed(acct, segs[1])
		if !ok {
			writeJSON(w, http.StatusForbidden, errForbidden)
			return
		}
		b.assignRole(w, r, wh)
		return

	case len(segs) == 3 && segs[0] == "role" && segs[1] == "permission" && r.Method == http.MethodPost:
		wh, ok := b.managed(acct, segs[2])
		if !ok {
			writeJSON(w, http.StatusForbidden, errForbidden)
			return
		}
		b.userPermissions(w, r, wh)
		return
	}

	if len(segs) == 0 || segs[0] != "warehouse" {
		writeJSON(w, http.StatusNotFound, errNotFound)
		return
	}
	segs = segs[1:]

	if len(segs) == 0 {
		switch r.Method {
		case http.MethodGet:
			list := []warehouse.Warehouse{}
			for _, wh := range b.visible(acct) {
				list = append(list, wh.info)
			}
			writeJSON(w, http.StatusOK, map[string]any{"warehouses": list})
		case http.MethodPost:
			var in warehouse.WarehouseInput
			if err := json.NewDecoder(r.Body).Decode(&in); err != nil || in.Name == "" {
				writeJSON(w, http.StatusBadRequest, errBadBody)
				return
			}
			b.addWarehouseLocked(acct.Username, in.Name, in.Address)
			writeJSON(w, http.StatusOK, "warehouse success created")
		default:
			writeJSON(w, http.StatusMethodNotAllowed, errNotFound)
		}
		return
	}

	wh, ok := b.managed(acct, segs[0])
	if !ok {
		writeJSON(w, http.StatusForbidden, errForbidden)
		return
	}
	segs = segs[1:]

	switch {
	case len(segs) == 0:
		b.warehouseItem(w, r, wh)
	case len(segs) == 1 && segs[0] == "employer" && r.Method == http.MethodGet:
		b.listEmployers(w, wh)
	case len(segs) >= 1 && segs[0] == "zone":
		b.zones(w, r, wh, segs[1:])
	case len(segs) >= 1 && segs[0] == "product":
		b.products(w, r, wh, segs[1:])
	default:
		writeJSON(w, http.StatusNotFound, errNotFound)
	}
}

func (b *Backend) visible(acct *Account) []*warehouseRecord {
	ids := make([]uint64, 0, len(b.warehouses))
	for id, wh := range b.warehouses {
		switch acct.Role {
		case permission.RoleAdmin:
			ids = append(ids, id)
		case permission.RoleOwner:
			if wh.owner == acct.Username {
				ids = append(ids, id)
			}
		case permission.RoleEmployer:
			if _, ok := wh.employers[acct.Username]; ok {
				ids = append(ids, id)
			}
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	out := make([]*warehouseRecord, 0, len(ids))
	for _, id := range ids {
		out = append(out, b.warehouses[id])
	}
	return out
}

func (b *Backend) managed(acct *Account, rawID string) (*warehouseRecord, bool) {
	id, err := strconv.ParseUint(rawID, 10, 64)
	if err != nil {
		return nil, false
	}
	wh, ok := b.warehouses[id]
	if !ok {
		return nil, false
	}
	if acct.Role == permission.RoleAdmin || wh.owner == acct.Username {
		return wh, true
	}
	return nil, false
}

func (b *Backend) warehouseItem(w http.ResponseWriter, r *http.Request, wh *warehouseRecord) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, wh.info)
	case http.MethodPut:
		var in warehouse.WarehouseInput
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			writeJSON(w, http.StatusBadRequest, errBadBody)
			return
		}
		wh.info.Name = in.Name
		wh.info.Address = in.Address
		writeJSON(w, http.StatusOK, "warehouse success created")
	case http.MethodDelete:
		delete(b.warehouses, wh.info.ID)
		writeJSON(w, http.StatusOK, map[string]string{"message": "warehouse success deleted"})
	default:
		writeJSON(w, http.StatusMethodNotAllowed, errNotFound)
	}
}

/*
====================================
EMPLOYER
====================================
*/

func (b *Backend) routeEmployer(w http.ResponseWriter, r *http.Request, acct *Account, segs []string) {
	// /permission/{wid}/{action}
	if len(segs) == 3 && segs[0] == "permission" && r.Method == http.MethodPost {
		wh, denied := b.capable(acct, segs[1], segs[2], permission.CapGetMyPermissions)
		if denied != nil {
			writeJSON(w, http.StatusForbidden, denied)
			return
		}
		if b.failPermissions > 0 {
			b.failPermissions--
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "permission lookup failed"})
			return
		}
		b.userPermissions(w, r, wh)
		return
	}

	if len(segs) == 0 || segs[0] != "warehouse" {
		writeJSON(w, http.StatusNotFound, errNotFound)
		return
	}
	segs = segs[1:]

	switch {
	case len(segs) == 0 && r.Method == http.MethodGet:
		list := []warehouse.Warehouse{}
		for _, wh := range b.visible(acct) {
			list = append(list, wh.info)
		}
		writeJSON(w, http.StatusOK, map[string]any{"warehouses": list})

	// /warehouse/global/{wid}/{action}
	case len(segs) == 3 && segs[0] == "global" && r.Method == http.MethodGet:
		wh, denied := b.capable(acct, segs[1], segs[2], permission.CapWarehouseManage)
		if denied != nil {
			writeJSON(w, http.StatusForbidden, denied)
			return
		}
		writeJSON(w, http.StatusOK, wh.info)

	// /warehouse/role/{wid}/{action}[/employer|/permission]
	case len(segs) >= 3 && segs[0] == "role":
		wh, denied := b.capable(acct, segs[1], segs[2], permission.CapRoleManage)
		if denied != nil {
			writeJSON(w, http.StatusForbidden, denied)
			return
		}
		switch {
		case len(segs) == 3 && r.Method == http.MethodPost:
			b.assignRole(w, r, wh)
		case len(segs) == 4 && segs[3] == "employer" && r.Method == http.MethodGet:
			b.listEmployers(w, wh)
		case len(segs) == 4 && segs[3] == "permission" && r.Method == http.MethodPost:
			b.userPermissions(w, r, wh)
		default:
			writeJSON(w, http.StatusNotFound, errNotFound)
		}

	// /warehouse/{wid}/zone/{action}[/{zid}]
	case len(segs) >= 3 && segs[1] == "zone" && (len(segs) == 3 || len(segs) == 4):
		wh, denied := b.capable(acct, segs[0], segs[2], permission.CapZoneManage)
		if denied != nil {
			writeJSON(w, http.StatusForbidden, denied)
			return
		}
		b.zones(w, r, wh, segs[3:])

	// /warehouse/{wid}/zone/{zid}/product/{action}/{pid}
	case len(segs) == 6 && segs[1] == "zone" && segs[3] == "product" && r.Method == http.MethodGet:
		wh, denied := b.capable(acct, segs[0], segs[4], permission.CapProductManage)
		if denied != nil {
			writeJSON(w, http.StatusForbidden, denied)
			return
		}
		b.products(w, r, wh, []string{segs[5]})

	// /warehouse/{wid}/product/{action}[/{pid}]
	case len(segs) >= 3 && segs[1] == "product":
		wh, denied := b.capable(acct, segs[0], segs[2], permission.CapProductManage)
		if denied != nil {
			writeJSON(w, http.StatusForbidden, denied)
			return
		}
		b.products(w, r, wh, segs[3:])

	default:
		writeJSON(w, http.StatusNotFound, errNotFound)
	}
}

func (b *Backend) employed(acct *Account, rawID string) (*warehouseRecord, bool) {
	id, err := strconv.ParseUint(rawID, 10, 64)
	if err != nil {
		return nil, false
	}
	wh, ok := b.warehouses[id]
	if !ok {
		return nil, false
	}
	if _, ok := wh.employers[acct.Username]; !ok {
		return nil, false
	}
	return wh, true
}

// capable mirrors the backend's group middleware: the action segment must
// be the group's single action, and the employer must hold it as a grant.
// A nil body means access is allowed.
func (b *Backend) capable(acct *Account, rawID, action, required string) (*warehouseRecord, map[string]string) {
	if action != required {
		return nil, errAction
	}
	wh, ok := b.employed(acct, rawID)
	if !ok {
		return nil, errForbidden
	}
	for _, c := range b.grants[grantKey{warehouseID: wh.info.ID, username: acct.Username}] {
		if c == required {
			return wh, nil
		}
	}
	return nil, errForbidden
}

/*
====================================
SHARED RESOURCES
====================================
*/

func (b *Backend) userPermissions(w http.ResponseWriter, r *http.Request, wh *warehouseRecord) {
	var req struct {
		Username string `json:"username"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errBadBody)
		return
	}
	caps := b.grants[grantKey{warehouseID: wh.info.ID, username: req.Username}]
	if caps == nil {
		caps = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"permissions": caps})
}

func (b *Backend) assignRole(w http.ResponseWriter, r *http.Request, wh *warehouseRecord) {
	var req struct {
		Name        string `json:"name"`
		Username    string `json:"username"`
		Permissions []uint `json:"permissions"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Username == "" {
		writeJSON(w, http.StatusBadRequest, errBadBody)
		return
	}
	if _, ok := b.accounts[req.Username]; !ok {
		writeJSON(w, http.StatusInternalServerError, "Can't create role for user: "+req.Username)
		return
	}
	names := make(map[uint]string)
	for _, p := range b.system[permission.RoleEmployer] {
		names[p.ID] = p.Name
	}
	caps := make([]string, 0, len(req.Permissions))
	for _, id := range req.Permissions {
		name, ok := names[id]
		if !ok {
			writeJSON(w, http.StatusInternalServerError, "Can't create role for user: "+req.Username)
			return
		}
		caps = append(caps, name)
	}
	b.grantLocked(wh.info.ID, req.Username, caps)
	writeJSON(w, http.StatusOK, "role success created for user: "+req.Username)
}

func (b *Backend) listEmployers(w http.ResponseWriter, wh *warehouseRecord) {
	names := make([]string, 0, len(wh.employers))
	for name := range wh.employers {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]warehouse.Employer, 0, len(names))
	for _, name := range names {
		a, ok := b.accounts[name]
		if !ok {
			continue
		}
		out = append(out, warehouse.Employer{
			PhoneNumber: a.Phone,
			Username:    a.Username,
			FirstName:   a.FirstName,
			LastName:    a.LastName,
			Surname:     a.Surname,
			Email:       a.Email,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (b *Backend) zones(w http.ResponseWriter, r *http.Request, wh *warehouseRecord, segs []string) {
	if len(segs) == 0 {
		switch r.Method {
		case http.MethodGet:
			ids := make([]int, 0, len(wh.zones))
			for id := range wh.zones {
				ids = append(ids, id)
			}
			sort.Ints(ids)
			list := make([]warehouse.Zone, 0, len(ids))
			for _, id := range ids {
				list = append(list, *wh.zones[id])
			}
			writeJSON(w, http.StatusOK, map[string]any{"zones": list})
		case http.MethodPost:
			var in warehouse.ZoneInput
			if err := json.NewDecoder(r.Body).Decode(&in); err != nil || in.Name == "" {
				writeJSON(w, http.StatusBadRequest, errBadBody)
				return
			}
			wh.addZone(in.Name, in.Capacity)
			writeJSON(w, http.StatusOK, "zone success created")
		default:
			writeJSON(w, http.StatusMethodNotAllowed, errNotFound)
		}
		return
	}

	zid, err := strconv.Atoi(segs[0])
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid zone id"})
		return
	}
	zone, ok := wh.zones[zid]
	if !ok {
		writeJSON(w, http.StatusNotFound, errNotFound)
		return
	}
	rest := segs[1:]

	switch {
	case len(rest) == 0 && r.Method == http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]any{"zone": zone})
	case len(rest) == 0 && r.Method == http.MethodPut:
		var in warehouse.ZoneInput
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			writeJSON(w, http.StatusBadRequest, errBadBody)
			return
		}
		zone.Name = in.Name
		zone.Capacity = in.Capacity
		writeJSON(w, http.StatusOK, "zone success created")
	case len(rest) == 0 && r.Method == http.MethodDelete:
		delete(wh.zones, zid)
		writeJSON(w, http.StatusOK, "zone success deleted")
	case len(rest) >= 1 && rest[0] == "product":
		b.zoneProducts(w, r, wh, zid, rest[1:])
	default:
		writeJSON(w, http.StatusNotFound, errNotFound)
	}
}

func (b *Backend) zoneProducts(w http.ResponseWriter, r *http.Request, wh *warehouseRecord, zid int, segs []string) {
	switch {
	case len(segs) == 0 && r.Method == http.MethodGet:
		out := []warehouse.Product{}
		for _, p := range sortedProducts(wh) {
			if p.ZoneID == uint64(zid) {
				out = append(out, *p)
			}
		}
		writeJSON(w, http.StatusOK, out)
	case len(segs) == 0 && r.Method == http.MethodPost:
		var in warehouse.ProductInput
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil || in.Title == "" {
			writeJSON(w, http.StatusBadRequest, errBadBody)
			return
		}
		in.ZoneID = uint64(zid)
		wh.addProduct(in)
		writeJSON(w, http.StatusOK, "product success created")
	case len(segs) == 1 && r.Method == http.MethodGet:
		b.products(w, r, wh, segs)
	default:
		writeJSON(w, http.StatusNotFound, errNotFound)
	}
}

func (b *Backend) products(w http.ResponseWriter, r *http.Request, wh *warehouseRecord, segs []string) {
	switch {
	case len(segs) == 0 && r.Method == http.MethodGet:
		out := []warehouse.Product{}
		for _, p := range sortedProducts(wh) {
			out = append(out, *p)
		}
		writeJSON(w, http.StatusOK, out)
	case len(segs) == 0 && r.Method == http.MethodPost:
		var in warehouse.ProductInput
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil || in.Title == "" {
			writeJSON(w, http.StatusBadRequest, errBadBody)
			return
		}
		wh.addProduct(in)
		writeJSON(w, http.StatusOK, "product success created")
	case len(segs) == 1 && r.Method == http.MethodGet:
		p, ok := wh.products[segs[0]]
		if !ok {
			writeJSON(w, http.StatusNotFound, errNotFound)
			return
		}
		writeJSON(w, http.StatusOK, p)
	case len(segs) == 1 && r.Method == http.MethodPut:
		p, ok := wh.products[segs[0]]
		if !ok {
			writeJSON(w, http.StatusNotFound, errNotFound)
			return
		}
		var in warehouse.ProductInput
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			writeJSON(w, http.StatusBadRequest, errBadBody)
			return
		}
		p.Title = in.Title
		p.Count = in.Count
		p.Description = in.Description
		p.ZoneID = in.ZoneID
		writeJSON(w, http.StatusOK, "product success updated")
	default:
		writeJSON(w, http.StatusNotFound, errNotFound)
	}
}

func sortedProducts(wh *warehouseRecord) []*warehouse.Product {
	out := make([]*warehouse.Product, 0, len(wh.products))
	for _, p := range wh.products {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Title < out[j].Title })
	return out
}
