package warehouse

// Warehouse is a storage site.
type Warehouse struct {
	ID      uint64 `json:"id"`
	Address string `json:"address"`
	Name    string `json:"name"`
}

// WarehouseInput is the create and update payload.
type WarehouseInput struct {
	Address string `json:"address"`
	Name    string `json:"name"`
}

// Zone is an area inside a warehouse.
type Zone struct {
	ID       int    `json:"id"`
	Name     string `json:"name"`
	Capacity int    `json:"capacity"`
}

// ZoneInput is the create and update payload.
type ZoneInput struct {
	Name     string `json:"name"`
	Capacity int    `json:"capacity"`
}

// Product is a stock item. QRPath is the server-side file path of its QR
// image; see [Service.QRImageURL].
type Product struct {
	UUID        string `json:"uuid"`
	Title       string `json:"title"`
	Count       uint64 `json:"count"`
	QRPath      string `json:"qr_path"`
	Description string `json:"description"`
	ZoneID      uint64 `json:"zone_id"`
}

// ProductInput is the create and update payload.
type ProductInput struct {
	Title       string `json:"title"`
	Count       uint64 `json:"count"`
	Description string `json:"description"`
	ZoneID      uint64 `json:"zone_id"`
}

// Employer is a user attached to a warehouse.
type Employer struct {
	PhoneNumber string `json:"phone_number"`
	Username    string `json:"username"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	Surname     string `json:"surname"`
	Email       string `json:"email"`
}

// RoleAssignment grants capabilities on a warehouse to an employer.
type RoleAssignment struct {
	// Name labels the role on the backend.
	Name     string
	Username string
	// Capabilities are names such as "zone_manage"; they are resolved to
	// backend IDs before sending.
	Capabilities []string
}

type roleRequest struct {
	Name        string `json:"name"`
	Username    string `json:"username"`
	Permissions []uint `json:"permissions"`
}

type warehouseList struct {
	Warehouses []Warehouse `json:"warehouses"`
}

type zoneList struct {
	Zones []Zone `json:"zones"`
}

type zoneEnvelope struct {
	Zone Zone `json:"zone"`
}
