package pterodactyl

// IdentityRequest describes the panel account that owns provisioned servers.
type IdentityRequest struct {
	Email     string
	Username  string
	FirstName string
	LastName  string
}

// Capacity sizes a server allocation.
type Capacity struct {
	MemoryMB  int
	CPU       int
	DiskMB    int
	Databases int
	Backups   int
}

// AllocateRequest asks the backend for a new server owned by IdentityID.
type AllocateRequest struct {
	IdentityID int64
	Name       string
	Capacity   Capacity
}

// Allocation is the backend's record of a created server.
type Allocation struct {
	ServerID   int64
	Identifier string
	IP         *string
	Port       *int
}

// ServerDetails is a trimmed view of the application API server resource.
type ServerDetails struct {
	ID          int64  `json:"id"`
	Identifier  string `json:"identifier"`
	Name        string `json:"name"`
	Suspended   bool   `json:"suspended"`
	Status      string `json:"status,omitempty"`
	Node        int64  `json:"node"`
	Allocation  int64  `json:"allocation"`
	Description string `json:"description,omitempty"`
}

// ResourceUsage reports live utilisation from the client API.
type ResourceUsage struct {
	CurrentState string `json:"current_state"`
	IsSuspended  bool   `json:"is_suspended"`
	Resources    struct {
		MemoryBytes    int64   `json:"memory_bytes"`
		CPUAbsolute    float64 `json:"cpu_absolute"`
		DiskBytes      int64   `json:"disk_bytes"`
		NetworkRxBytes int64   `json:"network_rx_bytes"`
		NetworkTxBytes int64   `json:"network_tx_bytes"`
		Uptime         int64   `json:"uptime"`
	} `json:"resources"`
}
