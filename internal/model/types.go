package model

// StatusSnapshot is the point-in-time view served by /api/status.
type StatusSnapshot struct {
	Services   Services   `json:"services"`
	RCC        RCCStatus  `json:"rcc"`
	Statistics Statistics `json:"statistics"`
	Paths      Paths      `json:"paths"`
	Timestamp  string     `json:"timestamp"`
}

type Services struct {
	RCCRemote PackageServerState `json:"rccremote"`
	Nginx     ProxyState         `json:"nginx"`
}

type PackageServerState struct {
	Running bool   `json:"running"`
	Host    string `json:"host"`
	Port    string `json:"port"`
}

type ProxyState struct {
	Running bool   `json:"running"`
	Host    string `json:"host"`
}

// RCCStatus is the rcc section of the snapshot. Everything past Available
// comes from rcc's JSON reports and is zero or null when rcc cannot answer.
type RCCStatus struct {
	Version   string `json:"version"`
	Available bool   `json:"available"`

	CatalogTotalBytes     int64          `json:"catalog_total_bytes"`
	NewestCatalogAgeDays  *int           `json:"newest_catalog_age_days"`
	MostUsedSpace         *HolotreeSpace `json:"most_used_space"`
	SettingsProfile       *string        `json:"settings_profile"`
	SettingsVersion       *string        `json:"settings_version"`
	SSLVerify             *bool          `json:"ssl_verify"`
	DiagnosticsHostsCount int            `json:"diagnostics_hosts_count"`
	RCCIndexURL           *string        `json:"rcc_index_url"`
}

type Statistics struct {
	Robots           int `json:"robots"`
	Catalogs         int `json:"catalogs"`
	HololibZips      int `json:"hololib_zips"`
	HolotreeSpaces   int `json:"holotree_spaces"`
	ActiveBlueprints int `json:"active_blueprints"`
}

type Paths struct {
	Robots     string `json:"robots"`
	HololibZip string `json:"hololib_zip"`
}

// ToolInfo is what the rcc CLI reports about itself. Version is "unknown"
// whenever Available is false.
type ToolInfo struct {
	Version      string     `json:"version"`
	Available    bool       `json:"available"`
	CatalogCount int        `json:"catalog_count"`
	Details      RCCDetails `json:"details"`
}

// RCCDetails summarizes `holotree catalogs --json`, `holotree list --json`
// and `config settings --json`.
type RCCDetails struct {
	CatalogTotalBytes    int64          `json:"catalog_total_bytes"`
	NewestCatalogAgeDays *int           `json:"newest_catalog_age_days"`
	SpaceCount           int            `json:"space_count"`
	ActiveBlueprints     int            `json:"active_blueprints"`
	MostUsedSpace        *HolotreeSpace `json:"most_used_space"`
	Settings             RCCSettings    `json:"settings"`
}

type HolotreeSpace struct {
	ID        string `json:"id"`
	Blueprint string `json:"blueprint,omitempty"`
	LastUsed  string `json:"last_used,omitempty"`
	IdleDays  *int   `json:"idle_days"`
	UseCount  int    `json:"use_count"`
}

type RCCSettings struct {
	Profile               *string `json:"profile_name"`
	Version               *string `json:"profile_version"`
	SSLVerify             *bool   `json:"ssl_verify"`
	DiagnosticsHostsCount int     `json:"diagnostics_hosts_count"`
	IndexURL              *string `json:"rcc_index_url"`
}

type Health struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Service   string `json:"service"`
}

type CatalogList struct {
	Catalogs  []string `json:"catalogs"`
	Count     int      `json:"count"`
	RawOutput string   `json:"raw_output"`
}

// OperationResult reports a long-running rcc operation (rebuild, import).
type OperationResult struct {
	Success  bool   `json:"success"`
	TimedOut bool   `json:"timed_out,omitempty"`
	Message  string `json:"message,omitempty"`
	Output   string `json:"output,omitempty"`
	Error    string `json:"error,omitempty"`
}

type RobotSummary struct {
	Name              string  `json:"name"`
	Path              string  `json:"path"`
	HasRobotYAML      bool    `json:"has_robot_yaml"`
	HasCondaYAML      bool    `json:"has_conda_yaml"`
	HasEnvFile        bool    `json:"has_env_file"`
	RobocorpHome      *string `json:"robocorp_home"`
	DependenciesCount int     `json:"dependencies_count"`
	IsValid           bool    `json:"is_valid"`
}

type RobotDetail struct {
	Name     string            `json:"name"`
	Path     string            `json:"path"`
	Tasks    []string          `json:"tasks"`
	Files    map[string]string `json:"files"`
	AllFiles []string          `json:"all_files"`
}

type RobotFile struct {
	Filename string `json:"filename"`
	Content  string `json:"content"`
}

type UploadReport struct {
	Message  string   `json:"message"`
	Uploaded []string `json:"uploaded"`
	Errors   []string `json:"errors"`
}

type HololibZip struct {
	Name     string  `json:"name"`
	Size     int64   `json:"size"`
	SizeMB   float64 `json:"size_mb"`
	Modified string  `json:"modified"`
}
