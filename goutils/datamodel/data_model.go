package datamodel

import "time"

type NodeGroup string

const (
	NodeGroupRenter   NodeGroup = "renter"
	NodeGroupProvider NodeGroup = "provider"
)

type IssueType string

const (
	CorruptFileIssue        IssueType = "CORRUPT_FILE"         // at least one block of a file failed its audit
	SnapshotUnavailable     IssueType = "SNAPSHOT_UNAVAILABLE" // metaserver did not serve a usable snapshot
	AuditRequestFailedIssue IssueType = "AUDIT_REQUEST_FAILED" // audit endpoint could not be reached
)

type AuditStatus string

const (
	AuditStatusUnknown AuditStatus = "UNKNOWN"
	AuditStatusPassed  AuditStatus = "PASSED"
	AuditStatusCorrupt AuditStatus = "CORRUPT"
)

type (
	Renter struct {
		ID      string `json:"id" validate:"required"`
		Alias   string `json:"alias"`
		Balance int64  `json:"balance"`
	}

	Provider struct {
		ID          string `json:"id" validate:"required"`
		Addr        string `json:"address,omitempty"`
		SpaceAvail  int64  `json:"spaceAvail"`
		Balance     int64  `json:"balance"`
		StorageRate int64  `json:"storageRate"`
	}

	// Contract is not identified in early snapshots, ID stays empty there.
	Contract struct {
		ID           string    `json:"id,omitempty"`
		RenterID     string    `json:"renterId" validate:"required"`
		ProviderID   string    `json:"providerId" validate:"required"`
		StorageSpace int64     `json:"storageSpace"`
		StartDate    time.Time `json:"startDate"`
	}

	BlockLocation struct {
		ProviderID string `json:"providerId"`
		Addr       string `json:"addr,omitempty"`
	}

	Block struct {
		ID          string        `json:"id" validate:"required"`
		Location    BlockLocation `json:"location"`
		AuditPassed bool          `json:"auditPassed"`
	}

	Version struct {
		Num        int       `json:"num"`
		Size       int64     `json:"size"`
		UploadSize int64     `json:"uploadSize"`
		UploadTime time.Time `json:"uploadTime"`
		Blocks     []Block   `json:"blocks" validate:"dive"`
	}

	File struct {
		ID       string    `json:"id" validate:"required"`
		Name     string    `json:"name"`
		OwnerID  string    `json:"ownerId"`
		Versions []Version `json:"versions" validate:"dive"`
	}

	// Snapshot is the full network state served by the metaserver dashboard endpoint.
	Snapshot struct {
		Renters   []Renter   `json:"renters" validate:"dive"`
		Providers []Provider `json:"providers" validate:"dive"`
		Contracts []Contract `json:"contracts" validate:"dive"`
		Files     []File     `json:"files" validate:"dive"`
	}
)

// LatestVersion returns nil when the file has no stored versions.
func (f *File) LatestVersion() *Version {
	if len(f.Versions) == 0 {
		return nil
	}

	return &f.Versions[len(f.Versions)-1]
}

// FindFile returns nil if no file with the id exists in the snapshot.
func (s *Snapshot) FindFile(fileID string) *File {
	for i := range s.Files {
		if s.Files[i].ID == fileID {
			return &s.Files[i]
		}
	}

	return nil
}

type AuditResp struct {
	Success bool `json:"success"`
}

// AuditCompletedEvent is published once for every finished block audit.
type AuditCompletedEvent struct {
	EventID     string    `json:"eventId"`
	InstanceID  string    `json:"instanceId"`
	FileID      string    `json:"fileId"`
	BlockID     string    `json:"blockId"`
	ProviderID  string    `json:"providerId"`
	Success     bool      `json:"success"`
	CompletedAt time.Time `json:"completedAt"`
}

type DashboardIssue struct {
	InstanceID      string `json:"instanceID"`
	IssueType       string `json:"issueType"`
	FileID          string `json:"fileID"`
	TimeOfReporting string `json:"timeOfReporting"`
	Extra           string `json:"extra"`
}
