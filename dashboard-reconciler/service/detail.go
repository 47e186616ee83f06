package service

import (
	"sort"

	"storage-dashboard/goutils/datamodel"
)

type (
	BlockEntry struct {
		ID          string `json:"id"`
		ProviderID  string `json:"providerId"`
		AuditPassed bool   `json:"auditPassed"`
		Pending     bool   `json:"pending"`
		// Audited is set when AuditPassed comes from an audit run by this dashboard
		// rather than from the snapshot.
		Audited bool `json:"audited"`
	}

	FileEntry struct {
		ID       string                `json:"id"`
		Name     string                `json:"name"`
		Versions int                   `json:"versions"`
		Size     int64                 `json:"size"`
		Expanded bool                  `json:"expanded"`
		Status   datamodel.AuditStatus `json:"status"`
		Blocks   []BlockEntry          `json:"blocks"`
	}

	RenterDetail struct {
		Alias            string `json:"alias"`
		Balance          int64  `json:"balance"`
		FilesUploaded    int    `json:"filesUploaded"`
		StorageUsed      int64  `json:"storageUsed"`
		StorageReserved  int64  `json:"storageReserved"`
		StorageAvailable int64  `json:"storageAvailable"`
	}

	ProviderDetail struct {
		Balance          int64 `json:"balance"`
		StorageRate      int64 `json:"storageRate"`
		StorageAvailable int64 `json:"storageAvailable"`
		StorageLeased    int64 `json:"storageLeased"`
		StorageOffered   int64 `json:"storageOffered"`
	}

	// NodeDetail is the detail pane of the selected node. A fresh value is built on
	// every change, so a returned pointer is never mutated afterwards.
	NodeDetail struct {
		NodeID   string              `json:"nodeId"`
		Group    datamodel.NodeGroup `json:"group"`
		Renter   *RenterDetail       `json:"renter,omitempty"`
		Provider *ProviderDetail     `json:"provider,omitempty"`
		Files    []FileEntry         `json:"files"`
	}

	// uiState is the interaction state that must outlive any single snapshot.
	uiState struct {
		expanded   map[string]struct{} // file names
		pending    map[string]struct{} // block ids
		fileStatus func(fileID string, versionNum int) (datamodel.AuditStatus, bool)
		overlay    func(blockID string) (bool, bool)
	}
)

// buildDetail returns nil when nodeID is neither a renter nor a provider of the snapshot.
func buildDetail(snapshot *datamodel.Snapshot, nodeID string, state uiState) *NodeDetail {
	if snapshot == nil || nodeID == "" {
		return nil
	}

	for i := range snapshot.Renters {
		if snapshot.Renters[i].ID == nodeID {
			return renterDetail(snapshot, &snapshot.Renters[i], state)
		}
	}

	for i := range snapshot.Providers {
		if snapshot.Providers[i].ID == nodeID {
			return providerDetail(snapshot, &snapshot.Providers[i], state)
		}
	}

	return nil
}

func renterDetail(snapshot *datamodel.Snapshot, renter *datamodel.Renter, state uiState) *NodeDetail {
	detail := &NodeDetail{
		NodeID: renter.ID,
		Group:  datamodel.NodeGroupRenter,
		Renter: &RenterDetail{Alias: renter.Alias, Balance: renter.Balance},
		Files:  make([]FileEntry, 0),
	}

	for i := range snapshot.Files {
		file := &snapshot.Files[i]
		if file.OwnerID != renter.ID {
			continue
		}

		detail.Renter.FilesUploaded++

		for _, version := range file.Versions {
			detail.Renter.StorageUsed += version.UploadSize
		}

		detail.Files = append(detail.Files, fileEntry(file, state))
	}

	for _, contract := range snapshot.Contracts {
		if contract.RenterID == renter.ID {
			detail.Renter.StorageReserved += contract.StorageSpace
		}
	}

	detail.Renter.StorageAvailable = detail.Renter.StorageReserved - detail.Renter.StorageUsed

	sortFiles(detail.Files)

	return detail
}

func providerDetail(snapshot *datamodel.Snapshot, provider *datamodel.Provider, state uiState) *NodeDetail {
	detail := &NodeDetail{
		NodeID: provider.ID,
		Group:  datamodel.NodeGroupProvider,
		Provider: &ProviderDetail{
			Balance:          provider.Balance,
			StorageRate:      provider.StorageRate,
			StorageAvailable: provider.SpaceAvail,
		},
		Files: make([]FileEntry, 0),
	}

	for _, contract := range snapshot.Contracts {
		if contract.ProviderID == provider.ID {
			detail.Provider.StorageLeased += contract.StorageSpace
		}
	}

	detail.Provider.StorageOffered = detail.Provider.StorageLeased + detail.Provider.StorageAvailable

	for i := range snapshot.Files {
		file := &snapshot.Files[i]
		if storesAnyBlock(file, provider.ID) {
			detail.Files = append(detail.Files, fileEntry(file, state))
		}
	}

	sortFiles(detail.Files)

	return detail
}

func storesAnyBlock(file *datamodel.File, providerID string) bool {
	for _, version := range file.Versions {
		for _, block := range version.Blocks {
			if block.Location.ProviderID == providerID {
				return true
			}
		}
	}

	return false
}

func fileEntry(file *datamodel.File, state uiState) FileEntry {
	_, expanded := state.expanded[file.Name]

	entry := FileEntry{
		ID:       file.ID,
		Name:     file.Name,
		Versions: len(file.Versions),
		Expanded: expanded,
		Status:   datamodel.AuditStatusUnknown,
		Blocks:   make([]BlockEntry, 0),
	}

	latest := file.LatestVersion()
	if latest == nil {
		return entry
	}

	entry.Size = latest.Size

	// a whole-file result only describes the version it audited
	if state.fileStatus != nil {
		if status, ok := state.fileStatus(file.ID, latest.Num); ok {
			entry.Status = status
		}
	}

	for _, block := range latest.Blocks {
		_, pending := state.pending[block.ID]

		blockEntry := BlockEntry{
			ID:          block.ID,
			ProviderID:  block.Location.ProviderID,
			AuditPassed: block.AuditPassed,
			Pending:     pending,
		}

		if state.overlay != nil {
			if passed, ok := state.overlay(block.ID); ok {
				blockEntry.AuditPassed = passed
				blockEntry.Audited = true
			}
		}

		entry.Blocks = append(entry.Blocks, blockEntry)
	}

	return entry
}

func sortFiles(files []FileEntry) {
	sort.SliceStable(files, func(i, j int) bool {
		return files[i].Name < files[j].Name
	})
}
