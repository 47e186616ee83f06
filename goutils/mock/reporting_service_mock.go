package mock

import "storage-dashboard/goutils/datamodel"

type ReportingServiceMock struct {
	ReportMock func(issueType datamodel.IssueType, fileID string, extra map[string]interface{})
}

func (m ReportingServiceMock) Report(issueType datamodel.IssueType, fileID string, extra map[string]interface{}) {
	m.ReportMock(issueType, fileID, extra)
}
