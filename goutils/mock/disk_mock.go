package mock

// DiskMock stands in for the snapshot archive on local disk.
type DiskMock struct {
	ReadMock  func(path string) ([]byte, error)
	WriteMock func(path string, data []byte) error
}

func (m DiskMock) Read(path string) ([]byte, error) {
	return m.ReadMock(path)
}

func (m DiskMock) Write(path string, data []byte) error {
	if m.WriteMock == nil {
		return nil
	}

	return m.WriteMock(path, data)
}
