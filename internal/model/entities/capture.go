package entities

// CaptureResult is the outcome of one camera acquisition.
// Path and JPEG are only meaningful when Success is true.
type CaptureResult struct {
	Success bool
	Device  int
	Path    string
	JPEG    []byte
}
