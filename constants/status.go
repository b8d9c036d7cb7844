package constants

// Device labels recorded in the OCR manifest.
const (
	DeviceCPU  = "cpu"
	DeviceCUDA = "cuda"
)

// Device returns the manifest device label for the gpu flag.
func Device(gpu bool) string {
	if gpu {
		return DeviceCUDA
	}
	return DeviceCPU
}

// NoteBackendMissing marks manifest rows of engines that are not installed.
const NoteBackendMissing = "backend missing"

// DryRunStderr is recorded as stderr for simulated tesseract invocations.
const DryRunStderr = "DRY-RUN"
