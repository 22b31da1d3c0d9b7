package capture

import "strings"

// DataCallback receives raw device frames. It runs on the capture thread and
// must not block.
type DataCallback func(data []byte, frameCount uint32)

// StreamSpec describes the native format a backend delivers frames in.
type StreamSpec struct {
	Format     SampleFormat
	SampleRate int
	Channels   int
}

// DeviceDescriptor identifies one enumerable input device. Descriptors are
// refreshed on every enumeration call and never persisted.
type DeviceDescriptor struct {
	ID        string // opaque platform-specific identifier
	Name      string
	IsDefault bool
}

// Context abstracts the platform audio subsystem.
type Context interface {
	Devices() ([]DeviceDescriptor, error)
	NewCapture(device *DeviceDescriptor, want StreamSpec) (CaptureDevice, error)
	Close()
}

// CaptureDevice is one open input stream.
type CaptureDevice interface {
	Start() error
	Stop()
	Close()
	// Spec reports the format frames are actually delivered in, which may
	// differ from the requested spec on devices that cannot honor it.
	Spec() StreamSpec
	SetCallback(cb DataCallback)
	ClearCallback()
}

var btKeywords = []string{
	"airpods", "beats", "bose", "wh-1000", "wf-1000",
	"sony wh-", "sony wf-",
	"jabra", "galaxy buds", "pixel buds", "powerbeats",
	"jbl ", "sennheiser momentum", "plantronics",
	"tozo", "anker soundcore", "skullcandy",
	"bluetooth", " bt ", " bt)", " bt]",
}

// IsBluetooth guesses from the device name whether a mic is a Bluetooth
// headset, which typically delivers lower capture quality.
func IsBluetooth(name string) bool {
	lower := strings.ToLower(name)
	for _, kw := range btKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}
