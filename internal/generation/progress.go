package generation

const (
	MessageInitiating  = "Initiating video generation... This may take a moment."
	MessageDownloading = "Downloading your generated video..."
)

// PollMessages cycle once per poll iteration. They carry no server status.
var PollMessages = []string{
	"Warming up the creative engines...",
	"Assembling pixels into a masterpiece...",
	"Teaching virtual actors their lines...",
	"Rendering cinematic shots...",
	"Adding a touch of digital magic...",
	"Almost there, just polishing the final frames...",
}

// ProgressFunc receives human-readable progress lines in order.
type ProgressFunc func(message string)

func (f ProgressFunc) emit(message string) {
	if f != nil {
		f(message)
	}
}
