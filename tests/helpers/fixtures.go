package helpers

import (
	"github.com/google/uuid"
)

// Regulation is a regulation passage fixture
type Regulation struct {
	ID      string
	Section string
	Content string
}

// DesignDoc is a design-knowledge passage fixture
type DesignDoc struct {
	ID      string
	Topic   string
	Content string
}

// Marker is a token unlikely to appear in real corpus text, so keyword
// searches for it only find seeded fixtures
func Marker() string {
	return "fixture" + uuid.NewString()[:8]
}

// SocketRCDRegulation returns the additional-protection regulation fixture
// tagged with marker
func SocketRCDRegulation(marker string) Regulation {
	return Regulation{
		ID:      "test-411.3.3-" + uuid.NewString(),
		Section: "411.3.3 Additional requirements for socket-outlets " + marker,
		Content: "Additional protection by means of an RCD with a rated residual operating current not exceeding 30 mA " +
			"shall be provided for socket-outlets with a rated current not exceeding 32 A. " + marker,
	}
}

// RingFinalDoc returns the ring final circuit design guidance fixture tagged with marker
func RingFinalDoc(marker string) DesignDoc {
	return DesignDoc{
		ID:      "test-ring-final-" + uuid.NewString(),
		Topic:   "Ring final circuits " + marker,
		Content: "A ring final circuit is wired in 2.5mm² cable with a 1.5mm² CPC and protected at 32 A. " + marker,
	}
}
