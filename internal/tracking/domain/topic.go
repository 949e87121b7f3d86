package domain

import "fmt"

type TopicKind uint8

const (
	TopicGlobal TopicKind = iota + 1
	TopicShipment
	TopicDriver
)

func (k TopicKind) String() string {
	switch k {
	case TopicGlobal:
		return "dashboard"
	case TopicShipment:
		return "tracking"
	case TopicDriver:
		return "driver"
	default:
		return "unknown"
	}
}

// Topic identifies a fan-out channel: Global, Shipment(id) or Driver(id).
// It is comparable and used directly as a map key.
type Topic struct {
	Kind TopicKind
	ID   string
}

func GlobalTopic() Topic                    { return Topic{Kind: TopicGlobal} }
func ShipmentTopic(trackingID string) Topic { return Topic{Kind: TopicShipment, ID: trackingID} }
func DriverTopic(driverID string) Topic     { return Topic{Kind: TopicDriver, ID: driverID} }

// Valid reports whether the topic is well-formed: Global carries no id,
// the scoped kinds require one.
func (t Topic) Valid() bool {
	switch t.Kind {
	case TopicGlobal:
		return t.ID == ""
	case TopicShipment, TopicDriver:
		return t.ID != ""
	default:
		return false
	}
}

func (t Topic) String() string {
	if t.Kind == TopicGlobal {
		return t.Kind.String()
	}
	return fmt.Sprintf("%s:%s", t.Kind, t.ID)
}

// ParseTopic builds a topic from its wire kind name and id.
func ParseTopic(kind, id string) (Topic, error) {
	var t Topic
	switch kind {
	case "dashboard", "global":
		t = GlobalTopic()
	case "tracking", "shipment":
		t = ShipmentTopic(id)
	case "driver":
		t = DriverTopic(id)
	default:
		return Topic{}, fmt.Errorf("%w: kind %q", ErrInvalidTopic, kind)
	}
	if !t.Valid() {
		return Topic{}, fmt.Errorf("%w: %s requires an id", ErrInvalidTopic, kind)
	}
	return t, nil
}
