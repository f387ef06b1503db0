package topic

import (
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/gridmon/gridmon/internal/domain"
	"github.com/gridmon/gridmon/internal/stats"
)

// ErrUnknownTopic is returned for topic names no producer serves.
var ErrUnknownTopic = errors.New("unknown topic")

// Name is a parsed topic name. Three shapes exist:
//
//	stats
//	objects/<kind>
//	distributed_object_stats/<kind>/<object>
type Name struct {
	Type   string
	Kind   domain.ObjectKind
	Object string
}

// ParseName parses a topic name.
func ParseName(s string) (Name, error) {
	parts := strings.SplitN(strings.Trim(s, "/"), "/", 3)
	switch parts[0] {
	case stats.SummaryTopicType:
		if len(parts) != 1 {
			break
		}
		return Name{Type: stats.SummaryTopicType}, nil
	case stats.ObjectsTopicType:
		if len(parts) != 2 {
			break
		}
		kind, err := domain.ParseKind(parts[1])
		if err != nil {
			return Name{}, errors.Wrapf(err, "topic %q", s)
		}
		return Name{Type: stats.ObjectsTopicType, Kind: kind}, nil
	case stats.TopicType:
		if len(parts) != 3 || parts[2] == "" {
			break
		}
		kind, err := domain.ParseKind(parts[1])
		if err != nil {
			return Name{}, errors.Wrapf(err, "topic %q", s)
		}
		return Name{Type: stats.TopicType, Kind: kind, Object: parts[2]}, nil
	}
	return Name{}, errors.Wrapf(ErrUnknownTopic, "%q", s)
}

func (n Name) String() string {
	switch n.Type {
	case stats.ObjectsTopicType:
		return n.Type + "/" + string(n.Kind)
	case stats.TopicType:
		return n.Type + "/" + string(n.Kind) + "/" + n.Object
	default:
		return n.Type
	}
}
