package stats

import (
	"context"
	"regexp"
	"sort"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/gridmon/gridmon/internal/domain"
)

// SummaryTopicType is the topic under which cluster summaries are published.
const SummaryTopicType = "stats"

// ObjectsTopicType is the topic under which object listings are published.
const ObjectsTopicType = "objects"

// ObjectSource enumerates a runtime instance's members and objects.
type ObjectSource interface {
	Name() string
	Members() []domain.Member
	Objects() []domain.ObjectRef
}

// ─── Cluster Summary ────────────────────────────────────────────────────────

// Summary counts an instance's distributed objects per kind.
type Summary struct {
	SampleTime   time.Time                 `json:"sample_time"`
	Instance     string                    `json:"instance"`
	MembersCount int                       `json:"members_count"`
	Counts       map[domain.ObjectKind]int `json:"counts"`
}

// SummaryProducer builds Summary values for one instance.
type SummaryProducer struct {
	source ObjectSource
	now    func() time.Time
}

// NewSummaryProducer creates a summary producer over source.
func NewSummaryProducer(source ObjectSource) *SummaryProducer {
	return &SummaryProducer{source: source, now: time.Now}
}

// Produce counts objects by kind. Every known kind is present, zero or not.
func (s *SummaryProducer) Produce(ctx context.Context) (*Summary, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := &Summary{
		SampleTime:   s.now(),
		Instance:     s.source.Name(),
		MembersCount: len(s.source.Members()),
		Counts:       make(map[domain.ObjectKind]int, len(domain.AllKinds)),
	}
	for _, k := range domain.AllKinds {
		out.Counts[k] = 0
	}
	for _, ref := range s.source.Objects() {
		if _, ok := out.Counts[ref.Kind]; ok {
			out.Counts[ref.Kind]++
		}
	}
	return out, nil
}

// ─── Object Listing ─────────────────────────────────────────────────────────

// ObjectSummary is one row of an object listing.
type ObjectSummary struct {
	Name         string `json:"name"`
	PartitionKey string `json:"partition_key"`
}

// ObjectPage is a filtered, paginated listing of objects of one kind.
type ObjectPage struct {
	Kind     domain.ObjectKind `json:"kind"`
	Objects  []ObjectSummary   `json:"objects"`
	Total    int               `json:"total"`
	Page     int               `json:"page"`
	PageSize int               `json:"page_size"`
}

// ListObjects lists objects of kind whose name matches filter (a regular
// expression; empty matches all), sorted by name. page is 1-based; a
// pageSize of zero or less returns everything.
func ListObjects(source ObjectSource, kind domain.ObjectKind, filter string, page, pageSize int) (ObjectPage, error) {
	var re *regexp.Regexp
	if filter != "" {
		var err error
		re, err = regexp.Compile(filter)
		if err != nil {
			return ObjectPage{}, errors.Wrapf(err, "invalid filter %q", filter)
		}
	}

	matched := make([]ObjectSummary, 0)
	for _, ref := range source.Objects() {
		if ref.Kind != kind {
			continue
		}
		if re != nil && !re.MatchString(ref.Name) {
			continue
		}
		matched = append(matched, ObjectSummary{Name: ref.Name, PartitionKey: ref.Key()})
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].Name < matched[j].Name })

	out := ObjectPage{Kind: kind, Total: len(matched), Page: page, PageSize: pageSize}
	if pageSize <= 0 {
		out.Page = 1
		out.Objects = matched
		return out, nil
	}
	if page < 1 {
		page = 1
		out.Page = 1
	}
	// Compare page indexes before multiplying so huge values cannot wrap.
	if len(matched) == 0 || page-1 > (len(matched)-1)/pageSize {
		out.Objects = []ObjectSummary{}
		return out, nil
	}
	from := (page - 1) * pageSize
	to := len(matched)
	if pageSize < to-from {
		to = from + pageSize
	}
	out.Objects = matched[from:to]
	return out, nil
}
