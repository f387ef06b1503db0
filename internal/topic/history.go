package topic

import (
	"encoding/json"

	"github.com/cockroachdb/errors"

	"github.com/gridmon/gridmon/internal/infra/sqlite"
	"github.com/gridmon/gridmon/internal/stats"
)

// HistorySink persists statistics products to the history store and trims
// each object's history to the newest Keep records. Other payloads are
// ignored.
type HistorySink struct {
	DB   *sqlite.DB
	Keep int
}

// Record implements Sink.
func (s *HistorySink) Record(name Name, payload any) error {
	p, ok := payload.(*stats.Product)
	if !ok || name.Type != stats.TopicType {
		return nil
	}
	if err := Save(s.DB, p); err != nil {
		return err
	}
	if s.Keep > 0 {
		if _, err := s.DB.PruneProducts(p.Instance, p.Kind, p.Object, s.Keep); err != nil {
			return err
		}
	}
	return nil
}

// Save writes one product to db.
func Save(db *sqlite.DB, p *stats.Product) error {
	payload, err := json.Marshal(p)
	if err != nil {
		return errors.Wrap(err, "encode product")
	}
	_, err = db.SaveProduct(sqlite.ProductRecord{
		Instance:   p.Instance,
		Kind:       p.Kind,
		Object:     p.Object,
		SampledAt:  p.SampleTime,
		Dispatched: p.Dispatched,
		Answered:   len(p.Members),
		Payload:    payload,
	})
	return err
}
