package api

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-chi/chi/v5"

	"github.com/gridmon/gridmon/internal/topic"
)

// handleTopic streams a topic as server-sent events until the client goes
// away. Query parameters: frequency (duration), filter, page, page_size.
func (s *Server) handleTopic(w http.ResponseWriter, r *http.Request) {
	inst, err := s.instance(chi.URLParam(r, "instance"))
	if err != nil {
		writeError(w, err)
		return
	}
	if inst.Hub == nil {
		writeError(w, topic.ErrUnknownTopic)
		return
	}

	q := r.URL.Query()
	var params topic.Params
	if v := q.Get("frequency"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			writeError(w, badRequest("invalid frequency %q", v))
			return
		}
		params.Frequency = d
	}
	params.Filter = q.Get("filter")
	if params.Page, err = intParam(q.Get("page"), 1); err != nil {
		writeError(w, err)
		return
	}
	if params.PageSize, err = intParam(q.Get("page_size"), 0); err != nil {
		writeError(w, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, errors.New("streaming not supported"))
		return
	}

	sub, err := inst.Hub.Subscribe(r.Context(), chi.URLParam(r, "*"), params)
	if err != nil {
		writeError(w, err)
		return
	}
	defer inst.Hub.Unsubscribe(sub.ID)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	writer := bufio.NewWriter(w)
	for n := range sub.C() {
		data, err := json.Marshal(n)
		if err != nil {
			s.logger.Warn("encode notice", "topic", n.Topic, "error", err)
			continue
		}
		fmt.Fprintf(writer, "event: %s\ndata: %s\n\n", n.Type, data)
		writer.Flush()
		flusher.Flush()
	}
}
