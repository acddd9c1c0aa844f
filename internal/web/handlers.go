package web

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"schedcal/internal/agenda"
	"schedcal/internal/datekey"
	"schedcal/internal/grid"
	"schedcal/internal/ics"
	"schedcal/internal/index"
	"schedcal/internal/model"
)

type monthRef struct {
	Year  int `json:"year"`
	Month int `json:"month"`
}

type cellDTO struct {
	grid.Cell
	Today      bool          `json:"today"`
	EventCount int           `json:"event_count"`
	Overlap    bool          `json:"overlap"`
	Preview    []model.Event `json:"preview,omitempty"`
	More       int           `json:"more,omitempty"`
}

type monthResponse struct {
	Year        int       `json:"year"`
	Month       int       `json:"month"`
	Days        int       `json:"days"`
	FirstOffset int       `json:"first_weekday_offset"`
	WeekStart   string    `json:"week_start"`
	Weeks       int       `json:"weeks"`
	Today       string    `json:"today"`
	Prev        monthRef  `json:"prev"`
	Next        monthRef  `json:"next"`
	Cells       []cellDTO `json:"cells"`
}

type dayEventDTO struct {
	model.Event
	OverlapsPrevious bool `json:"overlaps_previous"`
}

type dayResponse struct {
	Date    datekey.Key   `json:"date"`
	Today   bool          `json:"today"`
	Overlap bool          `json:"overlap"`
	Events  []dayEventDTO `json:"events"`
}

type eventsResponse struct {
	Events []model.Event `json:"events"`
}

type conflictRequest struct {
	agenda.Draft
	ExcludeID string `json:"exclude_id"`
}

type conflictResponse struct {
	OK       bool         `json:"ok"`
	Conflict *model.Event `json:"conflict"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleMonth returns the grid of one month with per-day counts, the
// adjacent-overlap badge and a short preview.
//
// GET /api/months/{year}/{month}?q=&category=
//   - month is 1..12
//   - q / category filter the events shown, as in /api/events
func (s *Server) handleMonth(w http.ResponseWriter, r *http.Request) {
	year, err := strconv.Atoi(chi.URLParam(r, "year"))
	if err != nil || year < 0 || year > 9999 {
		writeError(w, http.StatusBadRequest, "bad_request", "year must be 0..9999")
		return
	}
	month, err := strconv.Atoi(chi.URLParam(r, "month"))
	if err != nil || month < 1 || month > 12 {
		writeError(w, http.StatusBadRequest, "bad_request", "month must be 1..12")
		return
	}

	events := s.filtered(r)
	idx, err := index.Build(events)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	m := grid.Build(year, month-1, grid.ParseWeekStart(s.cfg.WeekStart))
	today := s.today()

	resp := monthResponse{
		Year:        m.Year,
		Month:       m.MonthIndex0 + 1,
		Days:        m.Days,
		FirstOffset: m.FirstOffset,
		WeekStart:   s.cfg.WeekStart,
		Weeks:       m.Weeks(),
		Today:       today.String(),
		Cells:       make([]cellDTO, 0, len(m.Cells)),
	}
	py, pm := grid.Shift(m.Year, m.MonthIndex0, -1)
	ny, nm := grid.Shift(m.Year, m.MonthIndex0, 1)
	resp.Prev = monthRef{Year: py, Month: pm + 1}
	resp.Next = monthRef{Year: ny, Month: nm + 1}

	for _, c := range m.Cells {
		cell := cellDTO{Cell: c}
		if !c.Blank() {
			day := idx.Day(c.Key)
			overlap, err := index.HasConflictWithinDay(day)
			if err != nil {
				writeDomainError(w, err)
				return
			}
			cell.Today = grid.IsToday(c.Key, today)
			cell.EventCount = len(day)
			cell.Overlap = overlap
			cell.Preview, cell.More = index.Preview(day, s.cfg.PreviewLimit)
		}
		resp.Cells = append(resp.Cells, cell)
	}

	writeJSON(w, http.StatusOK, resp)
}

// handleDay returns a day's events ordered by start, each flagged when it
// overlaps the one listed before it.
func (s *Server) handleDay(w http.ResponseWriter, r *http.Request) {
	key, err := datekey.Parse(chi.URLParam(r, "date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "date must be YYYY-MM-DD")
		return
	}

	idx, err := index.Build(s.filtered(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	day := idx.Day(key)
	flags, err := index.OverlapsPrevious(day)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	resp := dayResponse{
		Date:   key,
		Today:  grid.IsToday(key, s.today()),
		Events: make([]dayEventDTO, len(day)),
	}
	for i, ev := range day {
		resp.Events[i] = dayEventDTO{Event: ev, OverlapsPrevious: flags[i]}
		resp.Overlap = resp.Overlap || flags[i]
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, eventsResponse{Events: s.filtered(r)})
}

func (s *Server) handleCreateEvent(w http.ResponseWriter, r *http.Request) {
	var d agenda.Draft
	if err := decodeJSON(r, &d); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid JSON body")
		return
	}
	ev, err := s.agenda.Create(d)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	w.Header().Set("Location", "/api/events/"+ev.ID)
	writeJSON(w, http.StatusCreated, ev)
}

func (s *Server) handleUpdateEvent(w http.ResponseWriter, r *http.Request) {
	var d agenda.Draft
	if err := decodeJSON(r, &d); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid JSON body")
		return
	}
	ev, err := s.agenda.Update(chi.URLParam(r, "id"), d)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

func (s *Server) handleDeleteEvent(w http.ResponseWriter, r *http.Request) {
	if err := s.agenda.Delete(chi.URLParam(r, "id")); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleCheckConflict is a dry run of the create/edit conflict check. An
// overlap is a normal answer here, not an error.
func (s *Server) handleCheckConflict(w http.ResponseWriter, r *http.Request) {
	var req conflictRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid JSON body")
		return
	}

	err := s.agenda.Check(req.Draft, req.ExcludeID)
	if err == nil {
		writeJSON(w, http.StatusOK, conflictResponse{OK: true})
		return
	}
	var ce *agenda.ConflictError
	if errors.As(err, &ce) {
		existing := ce.Existing
		writeJSON(w, http.StatusOK, conflictResponse{OK: false, Conflict: &existing})
		return
	}
	writeDomainError(w, err)
}

func (s *Server) handleUpcoming(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", s.cfg.UpcomingLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "limit must be an integer")
		return
	}
	events, err := index.Upcoming(s.agenda.Snapshot().Events(), s.today(), limit)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, eventsResponse{Events: events})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, index.CountByCategory(s.filtered(r), s.cfg.Categories))
}

func (s *Server) handleExport(w http.ResponseWriter, _ *http.Request) {
	body, err := ics.Export(s.agenda.Snapshot().Events(), ics.ExportOptions{Stamp: s.now().UTC().Truncate(time.Second)})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "schedcal.ics"))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

// filtered applies the q and category query parameters to the current
// snapshot.
func (s *Server) filtered(r *http.Request) []model.Event {
	q := r.URL.Query()
	return index.FilterBy(s.agenda.Snapshot().Events(), q.Get("q"), q.Get("category"))
}
