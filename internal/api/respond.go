package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/Divas-Gupta30/ragflow/internal/apperr"
	"github.com/Divas-Gupta30/ragflow/internal/storage"
)

const maxBodyBytes = 1 << 20

type errorBody struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"request_id"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := apperr.Status(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal server error"
	}
	writeJSON(w, status, errorBody{Error: msg, Code: code, RequestID: RequestID(r.Context())})
}

// decodeJSON reads a bounded JSON body into v. Failures are invalid input.
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: request body is empty", apperr.ErrInvalidInput)
		}
		return fmt.Errorf("%w: %v", apperr.ErrInvalidInput, err)
	}
	return nil
}

// Paginated is the list envelope for paged endpoints.
type Paginated struct {
	Items      interface{} `json:"items"`
	Total      int         `json:"total"`
	Page       int         `json:"page"`
	PerPage    int         `json:"per_page"`
	TotalPages int         `json:"total_pages"`
}

// pageParams reads page (1-based) and per_page, clamping per_page to 1..100.
func pageParams(r *http.Request) (page, perPage int) {
	page, perPage = 1, 10
	q := r.URL.Query()
	if v, err := strconv.Atoi(q.Get("page")); err == nil {
		page = v
	}
	if v, err := strconv.Atoi(q.Get("per_page")); err == nil {
		perPage = v
	}
	page = max(page, 1)
	perPage = min(max(perPage, 1), 100)
	return page, perPage
}

func toPage(page, perPage int) storage.Page {
	return storage.Page{Offset: (page - 1) * perPage, Limit: perPage}
}

func paginated(items interface{}, total, page, perPage int) Paginated {
	return Paginated{
		Items:      items,
		Total:      total,
		Page:       page,
		PerPage:    perPage,
		TotalPages: (total + perPage - 1) / perPage,
	}
}
