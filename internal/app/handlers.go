package app

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/goccy/go-json"
	"github.com/gorilla/mux"

	"github.com/workledger/workledger/pkg/backend"
	"github.com/workledger/workledger/pkg/constants"
	"github.com/workledger/workledger/pkg/models"
	"github.com/workledger/workledger/pkg/store"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

func (a *App) handleHealth(w http.ResponseWriter, r *http.Request) {
	rep := a.reg.Snapshot()
	status, code := "unavailable", http.StatusServiceUnavailable
	for _, s := range rep.Stores {
		if s.Enabled && s.Status != backend.StatusOffline {
			status, code = "healthy", http.StatusOK
			break
		}
	}
	active, ok := rep.Store(rep.ActiveStoreID)
	respondJSON(w, code, map[string]any{
		"status":        status,
		"activeStoreId": rep.ActiveStoreID,
		"degraded":      ok && active.Kind == backend.KindDegradedStub,
		"readOnly":      a.IsReadOnly(),
		"version":       Version().String(),
		"time":          a.clock.Now().Unix(),
	})
}

func (a *App) handleStatus(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, a.reg.Snapshot())
}

func parseKind(r *http.Request) (models.Kind, error) {
	return models.ParseKind(mux.Vars(r)["kind"])
}

func parseID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: bad id %q", constants.ErrInvalidEntity, mux.Vars(r)["id"])
	}
	return id, nil
}

func decodeBody(w http.ResponseWriter, r *http.Request, target any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(target); err != nil {
		return fmt.Errorf("%w: %v", constants.ErrInvalidEntity, err)
	}
	return nil
}

func decodeEntity(w http.ResponseWriter, r *http.Request, kind models.Kind) (models.Entity, error) {
	e, err := models.New(kind)
	if err != nil {
		return nil, err
	}
	if err := decodeBody(w, r, e); err != nil {
		return nil, err
	}
	return e, nil
}

func (a *App) handleList(w http.ResponseWriter, r *http.Request) {
	kind, err := parseKind(r)
	if err != nil {
		a.respondErr(w, r, err)
		return
	}
	var page models.Page
	q := r.URL.Query()
	for name, dst := range map[string]*int{"offset": &page.Offset, "limit": &page.Limit} {
		v := q.Get(name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			respondError(w, http.StatusBadRequest, fmt.Sprintf("invalid %s %q", name, v))
			return
		}
		*dst = n
	}

	list, res, err := backend.Query(r.Context(), a.reg, "list_"+string(kind),
		func(ctx context.Context, s store.Store) ([]models.Entity, error) {
			return s.List(ctx, kind, page.Normalize())
		})
	if err != nil {
		a.respondErr(w, r, err)
		return
	}
	markServed(w, res)
	respondJSON(w, http.StatusOK, list)
}

func (a *App) handleGet(w http.ResponseWriter, r *http.Request) {
	kind, err := parseKind(r)
	if err != nil {
		a.respondErr(w, r, err)
		return
	}
	id, err := parseID(r)
	if err != nil {
		a.respondErr(w, r, err)
		return
	}

	e, res, err := backend.Query(r.Context(), a.reg, "get_"+string(kind),
		func(ctx context.Context, s store.Store) (models.Entity, error) {
			return s.Get(ctx, kind, id)
		})
	if err != nil {
		a.respondErr(w, r, err)
		return
	}
	markServed(w, res)
	if e == nil {
		respondError(w, http.StatusNotFound, fmt.Sprintf("%s %d not found", kind, id))
		return
	}
	respondJSON(w, http.StatusOK, e)
}

func (a *App) handleCreate(w http.ResponseWriter, r *http.Request) {
	kind, err := parseKind(r)
	if err != nil {
		a.respondErr(w, r, err)
		return
	}
	e, err := decodeEntity(w, r, kind)
	if err != nil {
		a.respondErr(w, r, err)
		return
	}
	if err := models.Validate(e); err != nil {
		a.respondErr(w, r, err)
		return
	}

	created, res, err := backend.Query(r.Context(), a.reg, "create_"+string(kind),
		func(ctx context.Context, s store.Store) (models.Entity, error) {
			c := models.Clone(e)
			return c, s.Insert(ctx, c)
		})
	if err != nil {
		a.respondErr(w, r, err)
		return
	}
	markServed(w, res)
	respondJSON(w, http.StatusCreated, created)
}

func (a *App) handleUpdate(w http.ResponseWriter, r *http.Request) {
	kind, err := parseKind(r)
	if err != nil {
		a.respondErr(w, r, err)
		return
	}
	id, err := parseID(r)
	if err != nil {
		a.respondErr(w, r, err)
		return
	}
	e, err := decodeEntity(w, r, kind)
	if err != nil {
		a.respondErr(w, r, err)
		return
	}
	e.SetEntityID(id)
	if err := models.Validate(e); err != nil {
		a.respondErr(w, r, err)
		return
	}

	updated, res, err := backend.Query(r.Context(), a.reg, "update_"+string(kind),
		func(ctx context.Context, s store.Store) (models.Entity, error) {
			c := models.Clone(e)
			return c, s.Update(ctx, c)
		})
	if err != nil {
		a.respondErr(w, r, err)
		return
	}
	markServed(w, res)
	respondJSON(w, http.StatusOK, updated)
}

func (a *App) handleDelete(w http.ResponseWriter, r *http.Request) {
	kind, err := parseKind(r)
	if err != nil {
		a.respondErr(w, r, err)
		return
	}
	id, err := parseID(r)
	if err != nil {
		a.respondErr(w, r, err)
		return
	}

	res, err := a.reg.Execute(r.Context(), "delete_"+string(kind), func(ctx context.Context, s store.Store) (any, error) {
		return nil, s.Delete(ctx, kind, id)
	})
	if err != nil {
		a.respondErr(w, r, err)
		return
	}
	markServed(w, res)
	w.WriteHeader(http.StatusNoContent)
}

type transferRequest struct {
	CompanyID int64  `json:"companyId"`
	Position  string `json:"position"`
}

// handleTransfer moves an employee to another company in one handle. Documents
// filed under the employee follow them.
func (a *App) handleTransfer(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		a.respondErr(w, r, err)
		return
	}
	var req transferRequest
	if err := decodeBody(w, r, &req); err != nil {
		a.respondErr(w, r, err)
		return
	}
	if req.CompanyID <= 0 {
		respondError(w, http.StatusBadRequest, "companyId is required")
		return
	}

	h, err := a.reg.Acquire(r.Context())
	if err != nil {
		a.respondErr(w, r, err)
		return
	}
	defer func() { _ = h.Release() }()

	emp, err := transfer(r.Context(), h, id, req)
	if err != nil {
		a.respondErr(w, r, err)
		return
	}
	if err := h.Commit(r.Context()); err != nil {
		a.respondErr(w, r, err)
		return
	}
	markServed(w, backend.Result{StoreID: h.StoreID, Degraded: h.Degraded})
	respondJSON(w, http.StatusOK, emp)
}

func transfer(ctx context.Context, s store.Store, employeeID int64, req transferRequest) (*models.Employee, error) {
	e, err := s.Get(ctx, models.KindEmployee, employeeID)
	if err != nil {
		return nil, err
	}
	emp, ok := e.(*models.Employee)
	if !ok {
		return nil, fmt.Errorf("%w: employee %d", constants.ErrNotFound, employeeID)
	}
	company, err := s.Get(ctx, models.KindCompany, req.CompanyID)
	if err != nil {
		return nil, err
	}
	if company == nil {
		return nil, fmt.Errorf("%w: company %d", constants.ErrNotFound, req.CompanyID)
	}

	emp.CompanyID = req.CompanyID
	if req.Position != "" {
		emp.Position = req.Position
	}
	if err := s.Update(ctx, emp); err != nil {
		return nil, err
	}

	page := models.Page{Limit: constants.MaxPageLimit}
	for {
		docs, err := s.List(ctx, models.KindDocument, page)
		if err != nil {
			return nil, err
		}
		for _, d := range docs {
			doc := d.(*models.Document)
			if doc.EmployeeID != employeeID || doc.CompanyID == req.CompanyID {
				continue
			}
			doc.CompanyID = req.CompanyID
			if err := s.Update(ctx, doc); err != nil {
				return nil, err
			}
		}
		if len(docs) < page.Limit {
			return emp, nil
		}
		page.Offset += page.Limit
	}
}
