package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"auditflow/backend/internal/server/httpx"
)

func (a *API) timeline(w http.ResponseWriter, r *http.Request) {
	limit, err := queryLimit(r)
	if err != nil {
		badRequest(w, err)
		return
	}
	t, err := a.projection.Timeline(r.Context(), chi.URLParam(r, "id"), r.URL.Query().Get("category"), limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, t)
}

func (a *API) chain(w http.ResponseWriter, r *http.Request) {
	c, err := a.projection.Chain(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, c)
}

func (a *API) verifyChain(w http.ResponseWriter, r *http.Request) {
	v, err := a.projection.Verify(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, v)
}

func (a *API) dashboard(w http.ResponseWriter, r *http.Request) {
	d, err := a.projection.Dashboard(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, d)
}

func (a *API) notifications(w http.ResponseWriter, r *http.Request) {
	limit, err := queryLimit(r)
	if err != nil {
		badRequest(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"notifications": a.projection.Notifications(chi.URLParam(r, "id"), limit),
	})
}

func (a *API) entityHistory(w http.ResponseWriter, r *http.Request) {
	h, err := a.projection.EntityHistory(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, h)
}
