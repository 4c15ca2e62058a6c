package httpapi

import (
	"net/http"

	"github.com/BearBump/ParcelBox/internal/models"
)

func (a *API) requestParcel(w http.ResponseWriter, r *http.Request) {
	var req requestParcelRequest
	if err := decode(w, r, &req); err != nil {
		fail(w, r, err)
		return
	}
	t, err := a.tickets.RequestParcel(r.Context(), models.TicketCreateInput{
		Type:             req.Type,
		AgentID:          req.AgentID,
		DevicesRequested: req.DevicesRequested,
		Accessories:      req.Accessories,
	})
	if err != nil {
		fail(w, r, err)
		return
	}
	ok(w, http.StatusCreated, "ticket opened", t)
}

func (a *API) assignTicket(w http.ResponseWriter, r *http.Request) {
	id, err := identity(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	var req ticketNumberRequest
	if err := decode(w, r, &req); err != nil {
		fail(w, r, err)
		return
	}
	t, err := a.tickets.Assign(r.Context(), req.TicketNumber, id.SupportID)
	if err != nil {
		fail(w, r, err)
		return
	}
	ok(w, http.StatusOK, "ticket assigned", t)
}

func (a *API) ticketChat(w http.ResponseWriter, r *http.Request) {
	id, err := identity(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	var req chatRequest
	if err := decode(w, r, &req); err != nil {
		fail(w, r, err)
		return
	}
	t, err := a.tickets.AddChatMessage(r.Context(), req.TicketNumber, id.SupportID, req.Message)
	if err != nil {
		fail(w, r, err)
		return
	}
	ok(w, http.StatusOK, "message added", t)
}

func (a *API) getTicket(w http.ResponseWriter, r *http.Request) {
	var req ticketNumberRequest
	if err := decode(w, r, &req); err != nil {
		fail(w, r, err)
		return
	}
	t, err := a.tickets.Get(r.Context(), req.TicketNumber)
	if err != nil {
		fail(w, r, err)
		return
	}
	ok(w, http.StatusOK, "", t)
}

func (a *API) allTickets(w http.ResponseWriter, r *http.Request) {
	ts, err := a.tickets.List(r.Context(), r.URL.Query().Get("status"))
	if err != nil {
		fail(w, r, err)
		return
	}
	ok(w, http.StatusOK, "", list(ts))
}
