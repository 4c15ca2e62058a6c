package httpapi

import (
	"net/http"

	"github.com/BearBump/ParcelBox/internal/models"
)

func (a *API) addParcel(w http.ResponseWriter, r *http.Request) {
	id, err := identity(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	var req addParcelRequest
	if err := decode(w, r, &req); err != nil {
		fail(w, r, err)
		return
	}
	p, err := a.parcels.CreateParcel(r.Context(), models.ParcelCreateInput{
		PickupLocation: req.PickupLocation,
		Destination:    req.Destination,
		AgentID:        req.AgentID,
		DeviceIDs:      req.Devices,
		Accessories:    req.Accessories,
		Sender:         req.Sender,
		Receiver:       req.Receiver,
		IdempotencyKey: requestKey(r, req.IdempotencyKey),
	}, id.SupportID)
	if err != nil {
		fail(w, r, err)
		return
	}
	ok(w, http.StatusCreated, "parcel created", p)
}

func (a *API) updateParcel(w http.ResponseWriter, r *http.Request) {
	id, err := identity(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	var req updateParcelRequest
	if err := decode(w, r, &req); err != nil {
		fail(w, r, err)
		return
	}
	p, err := a.parcels.AppendToParcel(r.Context(), models.ParcelAppendInput{
		ParcelNumber:   req.ParcelNumber,
		AgentID:        req.AgentID,
		DeviceIDs:      req.Devices,
		Accessories:    req.Accessories,
		IdempotencyKey: requestKey(r, req.IdempotencyKey),
	}, id.SupportID)
	if err != nil {
		fail(w, r, err)
		return
	}
	ok(w, http.StatusOK, "parcel updated", p)
}

// requestKey prefers the body field over the Idempotency-Key header.
func requestKey(r *http.Request, body string) string {
	if body != "" {
		return body
	}
	return r.Header.Get("Idempotency-Key")
}

func (a *API) allParcels(w http.ResponseWriter, r *http.Request) {
	ps, err := a.parcels.ListActive(r.Context())
	if err != nil {
		fail(w, r, err)
		return
	}
	ok(w, http.StatusOK, "", list(ps))
}

func (a *API) userParcels(w http.ResponseWriter, r *http.Request) {
	id, err := identity(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	ps, err := a.parcels.ListBySupport(r.Context(), id.SupportID)
	if err != nil {
		fail(w, r, err)
		return
	}
	ok(w, http.StatusOK, "", list(ps))
}

func (a *API) searchParcels(w http.ResponseWriter, r *http.Request) {
	ps, err := a.parcels.Search(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		fail(w, r, err)
		return
	}
	ok(w, http.StatusOK, "", list(ps))
}

func (a *API) getParcel(w http.ResponseWriter, r *http.Request) {
	var req parcelNumberRequest
	if err := decode(w, r, &req); err != nil {
		fail(w, r, err)
		return
	}
	p, err := a.parcels.Get(r.Context(), req.ParcelNumber)
	if err != nil {
		fail(w, r, err)
		return
	}
	ok(w, http.StatusOK, "", p)
}

func (a *API) updateParcelStatus(w http.ResponseWriter, r *http.Request) {
	var req updateStatusRequest
	if err := decode(w, r, &req); err != nil {
		fail(w, r, err)
		return
	}
	res, err := a.parcels.AdvanceStatus(r.Context(), req.ParcelNumber, req.Status)
	if err != nil {
		fail(w, r, err)
		return
	}
	msg := "status updated"
	if res.Warning != "" {
		msg = "status updated, " + res.Warning
	}
	ok(w, http.StatusOK, msg, res)
}

func (a *API) agentParcels(w http.ResponseWriter, r *http.Request) {
	var req agentParcelsRequest
	if err := decode(w, r, &req); err != nil {
		fail(w, r, err)
		return
	}
	ps, err := a.parcels.ListByAgent(r.Context(), req.AgentID, req.Status)
	if err != nil {
		fail(w, r, err)
		return
	}
	ok(w, http.StatusOK, "", list(ps))
}

// tracking

func (a *API) generateTracking(w http.ResponseWriter, r *http.Request) {
	var req parcelNumberRequest
	if err := decode(w, r, &req); err != nil {
		fail(w, r, err)
		return
	}
	rec, err := a.tracking.Generate(r.Context(), req.ParcelNumber)
	if err != nil {
		fail(w, r, err)
		return
	}
	ok(w, http.StatusCreated, "tracking generated", rec)
}

func (a *API) currentTracking(w http.ResponseWriter, r *http.Request) {
	var req parcelNumberRequest
	if err := decode(w, r, &req); err != nil {
		fail(w, r, err)
		return
	}
	v, err := a.tracking.ResolveCurrent(r.Context(), req.ParcelNumber)
	if err != nil {
		fail(w, r, err)
		return
	}
	ok(w, http.StatusOK, "", v)
}
