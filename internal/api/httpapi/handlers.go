package httpapi

import (
	"net/http"

	"github.com/BearBump/ParcelBox/internal/apperr"
	"github.com/BearBump/ParcelBox/internal/auth"
	"github.com/BearBump/ParcelBox/internal/models"
	"github.com/BearBump/ParcelBox/internal/services/inventory"
	"github.com/BearBump/ParcelBox/internal/services/users"
	"github.com/go-chi/chi/v5"
)

func identity(r *http.Request) (models.Identity, error) {
	id, ok := auth.FromContext(r.Context())
	if !ok || id.SupportID == "" {
		return models.Identity{}, apperr.New(apperr.KindUnauthenticated, apperr.CodeUnauthenticated, "authentication required")
	}
	return id, nil
}

// users

func (a *API) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decode(w, r, &req); err != nil {
		fail(w, r, err)
		return
	}
	u, err := a.users.Register(r.Context(), users.RegisterInput{
		Name:     req.Name,
		Phone:    req.Phone,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		fail(w, r, err)
		return
	}
	ok(w, http.StatusCreated, "user registered", u)
}

func (a *API) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decode(w, r, &req); err != nil {
		fail(w, r, err)
		return
	}
	sess, err := a.users.Login(r.Context(), req.Phone, req.Password)
	if err != nil {
		fail(w, r, err)
		return
	}
	ok(w, http.StatusOK, "login successful", sess)
}

func (a *API) userData(w http.ResponseWriter, r *http.Request) {
	id, err := identity(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	u, err := a.users.Profile(r.Context(), id.SupportID)
	if err != nil {
		fail(w, r, err)
		return
	}
	ok(w, http.StatusOK, "", u)
}

// devices

func (a *API) addDevice(w http.ResponseWriter, r *http.Request) {
	var req addDeviceRequest
	if err := decode(w, r, &req); err != nil {
		fail(w, r, err)
		return
	}
	d, err := a.inventory.AddDevice(r.Context(), req.DeviceName, req.InventoryFlag)
	if err != nil {
		fail(w, r, err)
		return
	}
	ok(w, http.StatusCreated, "device added", d)
}

func (a *API) allDevices(w http.ResponseWriter, r *http.Request) {
	ds, err := a.inventory.ListDevices(r.Context(), r.URL.Query().Get("status"))
	if err != nil {
		fail(w, r, err)
		return
	}
	ok(w, http.StatusOK, "", list(ds))
}

func (a *API) getDevice(w http.ResponseWriter, r *http.Request) {
	d, err := a.inventory.GetDevice(r.Context(), chi.URLParam(r, "deviceid"))
	if err != nil {
		fail(w, r, err)
		return
	}
	ok(w, http.StatusOK, "", d)
}

func (a *API) updateDevice(w http.ResponseWriter, r *http.Request) {
	id, err := identity(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	var req updateDeviceRequest
	if err := decode(w, r, &req); err != nil {
		fail(w, r, err)
		return
	}
	d, err := a.inventory.UpdateDevice(r.Context(), req.DeviceID, inventory.DevicePatch{
		DeviceName:    req.DeviceName,
		InventoryFlag: req.InventoryFlag,
		Status:        req.Status,
		AgentID:       req.AgentID,
		UserID:        req.UserID,
	}, id.SupportID)
	if err != nil {
		fail(w, r, err)
		return
	}
	ok(w, http.StatusOK, "device updated", d)
}

// accessories

func (a *API) allAccessories(w http.ResponseWriter, r *http.Request) {
	as, err := a.inventory.ListAccessories(r.Context())
	if err != nil {
		fail(w, r, err)
		return
	}
	ok(w, http.StatusOK, "", list(as))
}

func (a *API) getAccessory(w http.ResponseWriter, r *http.Request) {
	var req accessoryIDRequest
	if err := decode(w, r, &req); err != nil {
		fail(w, r, err)
		return
	}
	acc, err := a.inventory.GetAccessory(r.Context(), req.AccessoryID)
	if err != nil {
		fail(w, r, err)
		return
	}
	ok(w, http.StatusOK, "", acc)
}

func (a *API) addAccessory(w http.ResponseWriter, r *http.Request) {
	var req addAccessoryRequest
	if err := decode(w, r, &req); err != nil {
		fail(w, r, err)
		return
	}
	acc, err := a.inventory.AddAccessory(r.Context(), req.Name, req.Specs, *req.Quantity)
	if err != nil {
		fail(w, r, err)
		return
	}
	ok(w, http.StatusCreated, "accessory added", acc)
}
