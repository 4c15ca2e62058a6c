package httpapi

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/BearBump/ParcelBox/internal/auth"
	"github.com/BearBump/ParcelBox/internal/metrics"
	"github.com/BearBump/ParcelBox/internal/services/inventory"
	"github.com/BearBump/ParcelBox/internal/services/parcels"
	"github.com/BearBump/ParcelBox/internal/services/tickets"
	"github.com/BearBump/ParcelBox/internal/services/tracking"
	"github.com/BearBump/ParcelBox/internal/services/users"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	httpSwagger "github.com/swaggo/http-swagger"
)

type API struct {
	users     *users.Service
	inventory *inventory.Service
	parcels   *parcels.Service
	tracking  *tracking.Service
	tickets   *tickets.Service
}

func New(u *users.Service, inv *inventory.Service, p *parcels.Service, tr *tracking.Service, tk *tickets.Service) *API {
	return &API{users: u, inventory: inv, parcels: p, tracking: tr, tickets: tk}
}

type Options struct {
	Guard          *auth.Guard
	Metrics        *metrics.Collector
	RequestTimeout time.Duration
	// SwaggerPath enables /swagger.json and /docs when set.
	SwaggerPath string
	// Ready reports dependency health for /healthz. Nil means always healthy.
	Ready func(r *http.Request) error
}

func (a *API) Router(opts Options) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(accessLog(opts.Metrics))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if opts.Ready != nil {
			if err := opts.Ready(r); err != nil {
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", opts.Metrics.Handler())
	if opts.SwaggerPath != "" {
		mountDocs(r, opts.SwaggerPath)
	}

	bearer := opts.Guard.RequireAuth(fail)

	r.Group(func(r chi.Router) {
		r.Use(requestTimeout(opts.RequestTimeout))

		r.Route("/user", func(r chi.Router) {
			r.Post("/register", a.register)
			r.Post("/login", a.login)
			r.With(bearer).Get("/userdata", a.userData)
		})

		r.Route("/device", func(r chi.Router) {
			r.With(bearer).Post("/adddevice", a.addDevice)
			r.Get("/alldevices", a.allDevices)
			r.With(bearer).Post("/updatedevice", a.updateDevice)
			r.Get("/{deviceid}", a.getDevice)
		})

		r.Route("/accessory", func(r chi.Router) {
			r.Get("/allaccessory", a.allAccessories)
			r.Post("/accessoriesid", a.getAccessory)
			r.With(bearer).Post("/addaccessory", a.addAccessory)
		})

		r.Route("/parcel", func(r chi.Router) {
			r.With(bearer).Post("/addparcel", a.addParcel)
			r.With(bearer).Post("/Updateparcel", a.updateParcel)
			r.Get("/allparcels", a.allParcels)
			r.With(bearer).Get("/userparcels", a.userParcels)
			r.Get("/search", a.searchParcels)
			r.Post("/parcelNumber", a.getParcel)
			r.Post("/updatestatus", a.updateParcelStatus)
			r.Post("/agentidstatus", a.agentParcels)
		})

		r.Route("/tracking", func(r chi.Router) {
			r.Post("/generate", a.generateTracking)
			r.Post("/parcelNumber", a.currentTracking)
		})

		r.Route("/tickets", func(r chi.Router) {
			r.Post("/requestParcel", a.requestParcel)
			r.With(bearer).Post("/updatestatus", a.assignTicket)
			r.With(bearer).Post("/chat", a.ticketChat)
			r.Post("/ticketNumber", a.getTicket)
			r.Get("/alltickets", a.allTickets)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, envelope{Status: statusError, Message: "route not found", StatusCode: http.StatusNotFound, Code: "ROUTE_NOT_FOUND"})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, envelope{Status: statusError, Message: "method not allowed", StatusCode: http.StatusMethodNotAllowed, Code: "METHOD_NOT_ALLOWED"})
	})
	return r
}

func mountDocs(r chi.Router, swaggerPath string) {
	r.Get("/swagger.json", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store")
		http.ServeFile(w, r, swaggerPath)
	})

	swaggerURL := "/swagger.json"
	if fi, err := os.Stat(swaggerPath); err == nil {
		swaggerURL = fmt.Sprintf("/swagger.json?v=%d", fi.ModTime().Unix())
	}
	r.Get("/docs/*", httpSwagger.Handler(httpSwagger.URL(swaggerURL)))
}
