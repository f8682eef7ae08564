package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/ukydev/fleet-backoffice/internal/activity"
	"github.com/ukydev/fleet-backoffice/internal/auth"
	"github.com/ukydev/fleet-backoffice/internal/httpx"
	"github.com/ukydev/fleet-backoffice/internal/middleware"
	"github.com/ukydev/fleet-backoffice/internal/models"
	"github.com/ukydev/fleet-backoffice/internal/notify"
	"github.com/ukydev/fleet-backoffice/internal/storage"
)

const (
	defaultRateLimit     = 100
	defaultAuthRateLimit = 20
)

// withDefaults fills optional collaborators with no-op implementations.
func (d *Deps) withDefaults() {
	if d.Denylist == nil {
		d.Denylist = auth.NewMemoryDenylist()
	}
	if d.Notifier == nil {
		d.Notifier = notify.Nop{}
	}
	if d.Events == nil {
		d.Events = activity.Nop{}
	}
	if d.Storage == nil {
		d.Storage = storage.Disabled{}
	}
	if d.Now == nil {
		d.Now = time.Now
	}
}

// NewRouter mounts the /api/v1 surface and /health. pinger may be nil.
func NewRouter(d *Deps, authMW *middleware.AuthMiddleware, pinger Pinger) http.Handler {
	d.withDefaults()
	limits := middleware.NewRateLimitMiddleware(d.Settings.RateLimitWindow)
	general, strict := d.Settings.RateLimitMax, d.Settings.AuthRateLimitMax
	if general <= 0 {
		general = defaultRateLimit
	}
	if strict <= 0 {
		strict = defaultAuthRateLimit
	}

	authH := NewAuthHandler(d)
	users := NewUserHandler(d)
	vehicles := NewVehicleHandler(d)
	trips := NewTripHandler(d)
	payments := NewPaymentHandler(d)
	maintenance := NewMaintenanceHandler(d)
	cities := NewCityHandler(d)
	expenses := NewExpenseHandler(d)
	advances := NewAdvanceHandler(d)
	calcs := NewDriverCalculationHandler(d)
	reportsH := NewReportHandler(d)

	perm := authMW.RequirePermission
	admin := authMW.RequireRole(models.RoleAdmin)

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(middleware.RequestLogger(d.Logger))
	r.Use(middleware.SecureHeaders(d.Settings.Production, d.Logger))

	r.Get("/health", Health(pinger, d.Now))
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httpx.Error(w, r, d.Logger, errNotFound)
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(limits.RateLimit(general))

		r.Route("/auth", func(r chi.Router) {
			r.Group(func(r chi.Router) {
				r.Use(limits.RateLimit(strict))
				r.Post("/register", authH.Register)
				r.Post("/login", authH.Login)
				r.Post("/forgot-password", authH.ForgotPassword)
				r.Post("/reset-password/{token}", authH.ResetPassword)
			})
			r.Get("/verify-email/{token}", authH.VerifyEmail)
			r.Group(func(r chi.Router) {
				r.Use(authMW.Authenticate)
				r.Post("/logout", authH.Logout)
				r.Get("/me", authH.Me)
				r.Patch("/me", authH.UpdateMe)
				r.Post("/change-password", authH.ChangePassword)
			})
		})

		r.Group(func(r chi.Router) {
			r.Use(authMW.Authenticate)

			r.Route("/users", func(r chi.Router) {
				r.Get("/{id}/ledger", users.Ledger)
				r.Group(func(r chi.Router) {
					r.Use(perm(models.ActionManageUsers))
					r.Get("/", users.List)
					r.Post("/", users.Create)
					r.Get("/{id}", users.Get)
					r.Patch("/{id}", users.Update)
					r.Delete("/{id}", users.Delete)
				})
			})

			r.Route("/vehicles", func(r chi.Router) {
				r.With(perm(models.ActionViewVehicles)).Get("/", vehicles.List)
				r.With(perm(models.ActionViewVehicles)).Get("/{id}", vehicles.Get)
				r.With(perm(models.ActionViewVehicles)).Get("/{id}/ledger", vehicles.Ledger)
				r.Group(func(r chi.Router) {
					r.Use(perm(models.ActionManageVehicles))
					r.Post("/", vehicles.Create)
					r.Patch("/{id}", vehicles.Update)
					r.Delete("/{id}", vehicles.Delete)
				})
			})

			r.Route("/trips", func(r chi.Router) {
				r.Use(perm(models.ActionViewTrips))
				r.Get("/", trips.List)
				r.With(perm(models.ActionCreateTrip)).Post("/", trips.Create)
				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", trips.Get)
					r.With(perm(models.ActionCreateTrip)).Patch("/", trips.Update)
					r.With(admin).Delete("/", trips.Delete)
					r.With(perm(models.ActionUpdateTrip)).Patch("/status", trips.ChangeStatus)

					r.With(perm(models.ActionUploadPOD)).Post("/pod", trips.UploadPOD)
					r.With(perm(models.ActionVerifyPOD)).Patch("/pod/verify", trips.VerifyPOD)
					r.With(perm(models.ActionVerifyPOD)).Patch("/pod/reject", trips.RejectPOD)

					r.Group(func(r chi.Router) {
						r.Use(perm(models.ActionManageLedger))
						r.Post("/clients", trips.AddClient)
						r.Delete("/clients/{index}", trips.RemoveClient)
						r.Post("/clients/{index}/advances", trips.AddClientAdvance)
						r.Delete("/clients/{index}/advances/{entryID}", trips.RemoveClientAdvance)
						r.Post("/clients/{index}/expenses", trips.AddClientExpense)
						r.Delete("/clients/{index}/expenses/{entryID}", trips.RemoveClientExpense)
						r.Put("/clients/{index}/argestment", trips.SetArgestment)
						r.Patch("/clients/{index}/pod", trips.SetClientPOD)
						r.Post("/owner-advances", trips.AddOwnerAdvance)
						r.Delete("/owner-advances/{entryID}", trips.RemoveOwnerAdvance)
						r.Post("/owner-expenses", trips.AddOwnerExpense)
						r.Delete("/owner-expenses/{entryID}", trips.RemoveOwnerExpense)
					})
				})
			})

			r.Route("/payments", func(r chi.Router) {
				r.With(perm(models.ActionViewPayments)).Get("/", payments.List)
				r.With(perm(models.ActionViewPayments)).Get("/{id}", payments.Get)
				r.With(perm(models.ActionManagePayments)).Post("/", payments.Create)
				r.With(perm(models.ActionManagePayments)).Delete("/{id}", payments.Delete)
			})

			r.Route("/maintenance", func(r chi.Router) {
				r.Use(perm(models.ActionManageMaintenance))
				r.Get("/", maintenance.List)
				r.Post("/", maintenance.Create)
				r.Get("/{id}", maintenance.Get)
				r.Patch("/{id}", maintenance.Update)
				r.Delete("/{id}", maintenance.Delete)
			})

			r.Route("/reports", func(r chi.Router) {
				r.Use(perm(models.ActionViewReports))
				r.Get("/activity", reportsH.ListActivity)
				r.Get("/trips/export", reportsH.ExportTrips)
			})

			r.Route("/cities", func(r chi.Router) {
				r.With(perm(models.ActionViewMasterData)).Get("/", cities.List)
				r.With(perm(models.ActionViewMasterData)).Get("/{id}", cities.Get)
				r.Group(func(r chi.Router) {
					r.Use(perm(models.ActionManageMasterData))
					r.Post("/", cities.Create)
					r.Patch("/{id}", cities.Update)
					r.Delete("/{id}", cities.Delete)
				})
			})

			r.Route("/expenses", func(r chi.Router) {
				r.Use(perm(models.ActionManageExpenses))
				r.Get("/", expenses.List)
				r.Post("/", expenses.Create)
				r.Get("/{id}", expenses.Get)
				r.Patch("/{id}", expenses.Update)
				r.Delete("/{id}", expenses.Delete)
				r.Post("/{id}/receipt", expenses.UploadReceipt)
			})

			r.Route("/advances", func(r chi.Router) {
				r.With(authMW.RequireRole(models.RoleAdmin, models.RoleDriver, models.RoleFleetOwner)).Get("/", advances.List)
				r.With(authMW.RequireRole(models.RoleAdmin, models.RoleDriver, models.RoleFleetOwner)).Get("/{id}", advances.Get)
				r.Group(func(r chi.Router) {
					r.Use(perm(models.ActionManagePayments))
					r.Post("/", advances.Create)
					r.Patch("/{id}", advances.Update)
					r.Delete("/{id}", advances.Delete)
				})
			})

			r.Route("/driver-calculations", func(r chi.Router) {
				r.With(authMW.RequireRole(models.RoleAdmin, models.RoleDriver)).Get("/", calcs.List)
				r.With(authMW.RequireRole(models.RoleAdmin, models.RoleDriver)).Get("/{id}", calcs.Get)
				r.With(perm(models.ActionManagePayments)).Post("/", calcs.Create)
				r.With(perm(models.ActionManagePayments)).Delete("/{id}", calcs.Delete)
			})
		})
	})
	return r
}
