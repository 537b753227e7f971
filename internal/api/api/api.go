package api

import (
	"github.com/gin-contrib/cors"
	"github.com/rs/zerolog"
	"github.com/wb-go/wbf/ginext"

	"regdesk/cmd/middleware"
	"regdesk/internal/service"
	"regdesk/internal/upi"
)

type Routers struct {
	Service service.Service
	UPI     *upi.Payee
	Log     *zerolog.Logger
	Mode    string
}

func NewRouters(r *Routers) *ginext.Engine {
	mode := r.Mode
	if mode == "" {
		mode = "release"
	}
	app := ginext.New(mode)
	h := &handlers{svc: r.Service, upi: r.UPI, log: r.Log}

	app.Use(middleware.LoggingMiddleware(r.Log))
	app.Use(cors.Default())

	app.GET("/health", h.health)

	apiGroup := app.Group("/v1")

	apiGroup.POST("/registrations", h.submit)
	apiGroup.GET("/registrations", h.list)
	apiGroup.GET("/has-registrations", h.hasRegistrations)
	apiGroup.POST("/registrations/validate-reference", h.validateReference)
	apiGroup.GET("/registrations/:ref", h.get)
	apiGroup.PUT("/registrations/:ref", h.update)
	apiGroup.DELETE("/registrations/:ref", h.delete)

	apiGroup.GET("/export/table", h.exportTable)
	apiGroup.GET("/export/spreadsheet", h.exportSpreadsheet)
	apiGroup.GET("/export/csv", h.exportCSV)

	apiGroup.GET("/upi/config", h.upiConfig)
	apiGroup.GET("/upi/qr", h.upiQR)

	return app
}
