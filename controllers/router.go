package controllers

import (
	"context"
	"net/http"

	"permledger/auth"
	"permledger/services"

	restfulspec "github.com/emicklei/go-restful-openapi/v2"
	restful "github.com/emicklei/go-restful/v3"
	"github.com/go-openapi/spec"
	"go.uber.org/zap"
)

// Options configures the REST container beyond the ledger itself.
type Options struct {
	Logger *zap.Logger
	// Credentials maps principals to bcrypt hashes for POST /login. With no
	// credentials the login route is not registered.
	Credentials map[string]string
	// HealthCheck backs GET /health; nil reports healthy.
	HealthCheck func(ctx context.Context) error
	// Metrics is mounted at /metrics when set.
	Metrics http.Handler
}

type HealthResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// NewContainer builds the REST API over ledger.
func NewContainer(ledger *services.Ledger, opts Options) *restful.Container {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	container := restful.NewContainer()
	container.Filter(RequestLogger(logger))

	type routes interface {
		RegisterRoutes(ws *restful.WebService)
	}
	for _, ctl := range []routes{
		NewSettingsController(ledger.Settings, logger),
		NewPermissionController(ledger.Permissions, logger),
		NewAccessController(ledger.Access, logger),
		NewRoleController(ledger.Roles, logger),
		NewAccountController(ledger.Accounts, logger),
	} {
		ws := new(restful.WebService)
		ctl.RegisterRoutes(ws)
		container.Add(ws)
	}

	if len(opts.Credentials) > 0 {
		ws := new(restful.WebService)
		ws.Path("/login").Consumes(restful.MIME_JSON).Produces(restful.MIME_JSON)
		ws.Route(ws.POST("").To(auth.LoginRouteHandler(opts.Credentials)).
			Doc("Exchange a principal's secret for a bearer token").
			Metadata(restfulspec.KeyOpenAPITags, []string{"auth"}).
			Reads(auth.LoginCredentials{}).
			Returns(http.StatusOK, "Token issued", auth.LoginResponse{}).
			Returns(http.StatusUnauthorized, "Invalid credentials", auth.LoginResponse{}))
		container.Add(ws)
	}

	health := new(restful.WebService)
	health.Path("/health").Produces(restful.MIME_JSON)
	health.Route(health.GET("").To(func(request *restful.Request, response *restful.Response) {
		if opts.HealthCheck != nil {
			if err := opts.HealthCheck(request.Request.Context()); err != nil {
				_ = response.WriteHeaderAndJson(http.StatusServiceUnavailable, HealthResponse{Status: "unavailable", Error: err.Error()}, restful.MIME_JSON)
				return
			}
		}
		_ = response.WriteHeaderAndJson(http.StatusOK, HealthResponse{Status: "ok"}, restful.MIME_JSON)
	}).
		Doc("Report service health").
		Metadata(restfulspec.KeyOpenAPITags, []string{"health"}).
		Returns(http.StatusOK, "Healthy", HealthResponse{}).
		Returns(http.StatusServiceUnavailable, "Unhealthy", HealthResponse{}))
	container.Add(health)

	if opts.Metrics != nil {
		container.Handle("/metrics", opts.Metrics)
	}

	container.Add(restfulspec.NewOpenAPIService(restfulspec.Config{
		WebServices:                   container.RegisteredWebServices(),
		APIPath:                       "/apidocs.json",
		PostBuildSwaggerObjectHandler: enrichSwaggerObject,
	}))
	return container
}

func enrichSwaggerObject(swo *spec.Swagger) {
	swo.Info = &spec.Info{
		InfoProps: spec.InfoProps{
			Title:       "Permission Ledger API",
			Description: "Grants, revokes and checks access permissions between principals.",
			Version:     "1.0",
		},
	}
	swo.SecurityDefinitions = spec.SecurityDefinitions{
		"bearer": spec.APIKeyAuth("Authorization", "header"),
	}
}
