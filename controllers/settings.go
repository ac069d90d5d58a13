package controllers

import (
	"net/http"

	"permledger/auth"
	"permledger/models"
	"permledger/services"

	restfulspec "github.com/emicklei/go-restful-openapi/v2"
	restful "github.com/emicklei/go-restful/v3"
	"go.uber.org/zap"
)

type SettingsController struct {
	settings services.SettingsService
	logger   *zap.Logger
}

func NewSettingsController(settings services.SettingsService, logger *zap.Logger) *SettingsController {
	return &SettingsController{settings: settings, logger: logger}
}

type SettingsResponse struct {
	AuthorityEndpoint string `json:"authority_endpoint,omitempty"`
	EndpointSet       bool   `json:"endpoint_set"`
	Capacity          uint64 `json:"capacity"`
	Fee               uint64 `json:"fee"`
	NextID            uint64 `json:"next_id"`
}

type EndpointRequest struct {
	Endpoint string `json:"endpoint" description:"Principal that receives grant fees"`
}

type CapacityRequest struct {
	Capacity int64 `json:"capacity" description:"Ceiling on the number of permissions ever issued"`
}

type FeeRequest struct {
	Fee int64 `json:"fee" description:"Amount charged for each grant"`
}

func mapSettingsResponse(s *models.LedgerSettings) SettingsResponse {
	resp := SettingsResponse{
		EndpointSet: s.EndpointSet(),
		Capacity:    s.Capacity,
		Fee:         s.Fee,
		NextID:      s.NextID,
	}
	if s.EndpointSet() {
		resp.AuthorityEndpoint = s.AuthorityEndpoint.String()
	}
	return resp
}

// RegisterRoutes sets up the settings routes for a go-restful WebService.
func (ctl *SettingsController) RegisterRoutes(ws *restful.WebService) {
	ws.Path("/settings").Consumes(restful.MIME_JSON).Produces(restful.MIME_JSON)
	tags := []string{"settings"}

	ws.Route(ws.GET("").To(ctl.getSettingsHandler).
		Doc("Get the ledger settings").
		Metadata(restfulspec.KeyOpenAPITags, tags).
		Writes(SettingsResponse{}).
		Returns(http.StatusOK, "Current settings", SettingsResponse{}))

	ws.Route(ws.PUT("/endpoint").Filter(auth.AuthFilter()).To(ctl.setEndpointHandler).
		Doc("Set the authority endpoint once").
		Metadata(restfulspec.KeyOpenAPITags, tags).
		Reads(EndpointRequest{}).
		Returns(http.StatusOK, "Endpoint set", SettingsResponse{}).
		Returns(http.StatusBadRequest, "Invalid endpoint", ErrorResponse{}).
		Returns(http.StatusUnauthorized, "Unauthorized", nil).
		Returns(http.StatusPreconditionFailed, "Endpoint already set", ErrorResponse{}))

	ws.Route(ws.PUT("/capacity").Filter(auth.AuthFilter()).To(ctl.setCapacityHandler).
		Doc("Replace the permission capacity").
		Metadata(restfulspec.KeyOpenAPITags, tags).
		Reads(CapacityRequest{}).
		Returns(http.StatusOK, "Capacity set", SettingsResponse{}).
		Returns(http.StatusBadRequest, "Invalid capacity", ErrorResponse{}).
		Returns(http.StatusUnauthorized, "Unauthorized", nil).
		Returns(http.StatusPreconditionFailed, "Endpoint not set", ErrorResponse{}))

	ws.Route(ws.PUT("/fee").Filter(auth.AuthFilter()).To(ctl.setFeeHandler).
		Doc("Replace the grant fee").
		Metadata(restfulspec.KeyOpenAPITags, tags).
		Reads(FeeRequest{}).
		Returns(http.StatusOK, "Fee set", SettingsResponse{}).
		Returns(http.StatusBadRequest, "Invalid fee", ErrorResponse{}).
		Returns(http.StatusUnauthorized, "Unauthorized", nil).
		Returns(http.StatusPreconditionFailed, "Endpoint not set", ErrorResponse{}))
}

func (ctl *SettingsController) getSettingsHandler(request *restful.Request, response *restful.Response) {
	settings, err := ctl.settings.Settings(request.Request.Context())
	if err != nil {
		handleServiceError(response, ctl.logger, err)
		return
	}
	_ = response.WriteHeaderAndJson(http.StatusOK, mapSettingsResponse(settings), restful.MIME_JSON)
}

func (ctl *SettingsController) setEndpointHandler(request *restful.Request, response *restful.Response) {
	caller, ok := auth.Caller(request)
	if !ok {
		unauthorized(response)
		return
	}
	input := new(EndpointRequest)
	if err := request.ReadEntity(input); err != nil {
		badRequest(response, "Invalid request body: "+err.Error())
		return
	}
	if input.Endpoint == "" {
		badRequest(response, "Endpoint is required")
		return
	}

	err := ctl.settings.SetAuthorityEndpoint(request.Request.Context(), caller, models.Principal(input.Endpoint))
	if err != nil {
		handleServiceError(response, ctl.logger, err)
		return
	}
	ctl.getSettingsHandler(request, response)
}

func (ctl *SettingsController) setCapacityHandler(request *restful.Request, response *restful.Response) {
	caller, ok := auth.Caller(request)
	if !ok {
		unauthorized(response)
		return
	}
	input := new(CapacityRequest)
	if err := request.ReadEntity(input); err != nil {
		badRequest(response, "Invalid request body: "+err.Error())
		return
	}

	if err := ctl.settings.SetCapacity(request.Request.Context(), caller, input.Capacity); err != nil {
		handleServiceError(response, ctl.logger, err)
		return
	}
	ctl.getSettingsHandler(request, response)
}

func (ctl *SettingsController) setFeeHandler(request *restful.Request, response *restful.Response) {
	caller, ok := auth.Caller(request)
	if !ok {
		unauthorized(response)
		return
	}
	input := new(FeeRequest)
	if err := request.ReadEntity(input); err != nil {
		badRequest(response, "Invalid request body: "+err.Error())
		return
	}

	if err := ctl.settings.SetFee(request.Request.Context(), caller, input.Fee); err != nil {
		handleServiceError(response, ctl.logger, err)
		return
	}
	ctl.getSettingsHandler(request, response)
}
