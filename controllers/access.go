package controllers

import (
	"net/http"

	"permledger/models"
	"permledger/services"

	restfulspec "github.com/emicklei/go-restful-openapi/v2"
	restful "github.com/emicklei/go-restful/v3"
	"go.uber.org/zap"
)

type AccessController struct {
	access services.AccessService
	logger *zap.Logger
}

func NewAccessController(access services.AccessService, logger *zap.Logger) *AccessController {
	return &AccessController{access: access, logger: logger}
}

type AccessResponse struct {
	User      string `json:"user"`
	Authority string `json:"authority"`
	HasAccess bool   `json:"has_access"`
}

func (ctl *AccessController) RegisterRoutes(ws *restful.WebService) {
	ws.Path("/access").Produces(restful.MIME_JSON)

	ws.Route(ws.GET("").To(ctl.hasAccessHandler).
		Doc("Check whether an authority holds a valid grant from a user").
		Param(ws.QueryParameter("user", "Granting user").DataType("string").Required(true)).
		Param(ws.QueryParameter("authority", "Authority to check").DataType("string").Required(true)).
		Metadata(restfulspec.KeyOpenAPITags, []string{"access"}).
		Writes(AccessResponse{}).
		Returns(http.StatusOK, "Access evaluated", AccessResponse{}).
		Returns(http.StatusBadRequest, "Missing user or authority", ErrorResponse{}))
}

func (ctl *AccessController) hasAccessHandler(request *restful.Request, response *restful.Response) {
	user := request.QueryParameter("user")
	authority := request.QueryParameter("authority")
	if user == "" || authority == "" {
		badRequest(response, "Query parameters user and authority are required")
		return
	}

	ok, err := ctl.access.HasAccess(request.Request.Context(), models.Principal(user), models.Principal(authority))
	if err != nil {
		handleServiceError(response, ctl.logger, err)
		return
	}
	_ = response.WriteHeaderAndJson(http.StatusOK, AccessResponse{User: user, Authority: authority, HasAccess: ok}, restful.MIME_JSON)
}
