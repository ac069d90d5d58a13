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

type RoleController struct {
	roles  services.RoleService
	logger *zap.Logger
}

func NewRoleController(roles services.RoleService, logger *zap.Logger) *RoleController {
	return &RoleController{roles: roles, logger: logger}
}

type RoleRequest struct {
	Principal string `json:"principal" description:"Principal receiving the role"`
	Role      string `json:"role" description:"admin, moderator or user"`
}

type RoleResponse struct {
	Principal string `json:"principal"`
	Role      string `json:"role"`
	HasRole   bool   `json:"has_role"`
}

func (ctl *RoleController) RegisterRoutes(ws *restful.WebService) {
	ws.Path("/roles").Consumes(restful.MIME_JSON).Produces(restful.MIME_JSON)
	tags := []string{"roles"}
	principalParam := ws.PathParameter("principal", "Principal holding the role").DataType("string")
	roleParam := ws.PathParameter("role", "Role name").DataType("string")

	ws.Route(ws.POST("").Filter(auth.AuthFilter()).To(ctl.assignHandler).
		Doc("Assign a role to a principal").
		Metadata(restfulspec.KeyOpenAPITags, tags).
		Reads(RoleRequest{}).
		Returns(http.StatusCreated, "Role assigned", RoleResponse{}).
		Returns(http.StatusBadRequest, "Invalid role", ErrorResponse{}).
		Returns(http.StatusUnauthorized, "Unauthorized", nil).
		Returns(http.StatusConflict, "Role already assigned", ErrorResponse{}).
		Returns(http.StatusPreconditionFailed, "Endpoint not set", ErrorResponse{}))

	ws.Route(ws.DELETE("/{principal}/{role}").Filter(auth.AuthFilter()).To(ctl.revokeHandler).
		Doc("Revoke a role from a principal").
		Param(principalParam).
		Param(roleParam).
		Metadata(restfulspec.KeyOpenAPITags, tags).
		Returns(http.StatusOK, "Role revoked", nil).
		Returns(http.StatusUnauthorized, "Unauthorized", nil).
		Returns(http.StatusNotFound, "Role not assigned", ErrorResponse{}).
		Returns(http.StatusPreconditionFailed, "Endpoint not set", ErrorResponse{}))

	ws.Route(ws.GET("/{principal}/{role}").To(ctl.hasRoleHandler).
		Doc("Check whether a principal holds a role").
		Param(principalParam).
		Param(roleParam).
		Metadata(restfulspec.KeyOpenAPITags, tags).
		Writes(RoleResponse{}).
		Returns(http.StatusOK, "Role checked", RoleResponse{}))
}

func (ctl *RoleController) assignHandler(request *restful.Request, response *restful.Response) {
	caller, ok := auth.Caller(request)
	if !ok {
		unauthorized(response)
		return
	}
	input := new(RoleRequest)
	if err := request.ReadEntity(input); err != nil {
		badRequest(response, "Invalid request body: "+err.Error())
		return
	}
	if input.Principal == "" {
		badRequest(response, "Principal is required")
		return
	}

	err := ctl.roles.AssignRole(request.Request.Context(), caller, models.Principal(input.Principal), models.Role(input.Role))
	if err != nil {
		handleServiceError(response, ctl.logger, err)
		return
	}
	_ = response.WriteHeaderAndJson(http.StatusCreated, RoleResponse{Principal: input.Principal, Role: input.Role, HasRole: true}, restful.MIME_JSON)
}

func (ctl *RoleController) revokeHandler(request *restful.Request, response *restful.Response) {
	caller, ok := auth.Caller(request)
	if !ok {
		unauthorized(response)
		return
	}
	target := models.Principal(request.PathParameter("principal"))
	role := models.Role(request.PathParameter("role"))

	if err := ctl.roles.RevokeRole(request.Request.Context(), caller, target, role); err != nil {
		handleServiceError(response, ctl.logger, err)
		return
	}
	response.WriteHeader(http.StatusOK)
}

func (ctl *RoleController) hasRoleHandler(request *restful.Request, response *restful.Response) {
	principal := request.PathParameter("principal")
	role := request.PathParameter("role")

	has, err := ctl.roles.HasRole(request.Request.Context(), models.Principal(principal), models.Role(role))
	if err != nil {
		handleServiceError(response, ctl.logger, err)
		return
	}
	_ = response.WriteHeaderAndJson(http.StatusOK, RoleResponse{Principal: principal, Role: role, HasRole: has}, restful.MIME_JSON)
}
