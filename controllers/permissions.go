package controllers

import (
	"net/http"
	"strconv"
	"time"

	"permledger/auth"
	"permledger/models"
	"permledger/services"

	restfulspec "github.com/emicklei/go-restful-openapi/v2"
	restful "github.com/emicklei/go-restful/v3"
	"go.uber.org/zap"
)

type PermissionController struct {
	permissions services.PermissionService
	logger      *zap.Logger
}

func NewPermissionController(permissions services.PermissionService, logger *zap.Logger) *PermissionController {
	return &PermissionController{permissions: permissions, logger: logger}
}

// PermissionResponse defines the response structure of a permission
type PermissionResponse struct {
	ID             uint64    `json:"id"`
	User           string    `json:"user"`
	Authority      string    `json:"authority"`
	Granted        bool      `json:"granted"`
	Status         bool      `json:"status"`
	CrisisID       *uint64   `json:"crisis_id,omitempty"`
	Timestamp      uint64    `json:"timestamp"`
	Expiry         *uint64   `json:"expiry,omitempty"`
	PermissionType string    `json:"permission_type"`
	Scope          string    `json:"scope"`
	Level          uint64    `json:"level"`
	Location       string    `json:"location"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

type GrantResponse struct {
	ID uint64 `json:"id"`
}

type PaginatedPermissionsResponse struct {
	Permissions []PermissionResponse `json:"permissions"`
	Total       int64                `json:"total"`
	Page        int                  `json:"page"`
	PageSize    int                  `json:"page_size"`
}

// --- Helper to map model to response ---
func mapPermissionResponse(p *models.Permission) PermissionResponse {
	return PermissionResponse{
		ID:             p.ID,
		User:           p.User.String(),
		Authority:      p.Authority.String(),
		Granted:        p.Granted,
		Status:         p.Status,
		CrisisID:       p.CrisisID,
		Timestamp:      p.Timestamp,
		Expiry:         p.Expiry,
		PermissionType: string(p.PermissionType),
		Scope:          p.Scope,
		Level:          p.Level,
		Location:       p.Location,
		CreatedAt:      p.CreatedAt,
		UpdatedAt:      p.UpdatedAt,
	}
}

// RegisterRoutes sets up the permission routes for a go-restful WebService.
func (ctl *PermissionController) RegisterRoutes(ws *restful.WebService) {
	ws.Path("/permissions").Consumes(restful.MIME_JSON).Produces(restful.MIME_JSON)
	tags := []string{"permissions"}
	idParam := ws.PathParameter("permission-id", "Identifier of the permission").DataType("integer")

	ws.Route(ws.POST("").Filter(auth.AuthFilter()).To(ctl.grantHandler).
		Doc("Grant a permission from the caller to an authority").
		Metadata(restfulspec.KeyOpenAPITags, tags).
		Reads(services.GrantInput{}).
		Returns(http.StatusCreated, "Permission granted", GrantResponse{}).
		Returns(http.StatusBadRequest, "Invalid grant", ErrorResponse{}).
		Returns(http.StatusUnauthorized, "Unauthorized", nil).
		Returns(http.StatusPaymentRequired, "Fee transfer failed", ErrorResponse{}).
		Returns(http.StatusConflict, "Duplicate or capacity reached", ErrorResponse{}).
		Returns(http.StatusPreconditionFailed, "Endpoint not set", ErrorResponse{}))

	ws.Route(ws.PUT("/{permission-id}").Filter(auth.AuthFilter()).To(ctl.updateHandler).
		Doc("Update a permission owned by the caller").
		Param(idParam).
		Metadata(restfulspec.KeyOpenAPITags, tags).
		Reads(services.UpdateInput{}).
		Returns(http.StatusOK, "Permission updated", PermissionResponse{}).
		Returns(http.StatusBadRequest, "Invalid request body or permission ID", ErrorResponse{}).
		Returns(http.StatusUnauthorized, "Unauthorized", nil).
		Returns(http.StatusForbidden, "Caller does not own the permission", ErrorResponse{}).
		Returns(http.StatusNotFound, "Permission not found", ErrorResponse{}))

	ws.Route(ws.DELETE("/authorities/{authority}").Filter(auth.AuthFilter()).To(ctl.revokeHandler).
		Doc("Revoke the caller's permission to an authority").
		Param(ws.PathParameter("authority", "Authority holding the permission").DataType("string")).
		Metadata(restfulspec.KeyOpenAPITags, tags).
		Returns(http.StatusOK, "Permission revoked", nil).
		Returns(http.StatusUnauthorized, "Unauthorized", nil).
		Returns(http.StatusNotFound, "Permission not found", ErrorResponse{}))

	ws.Route(ws.GET("/{permission-id}").To(ctl.getPermissionHandler).
		Doc("Get a permission by ID").
		Param(idParam).
		Metadata(restfulspec.KeyOpenAPITags, tags).
		Writes(PermissionResponse{}).
		Returns(http.StatusOK, "Permission found", PermissionResponse{}).
		Returns(http.StatusNotFound, "Permission not found", ErrorResponse{}))

	ws.Route(ws.GET("/{permission-id}/history").To(ctl.getHistoryHandler).
		Doc("Get the last update applied to a permission").
		Param(idParam).
		Metadata(restfulspec.KeyOpenAPITags, tags).
		Writes(models.PermissionUpdate{}).
		Returns(http.StatusOK, "Update found", models.PermissionUpdate{}).
		Returns(http.StatusNotFound, "Permission never updated", ErrorResponse{}))

	ws.Route(ws.GET("").To(ctl.listPermissionsHandler).
		Doc("List the permissions a user has issued").
		Param(ws.QueryParameter("user", "Issuing user").DataType("string").Required(true)).
		Param(ws.QueryParameter("page", "Page number (default 1)").DataType("integer").DefaultValue("1")).
		Param(ws.QueryParameter("page_size", "Permissions per page (default 10)").DataType("integer").DefaultValue("10")).
		Metadata(restfulspec.KeyOpenAPITags, tags).
		Writes(PaginatedPermissionsResponse{}).
		Returns(http.StatusOK, "Permissions listed", PaginatedPermissionsResponse{}).
		Returns(http.StatusBadRequest, "Missing user", ErrorResponse{}))
}

func permissionID(request *restful.Request) (uint64, bool) {
	id, err := strconv.ParseUint(request.PathParameter("permission-id"), 10, 64)
	return id, err == nil
}

// grantHandler (Handles POST /permissions)
func (ctl *PermissionController) grantHandler(request *restful.Request, response *restful.Response) {
	caller, ok := auth.Caller(request)
	if !ok {
		unauthorized(response)
		return
	}
	input := new(services.GrantInput)
	if err := request.ReadEntity(input); err != nil {
		badRequest(response, "Invalid request body: "+err.Error())
		return
	}

	id, err := ctl.permissions.Grant(request.Request.Context(), caller, *input)
	if err != nil {
		handleServiceError(response, ctl.logger, err)
		return
	}
	_ = response.WriteHeaderAndJson(http.StatusCreated, GrantResponse{ID: id}, restful.MIME_JSON)
}

// updateHandler (Handles PUT /permissions/{permission-id})
func (ctl *PermissionController) updateHandler(request *restful.Request, response *restful.Response) {
	id, ok := permissionID(request)
	if !ok {
		badRequest(response, "Invalid permission ID format")
		return
	}
	caller, ok := auth.Caller(request)
	if !ok {
		unauthorized(response)
		return
	}
	input := new(services.UpdateInput)
	if err := request.ReadEntity(input); err != nil {
		badRequest(response, "Invalid request body: "+err.Error())
		return
	}

	ctx := request.Request.Context()
	if err := ctl.permissions.Update(ctx, caller, id, *input); err != nil {
		handleServiceError(response, ctl.logger, err)
		return
	}
	permission, err := ctl.permissions.Permission(ctx, id)
	if err != nil {
		handleServiceError(response, ctl.logger, err)
		return
	}
	_ = response.WriteHeaderAndJson(http.StatusOK, mapPermissionResponse(permission), restful.MIME_JSON)
}

// revokeHandler (Handles DELETE /permissions/authorities/{authority})
func (ctl *PermissionController) revokeHandler(request *restful.Request, response *restful.Response) {
	caller, ok := auth.Caller(request)
	if !ok {
		unauthorized(response)
		return
	}
	authority := models.Principal(request.PathParameter("authority"))

	if err := ctl.permissions.Revoke(request.Request.Context(), caller, authority); err != nil {
		handleServiceError(response, ctl.logger, err)
		return
	}
	response.WriteHeader(http.StatusOK)
}

// getPermissionHandler (Handles GET /permissions/{permission-id})
func (ctl *PermissionController) getPermissionHandler(request *restful.Request, response *restful.Response) {
	id, ok := permissionID(request)
	if !ok {
		badRequest(response, "Invalid permission ID format")
		return
	}
	permission, err := ctl.permissions.Permission(request.Request.Context(), id)
	if err != nil {
		handleServiceError(response, ctl.logger, err)
		return
	}
	_ = response.WriteHeaderAndJson(http.StatusOK, mapPermissionResponse(permission), restful.MIME_JSON)
}

// getHistoryHandler (Handles GET /permissions/{permission-id}/history)
func (ctl *PermissionController) getHistoryHandler(request *restful.Request, response *restful.Response) {
	id, ok := permissionID(request)
	if !ok {
		badRequest(response, "Invalid permission ID format")
		return
	}
	update, err := ctl.permissions.UpdateRecord(request.Request.Context(), id)
	if err != nil {
		handleServiceError(response, ctl.logger, err)
		return
	}
	_ = response.WriteHeaderAndJson(http.StatusOK, update, restful.MIME_JSON)
}

// listPermissionsHandler (Handles GET /permissions)
func (ctl *PermissionController) listPermissionsHandler(request *restful.Request, response *restful.Response) {
	user := request.QueryParameter("user")
	if user == "" {
		badRequest(response, "Query parameter user is required")
		return
	}

	page, err := strconv.Atoi(request.QueryParameter("page"))
	if err != nil || page < 1 {
		page = 1
	}
	pageSize, err := strconv.Atoi(request.QueryParameter("page_size"))
	if err != nil || pageSize < 1 {
		pageSize = 10
	}

	permissions, total, err := ctl.permissions.PermissionsByUser(request.Request.Context(), models.Principal(user), page, pageSize)
	if err != nil {
		handleServiceError(response, ctl.logger, err)
		return
	}

	responses := make([]PermissionResponse, len(permissions))
	for i := range permissions {
		responses[i] = mapPermissionResponse(&permissions[i])
	}
	_ = response.WriteHeaderAndJson(http.StatusOK, PaginatedPermissionsResponse{
		Permissions: responses,
		Total:       total,
		Page:        page,
		PageSize:    pageSize,
	}, restful.MIME_JSON)
}
