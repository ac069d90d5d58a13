package controllers

import (
	"net/http"

	"permledger/models"
	"permledger/services"

	restfulspec "github.com/emicklei/go-restful-openapi/v2"
	restful "github.com/emicklei/go-restful/v3"
	"go.uber.org/zap"
)

type AccountController struct {
	accounts services.AccountService
	logger   *zap.Logger
}

func NewAccountController(accounts services.AccountService, logger *zap.Logger) *AccountController {
	return &AccountController{accounts: accounts, logger: logger}
}

type BalanceResponse struct {
	Principal string `json:"principal"`
	Balance   uint64 `json:"balance"`
}

func (ctl *AccountController) RegisterRoutes(ws *restful.WebService) {
	ws.Path("/accounts").Produces(restful.MIME_JSON)

	ws.Route(ws.GET("/{principal}").To(ctl.balanceHandler).
		Doc("Get the balance of a principal").
		Param(ws.PathParameter("principal", "Account holder").DataType("string")).
		Metadata(restfulspec.KeyOpenAPITags, []string{"accounts"}).
		Writes(BalanceResponse{}).
		Returns(http.StatusOK, "Balance", BalanceResponse{}))
}

func (ctl *AccountController) balanceHandler(request *restful.Request, response *restful.Response) {
	principal := request.PathParameter("principal")
	balance, err := ctl.accounts.Balance(request.Request.Context(), models.Principal(principal))
	if err != nil {
		handleServiceError(response, ctl.logger, err)
		return
	}
	_ = response.WriteHeaderAndJson(http.StatusOK, BalanceResponse{Principal: principal, Balance: balance}, restful.MIME_JSON)
}
