package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"bj-service/internal/middleware"
	"bj-service/internal/service"
	"bj-service/internal/service/game"
	usersvc "bj-service/internal/service/user"
	walletsvc "bj-service/internal/service/wallet"
	"bj-service/internal/ws"
	appErr "bj-service/pkg/errors"
	"bj-service/pkg/response"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	services *service.Container
}

func RegisterRoutes(r *gin.Engine, services *service.Container) {
	handler := &Handler{services: services}
	wsHandler := ws.NewHandler(services.Game)

	r.GET("/ping", func(c *gin.Context) {
		response.Success(c, gin.H{"message": "pong"})
	})

	v1 := r.Group("/bjService/v1")
	{
		authGroup := v1.Group("/auth")
		{
			authGroup.POST("/register", handler.Register)
			authGroup.POST("/login", handler.Login)
		}

		userGroup := v1.Group("/user")
		userGroup.Use(middleware.AuthRequired())
		{
			userGroup.GET("/profile", handler.GetProfile)
			userGroup.PUT("/profile", handler.UpdateProfile)
		}

		walletGroup := v1.Group("/wallet")
		walletGroup.Use(middleware.AuthRequired())
		{
			walletGroup.GET("", handler.GetWallet)
			walletGroup.GET("/logs", handler.ListBillingLogs)
		}

		tableGroup := v1.Group("/tables")
		tableGroup.Use(middleware.AuthRequired())
		{
			tableGroup.GET("", handler.ListTables)
			tableGroup.POST("", handler.CreateTable)
			tableGroup.GET("/:id/state", handler.TableState)
			tableGroup.GET("/:id/rounds", handler.TableRounds)
			tableGroup.POST("/:id/commands", handler.TableCommand)
		}

		v1.GET("/codes/:code", middleware.AuthRequired(), handler.FindTableByCode)

		matchGroup := v1.Group("/match")
		matchGroup.Use(middleware.AuthRequired())
		{
			matchGroup.POST("/join", handler.MatchJoin)
			matchGroup.POST("/cancel", handler.MatchCancel)
			matchGroup.GET("/status", handler.MatchStatus)
		}
	}

	adminGroup := r.Group("/admin")
	{
		adminGroup.POST("/auth/login", handler.AdminLogin)

		protected := adminGroup.Group("/")
		protected.Use(middleware.AdminAuthRequired())
		{
			protected.GET("/users", handler.AdminListUsers)
			protected.PUT("/users/:id/ban", handler.AdminBanUser)
			protected.PUT("/users/:id/wallet", handler.AdminSetUserWallet)

			protected.DELETE("/tables/:id", handler.AdminCloseTable)

			protected.GET("/incidents", handler.AdminListIncidents)
			protected.POST("/incidents/:id/resolve", handler.AdminResolveIncident)
		}
	}

	r.GET("/ws/table/:tableId", wsHandler.HandleTableWS)
}

type credentialsBody struct {
	Nickname string `json:"nickname" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type updateProfileBody struct {
	Nickname string `json:"nickname" binding:"required"`
}

type createTableBody struct {
	Name string `json:"name"`
}

type commandBody struct {
	Command string `json:"command" binding:"required"`
}

type adminLoginBody struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type adminUserBanBody struct {
	Status string `json:"status" binding:"required"`
	Reason string `json:"reason"`
}

type adminSetWalletBody struct {
	Balance *int64 `json:"balance"`
}

func (h *Handler) Register(c *gin.Context) {
	var body credentialsBody
	if err := c.ShouldBindJSON(&body); err != nil {
		response.Error(c, http.StatusBadRequest, err.Error())
		return
	}
	resp, err := h.services.Auth.Register(c.Request.Context(), body.Nickname, body.Password)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, resp)
}

func (h *Handler) Login(c *gin.Context) {
	var body credentialsBody
	if err := c.ShouldBindJSON(&body); err != nil {
		response.Error(c, http.StatusBadRequest, err.Error())
		return
	}
	resp, err := h.services.Auth.Login(c.Request.Context(), body.Nickname, body.Password)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, resp)
}

func (h *Handler) GetProfile(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, "unauthorized")
		return
	}
	profile, err := h.services.User.GetProfile(c.Request.Context(), userID)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, profile)
}

func (h *Handler) UpdateProfile(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, "unauthorized")
		return
	}
	var body updateProfileBody
	if err := c.ShouldBindJSON(&body); err != nil {
		response.Error(c, http.StatusBadRequest, err.Error())
		return
	}
	profile, err := h.services.User.UpdateNickname(c.Request.Context(), userID, body.Nickname)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, profile)
}

func (h *Handler) GetWallet(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, "unauthorized")
		return
	}
	wallet, err := h.services.Wallet.GetWallet(c.Request.Context(), userID)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, err.Error())
		return
	}
	response.Success(c, gin.H{"wallet": wallet})
}

func (h *Handler) ListBillingLogs(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, "unauthorized")
		return
	}
	limit, err := parsePositiveIntQuery(c, "limit", 20)
	if err != nil {
		response.Error(c, http.StatusBadRequest, err.Error())
		return
	}
	logs, err := h.services.Wallet.ListBillingLogs(c.Request.Context(), userID, limit)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, err.Error())
		return
	}
	response.Success(c, gin.H{"items": logs})
}

func (h *Handler) ListTables(c *gin.Context) {
	tables, err := h.services.Game.ListTables(c.Request.Context())
	if err != nil {
		response.Error(c, http.StatusInternalServerError, err.Error())
		return
	}
	response.Success(c, gin.H{"tables": tables})
}

func (h *Handler) CreateTable(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, "unauthorized")
		return
	}
	var body createTableBody
	if err := c.ShouldBindJSON(&body); err != nil && !errors.Is(err, io.EOF) {
		response.Error(c, http.StatusBadRequest, err.Error())
		return
	}
	table, err := h.services.Game.CreateTable(c.Request.Context(), userID, body.Name)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, err.Error())
		return
	}
	response.Success(c, gin.H{"id": strconv.FormatInt(table.ID, 10), "joinCode": table.JoinCode})
}

func (h *Handler) FindTableByCode(c *gin.Context) {
	table, err := h.services.Game.FindByJoinCode(c.Request.Context(), c.Param("code"))
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, gin.H{"id": strconv.FormatInt(table.ID, 10), "name": table.Name, "status": table.Status})
}

func (h *Handler) TableState(c *gin.Context) {
	rt, ok := h.loadRuntime(c)
	if !ok {
		return
	}
	response.Success(c, rt.State())
}

func (h *Handler) TableRounds(c *gin.Context) {
	tableID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || tableID <= 0 {
		response.Error(c, http.StatusBadRequest, "invalid table id")
		return
	}
	limit, err := parsePositiveIntQuery(c, "limit", 20)
	if err != nil {
		response.Error(c, http.StatusBadRequest, err.Error())
		return
	}
	rounds, err := h.services.Game.ListRounds(c.Request.Context(), tableID, limit)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, err.Error())
		return
	}
	response.Success(c, gin.H{"items": rounds})
}

// TableCommand is the HTTP twin of the websocket channel for clients that
// poll. A rejected command is a normal response with accepted=false.
func (h *Handler) TableCommand(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, "unauthorized")
		return
	}
	var body commandBody
	if err := c.ShouldBindJSON(&body); err != nil {
		response.Error(c, http.StatusBadRequest, err.Error())
		return
	}
	rt, ok := h.loadRuntime(c)
	if !ok {
		return
	}
	kind, err := game.ParseCommand(body.Command)
	if err != nil {
		response.Error(c, http.StatusBadRequest, err.Error())
		return
	}
	accepted, err := rt.HandleCommand(c.Request.Context(), game.Command{
		Kind:     kind,
		PlayerID: userID,
		Name:     c.GetString(middleware.ContextNicknameKey),
	})
	if err != nil && (errors.Is(err, appErr.ErrTableFaulted) || errors.Is(err, appErr.ErrTableClosed)) {
		response.Fail(c, err)
		return
	}
	data := gin.H{"accepted": accepted, "state": rt.State()}
	if err != nil {
		// Accepted but a ledger call failed; the round went on.
		data["warning"] = err.Error()
	}
	response.Success(c, data)
}

func (h *Handler) MatchJoin(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, "unauthorized")
		return
	}
	if err := h.services.Match.JoinQueue(c.Request.Context(), userID, c.GetString(middleware.ContextNicknameKey)); err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, gin.H{"status": "queued"})
}

func (h *Handler) MatchCancel(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, "unauthorized")
		return
	}
	if err := h.services.Match.CancelQueue(c.Request.Context(), userID, "user_cancel"); err != nil {
		response.Fail(c, err)
		return
	}
	response.SuccessWithMsg(c, gin.H{"status": "cancelled"}, "")
}

func (h *Handler) MatchStatus(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, "unauthorized")
		return
	}
	status, err := h.services.Match.GetStatus(c.Request.Context(), userID)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, status)
}

func (h *Handler) AdminLogin(c *gin.Context) {
	var body adminLoginBody
	if err := c.ShouldBindJSON(&body); err != nil {
		response.Error(c, http.StatusBadRequest, err.Error())
		return
	}
	resp, err := h.services.Admin.Login(c.Request.Context(), body.Username, body.Password)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, resp)
}

func (h *Handler) AdminListUsers(c *gin.Context) {
	page, err := parsePositiveIntQuery(c, "page", 1)
	if err != nil {
		response.Error(c, http.StatusBadRequest, err.Error())
		return
	}
	size, err := parsePositiveIntQuery(c, "size", 20)
	if err != nil {
		response.Error(c, http.StatusBadRequest, err.Error())
		return
	}
	status := strings.ToLower(strings.TrimSpace(c.Query("status")))
	if status != "" && status != "normal" && status != "banned" {
		response.Error(c, http.StatusBadRequest, "invalid status filter")
		return
	}

	result, err := h.services.User.AdminListUsers(c.Request.Context(), usersvc.AdminListUsersFilter{
		Page:            page,
		Size:            size,
		Status:          status,
		NicknameKeyword: c.Query("nickname"),
	})
	if err != nil {
		response.Error(c, http.StatusInternalServerError, err.Error())
		return
	}
	response.Success(c, gin.H{
		"items": result.Items,
		"total": result.Total,
		"page":  page,
		"size":  size,
	})
}

func (h *Handler) AdminBanUser(c *gin.Context) {
	userID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var body adminUserBanBody
	if err := c.ShouldBindJSON(&body); err != nil {
		response.Error(c, http.StatusBadRequest, err.Error())
		return
	}
	updated, err := h.services.User.AdminUpdateUserStatus(c.Request.Context(), userID, body.Status, body.Reason)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, gin.H{"user": updated})
}

func (h *Handler) AdminSetUserWallet(c *gin.Context) {
	userID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var body adminSetWalletBody
	if err := c.ShouldBindJSON(&body); err != nil {
		response.Error(c, http.StatusBadRequest, err.Error())
		return
	}
	wallet, err := h.services.Wallet.AdminSetWallet(c.Request.Context(), getAdminID(c), userID, walletsvc.AdminSetWalletRequest{
		Balance: body.Balance,
	})
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, gin.H{"wallet": wallet})
}

func (h *Handler) AdminCloseTable(c *gin.Context) {
	tableID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	if err := h.services.Game.CloseTable(c.Request.Context(), tableID); err != nil {
		response.Fail(c, err)
		return
	}
	response.SuccessWithMsg(c, gin.H{}, "table closed")
}

func (h *Handler) AdminListIncidents(c *gin.Context) {
	limit, err := parsePositiveIntQuery(c, "limit", 50)
	if err != nil {
		response.Error(c, http.StatusBadRequest, err.Error())
		return
	}
	items, err := h.services.Admin.ListIncidents(c.Request.Context(), c.Query("status"), limit)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, err.Error())
		return
	}
	response.Success(c, gin.H{"items": items})
}

func (h *Handler) AdminResolveIncident(c *gin.Context) {
	incidentID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	incident, err := h.services.Admin.ResolveIncident(c.Request.Context(), getAdminID(c), incidentID)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, gin.H{"incident": incident})
}

func (h *Handler) loadRuntime(c *gin.Context) (*game.TableRuntime, bool) {
	tableID, ok := parseIDParam(c, "id")
	if !ok {
		return nil, false
	}
	rt, err := h.services.Game.GetRuntime(c.Request.Context(), tableID)
	if err != nil {
		response.Fail(c, err)
		return nil, false
	}
	return rt, true
}

func parseIDParam(c *gin.Context, key string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(key), 10, 64)
	if err != nil || id <= 0 {
		response.Error(c, http.StatusBadRequest, fmt.Sprintf("invalid %s", key))
		return 0, false
	}
	return id, true
}

func parsePositiveIntQuery(c *gin.Context, key string, defaultVal int) (int, error) {
	val := c.Query(key)
	if val == "" {
		return defaultVal, nil
	}
	parsed, err := strconv.Atoi(val)
	if err != nil || parsed <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return parsed, nil
}

func getUserID(c *gin.Context) (int64, bool) {
	v, ok := c.Get(middleware.ContextUserIDKey)
	if !ok {
		return 0, false
	}
	id, ok := v.(int64)
	return id, ok
}

func getAdminID(c *gin.Context) int64 {
	return c.GetInt64(middleware.ContextAdminIDKey)
}
