package toys

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"toybox-backend/internal/collection/situation"
)

type Handler struct{ svc *Service }

func RegisterRoutes(r gin.IRoutes, svc *Service) {
	h := &Handler{svc: svc}

	r.POST("/toys", h.Register)
	r.GET("/toys", h.List)
	r.GET("/toys/:key", h.Get)
	r.PUT("/toys/:key", h.Update)
	r.PUT("/toys/:key/tag", h.Retag)
	r.DELETE("/toys/:key", h.Delete)
}

// ---------- handlers ----------

// POST /toys
// @Summary トイ登録（未登録タグのスキャン後に呼ぶ）
func (h *Handler) Register(c *gin.Context) {
	var req CreateToyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, apiErr(CodeInvalidArgument, "invalid json or missing required fields"))
		return
	}
	res, err := h.svc.Register(c.Request.Context(), req)
	if err != nil {
		c.JSON(toHTTPStatus(err), apiErrFrom(err))
		return
	}
	c.Header("Location", "/toys/"+res.ToyULID)
	c.JSON(http.StatusCreated, res)
}

// GET /toys/:key
func (h *Handler) Get(c *gin.Context) {
	res, err := h.svc.GetByKey(c.Request.Context(), c.Param("key"))
	if err != nil {
		c.JSON(toHTTPStatus(err), apiErrFrom(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

// GET /toys?situation=&tag_id=&sleeping=&limit=&offset=&order=
func (h *Handler) List(c *gin.Context) {
	var q ListQuery
	if v := c.Query("tag_id"); v != "" {
		q.TagID = &v
	}
	if v := c.Query("sleeping"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			q.Sleeping = &b
		}
	}
	if v := c.Query("situation"); v != "" {
		st := situation.Situation(strings.ToUpper(v))
		switch st {
		case situation.Home, situation.Out, situation.Lost, situation.Sleeping:
			q.Situation = &st
		default:
			c.JSON(http.StatusBadRequest, apiErr(CodeInvalidArgument, "situation must be HOME, OUT, LOST or SLEEPING"))
			return
		}
	}
	p := Page{
		Limit:  atoiDef(c.Query("limit"), DefaultPageLimit),
		Offset: atoiDef(c.Query("offset"), 0),
		Order:  strings.ToLower(c.DefaultQuery("order", "desc")),
	}
	items, total, err := h.svc.List(c.Request.Context(), q, p)
	if err != nil {
		c.JSON(toHTTPStatus(err), apiErrFrom(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items, "total": total, "next_offset": nextOffset(total, p)})
}

// PUT /toys/:key
func (h *Handler) Update(c *gin.Context) {
	var req UpdateToyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, apiErr(CodeInvalidArgument, "invalid json"))
		return
	}
	res, err := h.svc.Update(c.Request.Context(), c.Param("key"), req)
	if err != nil {
		c.JSON(toHTTPStatus(err), apiErrFrom(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

// PUT /toys/:key/tag
func (h *Handler) Retag(c *gin.Context) {
	var req RetagRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, apiErr(CodeInvalidArgument, "invalid json"))
		return
	}
	res, err := h.svc.Retag(c.Request.Context(), c.Param("key"), req)
	if err != nil {
		c.JSON(toHTTPStatus(err), apiErrFrom(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

// DELETE /toys/:key
func (h *Handler) Delete(c *gin.Context) {
	if err := h.svc.Delete(c.Request.Context(), c.Param("key")); err != nil {
		c.JSON(toHTTPStatus(err), apiErrFrom(err))
		return
	}
	c.Status(http.StatusNoContent)
}

// ---------- helpers ----------

func atoiDef(s string, d int) int {
	if s == "" {
		return d
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return d
	}
	return v
}

func nextOffset(total int64, p Page) *int {
	n := p.Offset + p.Limit
	if int64(n) >= total {
		return nil
	}
	return &n
}

type errorDTO struct {
	Error struct {
		Code    Code   `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func apiErr(code Code, msg string) errorDTO {
	var e errorDTO
	e.Error.Code = code
	e.Error.Message = msg
	return e
}

func apiErrFrom(err error) errorDTO {
	if api, ok := err.(*APIError); ok {
		return apiErr(api.Code, api.Message)
	}
	return apiErr(CodeInternal, err.Error())
}
