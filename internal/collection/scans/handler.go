package scans

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"toybox-backend/internal/collection/situation"
)

type Handler struct{ svc *Service }

func RegisterRoutes(r gin.IRoutes, svc *Service) {
	h := &Handler{svc: svc}

	// 1. スキャン起点（NFC端末からの読み取りを受ける）
	// POST /scans
	r.POST("/scans", h.HandleScan)
	// GET /scans (履歴)
	r.GET("/scans", h.ListScans)

	// 2. 操作適用（スキャン結果のアクションメニューから）
	// POST /toys/:key/actions
	r.POST("/toys/:key/actions", h.ApplyAction)
	// GET /toys/:key/history (操作履歴)
	r.GET("/toys/:key/history", h.ListToyHistory)
}

// ---------- handlers ----------

// POST /scans
// @Summary NFCスキャン1回分を処理する（未登録判定・アクションメニュー生成）
func (h *Handler) HandleScan(c *gin.Context) {
	var req HandleScanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, apiErr(CodeInvalidArgument, "invalid json or missing tag_id"))
		return
	}
	res, err := h.svc.HandleScan(c.Request.Context(), req)
	if err != nil {
		c.JSON(toHTTPStatus(err), apiErrFrom(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

// POST /toys/:key/actions
func (h *Handler) ApplyAction(c *gin.Context) {
	var req ApplyActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, apiErr(CodeInvalidArgument, "invalid json or missing action"))
		return
	}
	res, err := h.svc.ApplyAction(c.Request.Context(), c.Param("key"), req)
	if err != nil {
		c.JSON(toHTTPStatus(err), apiErrFrom(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

// GET /scans?tag_id=&duplicate_only=&from=&to=&limit=&offset=&order=
func (h *Handler) ListScans(c *gin.Context) {
	f := ScanFilter{}
	if v := c.Query("tag_id"); v != "" {
		f.TagID = &v
	}
	if v := c.Query("duplicate_only"); v == "true" || v == "1" {
		f.DuplicateOnly = true
	}
	if v := c.Query("from"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			f.From = &t
		}
	}
	if v := c.Query("to"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			f.To = &t
		}
	}
	p := pageFromQuery(c)
	res, total, err := h.svc.ListScans(c.Request.Context(), f, p)
	if err != nil {
		c.JSON(toHTTPStatus(err), apiErrFrom(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": res, "total": total, "next_offset": nextOffset(total, p)})
}

// GET /toys/:key/history
func (h *Handler) ListToyHistory(c *gin.Context) {
	p := pageFromQuery(c)
	res, total, err := h.svc.ListToyHistory(c.Request.Context(), c.Param("key"), p)
	if err != nil {
		c.JSON(toHTTPStatus(err), apiErrFrom(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": res, "total": total, "next_offset": nextOffset(total, p)})
}

// ---------- helpers ----------

func pageFromQuery(c *gin.Context) Page {
	return Page{
		Limit:  atoiDef(c.Query("limit"), DefaultPageLimit),
		Offset: atoiDef(c.Query("offset"), 0),
		Order:  strings.ToLower(c.DefaultQuery("order", "desc")),
	}
}

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
		Code             Code                `json:"code"`
		Message          string              `json:"message"`
		Action           situation.Action    `json:"action,omitempty"`
		CurrentSituation situation.Situation `json:"current_situation,omitempty"`
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
		e := apiErr(api.Code, api.Message)
		e.Error.Action = api.Action
		e.Error.CurrentSituation = api.CurrentSituation
		return e
	}
	return apiErr(CodeInternal, err.Error())
}
