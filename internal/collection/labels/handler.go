package labels

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type Handler struct{ svc *Service }

func RegisterRoutes(r gin.IRoutes, svc *Service) {
	h := &Handler{svc: svc}
	// GET /labels/toys.csv?charset=cp932|utf-8
	r.GET("/labels/toys.csv", h.ExportCSV)
}

func (h *Handler) ExportCSV(c *gin.Context) {
	charset := c.DefaultQuery("charset", CharsetCP932)
	data, err := h.svc.ExportCSV(c.Request.Context(), charset)
	if err != nil {
		c.JSON(toHTTPStatus(err), gin.H{"error": err.Error()})
		return
	}

	ct := "text/csv; charset=Shift_JIS"
	if charset == CharsetUTF8 {
		ct = "text/csv; charset=utf-8"
	}
	c.Header("Content-Disposition", `attachment; filename="toys.csv"`)
	c.Data(http.StatusOK, ct, data)
}
