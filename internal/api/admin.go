package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"recordkit/internal/dsl"
)

type sweepReq struct {
	OlderThan string `json:"older_than"` // "30m", "2h"; пусто — из конфига
}

// POST /api/admin/sweep
func SweepHandler(s *Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req sweepReq
		if c.Request.ContentLength > 0 {
			if err := c.ShouldBindJSON(&req); err != nil {
				s.bindError(c, err)
				return
			}
		}
		age := s.sweepAge
		if v := strings.TrimSpace(req.OlderThan); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil || d <= 0 {
				c.JSON(http.StatusBadRequest, gin.H{"errors": []FieldError{
					ferr("validation_failed", "older_than", "older_than must be a positive duration"),
				}})
				return
			}
			age = d
		}
		n, err := s.objects.SweepUncommitted(c.Request.Context(), age)
		if err != nil {
			s.writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"removed": n, "older_than": age.String()})
	}
}

type applyReq struct {
	DSLRoot string `json:"dsl_root"` // директория с *.dsl
}

// POST /api/admin/apply — читает *.dsl и создаёт недостающие объекты и поля
func ApplyHandler(s *Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.applier == nil {
			c.JSON(http.StatusNotFound, gin.H{"errors": []FieldError{ferr("not_found", "", "schema apply is disabled")}})
			return
		}
		var req applyReq
		if c.Request.ContentLength > 0 {
			if err := c.ShouldBindJSON(&req); err != nil {
				s.bindError(c, err)
				return
			}
		}
		root := strings.TrimSpace(req.DSLRoot)
		if root == "" {
			root = s.dslRoot
		}

		objs, err := dsl.LoadAll(root)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"errors": []FieldError{ferr("dsl_invalid", "", err.Error())}})
			return
		}
		rep, err := s.applier.Apply(c.Request.Context(), objs, actorOf(c))
		if err != nil {
			s.writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"dsl_root": root,
			"created":  rep.Created,
			"fields":   rep.Fields,
			"skipped":  rep.Skipped,
		})
	}
}
