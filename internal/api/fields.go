package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"recordkit/internal/schema"
)

// POST /api/objects/:object/fields
func DefineFieldHandler(s *Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		var spec schema.FieldSpec
		if err := c.ShouldBindJSON(&spec); err != nil {
			s.bindError(c, err)
			return
		}
		obj, err := s.resolveObject(ctx, c.Param("object"))
		if err != nil {
			s.writeError(c, err)
			return
		}
		f, err := s.fields.DefineField(ctx, obj.ID, spec)
		if err != nil {
			s.writeError(c, err)
			return
		}
		c.JSON(http.StatusCreated, f)
	}
}

// GET /api/objects/:object/fields
func ListFieldsHandler(s *Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		obj, err := s.resolveObject(ctx, c.Param("object"))
		if err != nil {
			s.writeError(c, err)
			return
		}
		fields, err := s.fields.ListFields(ctx, obj.ID)
		if err != nil {
			s.writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, fields)
	}
}

// PUT /api/objects/:object/fields/:token — тип поля не меняется
func UpdateFieldHandler(s *Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		var spec schema.FieldSpec
		if err := c.ShouldBindJSON(&spec); err != nil {
			s.bindError(c, err)
			return
		}
		obj, err := s.resolveObject(ctx, c.Param("object"))
		if err != nil {
			s.writeError(c, err)
			return
		}
		f, err := s.fields.UpdateField(ctx, obj.ID, c.Param("token"), spec)
		if err != nil {
			s.writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, f)
	}
}

// DELETE /api/objects/:object/fields/:token
func DeleteFieldHandler(s *Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		obj, err := s.resolveObject(ctx, c.Param("object"))
		if err != nil {
			s.writeError(c, err)
			return
		}
		if err := s.fields.DeleteField(ctx, obj.ID, c.Param("token")); err != nil {
			s.writeError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}
