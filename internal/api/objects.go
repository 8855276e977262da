package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"recordkit/internal/schema"
)

type createObjectReq struct {
	Name    string             `json:"name"`
	GroupID string             `json:"group_id"`
	Fields  []schema.FieldSpec `json:"fields"`
}

type objectView struct {
	Object schema.Object  `json:"object"`
	Fields []schema.Field `json:"fields"`
}

// POST /api/objects
func CreateObjectHandler(s *Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createObjectReq
		if err := c.ShouldBindJSON(&req); err != nil {
			s.bindError(c, err)
			return
		}
		obj, fields, err := s.objects.CreateObjectWithFields(c.Request.Context(), req.Name, req.GroupID, actorOf(c), req.Fields)
		if err != nil {
			s.writeError(c, err)
			return
		}
		c.JSON(http.StatusCreated, objectView{Object: *obj, Fields: fields})
	}
}

// GET /api/objects?group=crm
func ListObjectsHandler(s *Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		objs, err := s.objects.ListObjects(c.Request.Context(), c.Query("group"))
		if err != nil {
			s.writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, objs)
	}
}

// GET /api/objects/:object
func GetObjectHandler(s *Server) gin.HandlerFunc {
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
		c.JSON(http.StatusOK, objectView{Object: *obj, Fields: fields})
	}
}

type moveObjectReq struct {
	SortIndex *int `json:"sort_index"`
}

// PATCH /api/objects/:object — меняется только sort_index
func MoveObjectHandler(s *Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		var req moveObjectReq
		if err := c.ShouldBindJSON(&req); err != nil {
			s.bindError(c, err)
			return
		}
		if req.SortIndex == nil {
			c.JSON(http.StatusBadRequest, gin.H{"errors": []FieldError{
				ferr(schema.Code(schema.ErrValidationFailed), "sort_index", "sort_index is required"),
			}})
			return
		}
		obj, err := s.resolveObject(ctx, c.Param("object"))
		if err != nil {
			s.writeError(c, err)
			return
		}
		moved, err := s.objects.MoveObject(ctx, obj.ID, *req.SortIndex, actorOf(c))
		if err != nil {
			s.writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, moved)
	}
}

// DELETE /api/objects/:object
func DeleteObjectHandler(s *Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		obj, err := s.resolveObject(ctx, c.Param("object"))
		if err != nil {
			s.writeError(c, err)
			return
		}
		if err := s.objects.DeleteObject(ctx, obj.ID); err != nil {
			s.writeError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}
