package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"recordkit/internal/schema"
)

// flatten: служебные ключи и значения полей на одном уровне, как документ в хранилище.
func flatten(rec *schema.Record) map[string]any {
	out := map[string]any{
		schema.KeyID:        rec.ID,
		schema.KeyObjectID:  rec.ObjectID,
		schema.KeyCreatedBy: rec.CreatedBy,
		schema.KeyCreatedAt: rec.CreatedAt.Format(time.RFC3339),
	}
	if rec.ModifiedBy != "" {
		out[schema.KeyModifiedBy] = rec.ModifiedBy
		out[schema.KeyModifiedAt] = rec.ModifiedAt.Format(time.RFC3339)
	}
	for k, v := range rec.Values {
		out[k] = v
	}
	return out
}

func (s *Server) objectID(c *gin.Context) (string, bool) {
	obj, err := s.resolveObject(c.Request.Context(), c.Param("object"))
	if err != nil {
		s.writeError(c, err)
		return "", false
	}
	return obj.ID, true
}

// POST /api/objects/:object/records
func CreateRecordHandler(s *Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		var values map[string]any
		if err := c.ShouldBindJSON(&values); err != nil {
			s.bindError(c, err)
			return
		}
		objectID, ok := s.objectID(c)
		if !ok {
			return
		}
		rec, err := s.records.CreateRecord(c.Request.Context(), objectID, values, actorOf(c))
		if err != nil {
			s.writeError(c, err)
			return
		}
		c.JSON(http.StatusCreated, flatten(rec))
	}
}

// GET /api/objects/:object/records
func ListRecordsHandler(s *Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		objectID, ok := s.objectID(c)
		if !ok {
			return
		}
		lp := parseListParams(c.Request.URL.Query())
		recs, err := s.records.ListRecords(c.Request.Context(), objectID, lp.Filters)
		if err != nil {
			s.writeError(c, err)
			return
		}
		sortRecords(recs, lp.Sort, lp.Nulls)

		start, end := lp.page(len(recs))
		out := make([]map[string]any, 0, end-start)
		for i := start; i < end; i++ {
			out = append(out, flatten(&recs[i]))
		}
		c.Header("X-Total-Count", strconv.Itoa(len(recs)))
		c.JSON(http.StatusOK, out)
	}
}

// GET /api/objects/:object/records/count
func CountRecordsHandler(s *Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		objectID, ok := s.objectID(c)
		if !ok {
			return
		}
		n, err := s.records.CountRecords(c.Request.Context(), objectID)
		if err != nil {
			s.writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"count": n})
	}
}

// GET /api/objects/:object/records/:id
func GetRecordHandler(s *Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		objectID, ok := s.objectID(c)
		if !ok {
			return
		}
		rec, err := s.records.GetRecord(c.Request.Context(), objectID, c.Param("id"))
		if err != nil {
			s.writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, flatten(rec))
	}
}

// PUT /api/objects/:object/records/:id — полная замена значений
func UpdateRecordHandler(s *Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		var values map[string]any
		if err := c.ShouldBindJSON(&values); err != nil {
			s.bindError(c, err)
			return
		}
		objectID, ok := s.objectID(c)
		if !ok {
			return
		}
		rec, err := s.records.UpdateRecord(c.Request.Context(), objectID, c.Param("id"), values, actorOf(c))
		if err != nil {
			s.writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, flatten(rec))
	}
}

// DELETE /api/objects/:object/records/:id
func DeleteRecordHandler(s *Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		objectID, ok := s.objectID(c)
		if !ok {
			return
		}
		if err := s.records.DeleteRecord(c.Request.Context(), objectID, c.Param("id")); err != nil {
			s.writeError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

// GET /api/objects/:object/records/:id/deref/:token
func DereferenceHandler(s *Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		objectID, ok := s.objectID(c)
		if !ok {
			return
		}
		v, err := s.records.Dereference(c.Request.Context(), objectID, c.Param("id"), c.Param("token"))
		if err != nil {
			s.writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"value": v})
	}
}
