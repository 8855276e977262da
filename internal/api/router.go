package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

func NewRouter(s *Server) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(s.log))

	apiGroup := r.Group("/api")
	{
		apiGroup.POST("/objects", CreateObjectHandler(s))
		apiGroup.GET("/objects", ListObjectsHandler(s))
		apiGroup.GET("/objects/:object", GetObjectHandler(s))
		apiGroup.PATCH("/objects/:object", MoveObjectHandler(s))
		apiGroup.DELETE("/objects/:object", DeleteObjectHandler(s))

		apiGroup.POST("/objects/:object/fields", DefineFieldHandler(s))
		apiGroup.GET("/objects/:object/fields", ListFieldsHandler(s))
		apiGroup.PUT("/objects/:object/fields/:token", UpdateFieldHandler(s))
		apiGroup.DELETE("/objects/:object/fields/:token", DeleteFieldHandler(s))

		// статические маршруты — раньше параметрических
		apiGroup.GET("/objects/:object/records/count", CountRecordsHandler(s))
		apiGroup.POST("/objects/:object/records", CreateRecordHandler(s))
		apiGroup.GET("/objects/:object/records", ListRecordsHandler(s))
		apiGroup.GET("/objects/:object/records/:id", GetRecordHandler(s))
		apiGroup.PUT("/objects/:object/records/:id", UpdateRecordHandler(s))
		apiGroup.DELETE("/objects/:object/records/:id", DeleteRecordHandler(s))
		apiGroup.GET("/objects/:object/records/:id/deref/:token", DereferenceHandler(s))

		apiGroup.POST("/admin/sweep", SweepHandler(s))
		apiGroup.POST("/admin/apply", ApplyHandler(s))
	}
	return r
}

// RunServer слушает addr до отмены ctx, затем завершает активные запросы.
func RunServer(ctx context.Context, addr string, s *Server) error {
	srv := &http.Server{Addr: addr, Handler: NewRouter(s), ReadHeaderTimeout: 10 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", addr).Msg("http server started")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.log.Info().Msg("http server stopped")
	return nil
}
