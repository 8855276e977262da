package api

import (
	"context"
	"errors"
	"strings"

	"recordkit/internal/schema"
)

// resolveObject принимает в пути и машинный id ("obj_contact_042"), и имя объекта ("Contact").
// Имя сравнивается по слагу, поэтому регистр и диакритика не важны.
func (s *Server) resolveObject(ctx context.Context, param string) (*schema.Object, error) {
	param = strings.TrimSpace(param)
	if param == "" {
		return nil, schema.Errorf(schema.ErrObjectNotFound, "", param, "object is required")
	}
	obj, err := s.objects.GetObject(ctx, param)
	if err == nil || !errors.Is(err, schema.ErrObjectNotFound) {
		return obj, err
	}
	return s.objects.FindObjectByName(ctx, param)
}
