package api

import (
	"time"

	"github.com/rs/zerolog"

	"recordkit/internal/dsl"
	"recordkit/internal/field"
	"recordkit/internal/object"
	"recordkit/internal/record"
)

// Server связывает HTTP-слой с каталогами и движком записей. Своего состояния не держит.
type Server struct {
	objects  *object.Catalog
	fields   *field.Catalog
	records  *record.Engine
	applier  *dsl.Applier
	log      zerolog.Logger
	sweepAge time.Duration
	dslRoot  string
}

type Option func(*Server)

func WithLogger(l zerolog.Logger) Option { return func(s *Server) { s.log = l } }

// WithApplier включает POST /api/admin/apply; root — каталог *.dsl по умолчанию.
func WithApplier(a *dsl.Applier, root string) Option {
	return func(s *Server) { s.applier, s.dslRoot = a, root }
}

func WithSweepAge(d time.Duration) Option { return func(s *Server) { s.sweepAge = d } }

func NewServer(objects *object.Catalog, fields *field.Catalog, records *record.Engine, opts ...Option) *Server {
	s := &Server{
		objects:  objects,
		fields:   fields,
		records:  records,
		log:      zerolog.Nop(),
		sweepAge: time.Hour,
		dslRoot:  "dsl",
	}
	for _, o := range opts {
		o(s)
	}
	return s
}
