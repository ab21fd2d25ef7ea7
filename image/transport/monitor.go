package transport

import (
	"context"
	"io"
)

// Monitor wraps every Oracle call with Begin/End hooks, reintroducing
// original_source/client/monitor_.py's Context manager so callers can
// add request tracing without this module depending on any particular
// tracing library. The zero cost default is Nop.
type Monitor interface {
	Begin(operation string)
	End(err error)
}

// Nop is a Monitor that does nothing, the default used when a caller
// does not supply one.
type Nop struct{}

func (Nop) Begin(string) {}
func (Nop) End(error)    {}

// Monitored wraps an Oracle so that each call is bracketed by m's
// Begin/End hooks, named after the method invoked.
func Monitored(o Oracle, m Monitor) Oracle {
	if m == nil {
		m = Nop{}
	}
	return &monitored{o: o, m: m}
}

type monitored struct {
	o Oracle
	m Monitor
}

func (t *monitored) GetManifest(ctx context.Context, ref string, acceptMediaTypes []string) ([]byte, string, error) {
	t.m.Begin("GetManifest")
	body, contentType, err := t.o.GetManifest(ctx, ref, acceptMediaTypes)
	t.m.End(err)
	return body, contentType, err
}

func (t *monitored) GetBlob(ctx context.Context, digest string) (io.ReadCloser, error) {
	t.m.Begin("GetBlob")
	stream, err := t.o.GetBlob(ctx, digest)
	t.m.End(err)
	return stream, err
}

func (t *monitored) HeadBlob(ctx context.Context, digest string) (bool, int64, error) {
	t.m.Begin("HeadBlob")
	ok, size, err := t.o.HeadBlob(ctx, digest)
	t.m.End(err)
	return ok, size, err
}

func (t *monitored) Catalog(ctx context.Context, last string, limit int) ([]string, string, error) {
	t.m.Begin("Catalog")
	repos, next, err := t.o.Catalog(ctx, last, limit)
	t.m.End(err)
	return repos, next, err
}
