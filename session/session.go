// Package session buffers objects in memory and persists them as one JSON file per object.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"reflect"
	"slices"

	"github.com/google/uuid"
	"github.com/nasdf/jvivo/codec"
	"github.com/nasdf/jvivo/filter"
	"github.com/nasdf/jvivo/schema"
	"github.com/nasdf/jvivo/storage"
)

var (
	// ErrIO is returned when records cannot be read, written, or deleted.
	ErrIO = errors.New("io failure")
	// ErrNilFilter is returned when a query or delete is given no filter.
	ErrNilFilter = errors.New("filter is nil")
)

// dump contains the encoded objects of a single type awaiting persist.
type dump struct {
	texts []string
	seen  map[string]struct{}
}

func (d *dump) add(text string) bool {
	if _, ok := d.seen[text]; ok {
		return false
	}
	d.seen[text] = struct{}{}
	d.texts = append(d.texts, text)
	return true
}

// pendingDelete is the accumulated delete filter of a single type.
type pendingDelete struct {
	schema *schema.Schema
	filter *filter.Filter
}

// Session is a unit of work over a record storage.
//
// Inserted objects are buffered until Persist is called. A Session is not safe for
// concurrent use.
type Session struct {
	dir     string
	ext     string
	store   storage.Storage
	logger  *slog.Logger
	newID   func() (string, error)
	dumps   map[string]*dump
	deletes map[string]*pendingDelete
}

type Option func(*Session)

// WithStorage sets the storage records are persisted to.
func WithStorage(store storage.Storage) Option {
	return func(s *Session) {
		s.store = store
	}
}

// WithLogger sets the session logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) {
		s.logger = logger
	}
}

// WithIDGenerator sets the function used to create record keys.
func WithIDGenerator(fn func() (string, error)) Option {
	return func(s *Session) {
		s.newID = fn
	}
}

// New returns a session that persists records to the directory in cfg.
func New(cfg Config, opts ...Option) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &Session{
		dir:     cfg.Directory,
		ext:     cfg.Extension,
		store:   storage.NewFile(cfg.Directory, cfg.Extension),
		logger:  discardLogger(),
		newID:   newUUID,
		dumps:   make(map[string]*dump),
		deletes: make(map[string]*pendingDelete),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func newUUID() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// Directory returns the root directory records are persisted to.
func (s *Session) Directory() string {
	return s.dir
}

// SetDirectory persists all further records to files under dir.
//
// Buffered objects and pending deletes are kept and applied to the new directory.
func (s *Session) SetDirectory(dir string) {
	s.dir = dir
	s.store = storage.NewFile(dir, s.ext)
}

func objectSchema(t reflect.Type) (*schema.Schema, error) {
	sch, err := schema.Of(t)
	if err != nil {
		return nil, err
	}
	if sch.IsPointer() || sch.Kind() != schema.KindObject {
		return nil, fmt.Errorf("%w: %s is not an object", codec.ErrUnsupportedShape, sch)
	}
	return sch, nil
}

// Insert encodes value and buffers it until the next Persist.
//
// value must be a struct or a non-nil pointer to a struct. Inserting an object that
// encodes to the same text as an already buffered object of the same type has no effect.
func (s *Session) Insert(ctx context.Context, value any) error {
	rv := reflect.ValueOf(value)
	if rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return fmt.Errorf("%w: cannot insert a nil %s", codec.ErrFormat, rv.Type())
		}
		rv = rv.Elem()
	}
	if !rv.IsValid() {
		return fmt.Errorf("%w: cannot insert nil", codec.ErrFormat)
	}
	sch, err := objectSchema(rv.Type())
	if err != nil {
		return err
	}
	data, err := codec.MarshalSchema(rv.Interface(), sch)
	if err != nil {
		return err
	}
	d, ok := s.dumps[sch.Name()]
	if !ok {
		d = &dump{seen: make(map[string]struct{})}
		s.dumps[sch.Name()] = d
	}
	if d.add(string(data)) {
		s.logger.DebugContext(ctx, "buffered object", "type", sch.Name())
	}
	return nil
}

// Find returns every buffered and persisted object of type T that is not matched by a
// pending delete.
func Find[T any](ctx context.Context, s *Session) ([]T, error) {
	sch, err := objectSchema(reflect.TypeFor[T]())
	if err != nil {
		return nil, err
	}
	var pending *filter.Filter
	if pd, ok := s.deletes[sch.Name()]; ok {
		pending = pd.filter
	}
	var out []T
	visit := func(data []byte) error {
		stream, err := codec.ParseStream[T](data)
		if err != nil {
			return err
		}
		if pending != nil {
			fields, err := stream.RelevantFields(pending.Required()...)
			if err != nil {
				return err
			}
			if pending.Evaluate(fields) {
				return nil
			}
		}
		value, err := stream.Instance()
		if err != nil {
			return err
		}
		out = append(out, value)
		return nil
	}
	if d, ok := s.dumps[sch.Name()]; ok {
		for _, text := range d.texts {
			if err := visit([]byte(text)); err != nil {
				return nil, err
			}
		}
	}
	err = s.scan(ctx, sch.Name(), func(key string, data []byte) error {
		if err := visit(data); err != nil {
			return fmt.Errorf("record %s/%s: %w", sch.Name(), key, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// FindWhere persists every buffered object and pending delete of every type and then
// returns the persisted objects of type T matched by f.
func FindWhere[T any](ctx context.Context, s *Session, f *filter.Filter) ([]T, error) {
	if f == nil {
		return nil, ErrNilFilter
	}
	sch, err := objectSchema(reflect.TypeFor[T]())
	if err != nil {
		return nil, err
	}
	if err := s.Persist(ctx); err != nil {
		return nil, err
	}
	required := f.Required()
	var out []T
	err = s.scan(ctx, sch.Name(), func(key string, data []byte) error {
		stream, err := codec.ParseStream[T](data)
		if err != nil {
			return fmt.Errorf("record %s/%s: %w", sch.Name(), key, err)
		}
		fields, err := stream.RelevantFields(required...)
		if err != nil {
			return fmt.Errorf("record %s/%s: %w", sch.Name(), key, err)
		}
		if !f.Evaluate(fields) {
			return nil
		}
		value, err := stream.Instance()
		if err != nil {
			return fmt.Errorf("record %s/%s: %w", sch.Name(), key, err)
		}
		out = append(out, value)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Delete schedules the removal of all objects of type T matched by f on the next Persist.
//
// Filters for the same type are combined with OR. f is copied and may be reused by the caller.
func Delete[T any](s *Session, f *filter.Filter) error {
	if f == nil {
		return ErrNilFilter
	}
	sch, err := objectSchema(reflect.TypeFor[T]())
	if err != nil {
		return err
	}
	if pd, ok := s.deletes[sch.Name()]; ok {
		pd.filter.Or(f.Clone())
	} else {
		s.deletes[sch.Name()] = &pendingDelete{schema: sch, filter: f.Clone()}
	}
	s.logger.Debug("scheduled delete", "type", sch.Name(), "filter", s.deletes[sch.Name()].filter.String())
	return nil
}

// Stream parses a single record and returns a stream decoding it as T.
func Stream[T any](data []byte) (*codec.Stream[T], error) {
	return codec.ParseStream[T](data)
}

// Persist writes every buffered object to its own record and then applies every pending delete.
//
// Persist is not atomic. If it fails, the records written or deleted so far are kept.
func (s *Session) Persist(ctx context.Context) error {
	var written, deleted int
	for _, name := range slices.Sorted(maps.Keys(s.dumps)) {
		d := s.dumps[name]
		for len(d.texts) > 0 {
			id, err := s.newID()
			if err != nil {
				return fmt.Errorf("%w: failed to create record id: %w", ErrIO, err)
			}
			if err := s.store.Put(ctx, name, id, []byte(d.texts[0])); err != nil {
				return fmt.Errorf("%w: %w", ErrIO, err)
			}
			delete(d.seen, d.texts[0])
			d.texts = d.texts[1:]
			written++
		}
		delete(s.dumps, name)
		s.logger.DebugContext(ctx, "flushed objects", "type", name)
	}
	for _, name := range slices.Sorted(maps.Keys(s.deletes)) {
		n, err := s.applyDelete(ctx, name, s.deletes[name])
		deleted += n
		if err != nil {
			return err
		}
		delete(s.deletes, name)
	}
	s.logger.InfoContext(ctx, "persisted", "written", written, "deleted", deleted)
	return nil
}

func (s *Session) applyDelete(ctx context.Context, name string, pd *pendingDelete) (int, error) {
	required := pd.filter.Required()
	var matched []string
	err := s.scan(ctx, name, func(key string, data []byte) error {
		n, err := codec.Parse(data)
		if err != nil {
			return fmt.Errorf("record %s/%s: %w", name, key, err)
		}
		fields, err := codec.RelevantFields(n, pd.schema, required...)
		if err != nil {
			return fmt.Errorf("record %s/%s: %w", name, key, err)
		}
		if pd.filter.Evaluate(fields) {
			matched = append(matched, key)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	for i, key := range matched {
		if err := s.store.Delete(ctx, name, key); err != nil {
			return i, fmt.Errorf("%w: %w", ErrIO, err)
		}
	}
	s.logger.DebugContext(ctx, "applied delete", "type", name, "filter", pd.filter.String(), "deleted", len(matched))
	return len(matched), nil
}

// scan calls fn with the contents of every persisted record of the named type.
func (s *Session) scan(ctx context.Context, name string, fn func(key string, data []byte) error) error {
	keys, err := s.store.List(ctx, name)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrIO, err)
	}
	s.logger.DebugContext(ctx, "scanning records", "type", name, "records", len(keys))
	for _, key := range keys {
		data, err := s.store.Get(ctx, name, key)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrIO, err)
		}
		if err := fn(key, data); err != nil {
			return err
		}
	}
	return nil
}
