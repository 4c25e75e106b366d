package server

import (
	"net/http"
	"strings"
	"sync"
)

// BasicRouter is a simple HTTP router implementing the [Router] interface.
//
// Uses [http.ServeMux] internally. Middleware registered with Use wraps the whole router, so
// unmatched paths and wrong methods pass through the gate like any other request.
type BasicRouter struct {
	mux         *http.ServeMux
	middlewares []Middleware
	methods     map[string][]string
	routes      map[string]http.Handler
	once        sync.Once
	root        http.Handler
}

// NewBasicRouter creates a new [BasicRouter] instance.
func NewBasicRouter() *BasicRouter {
	r := &BasicRouter{
		mux:     http.NewServeMux(),
		methods: make(map[string][]string),
		routes:  make(map[string]http.Handler),
	}
	r.mux.HandleFunc("/", func(w http.ResponseWriter, req *http.Request) {
		WriteError(w, req, ErrRouteNotFound)
	})
	return r
}

// Use adds [Middleware] to the [Router] instance's middleware stack, applied in the order it's added.
func (r *BasicRouter) Use(middleware ...Middleware) {
	r.middlewares = append(r.middlewares, middleware...)
}

// Handle registers a handler for method and path. Several methods may share a path.
func (r *BasicRouter) Handle(method, path string, handler http.Handler) {
	method = strings.ToUpper(method)
	if _, seen := r.methods[path]; !seen {
		r.mux.HandleFunc(path, func(w http.ResponseWriter, req *http.Request) {
			r.dispatch(path, w, req)
		})
	}
	r.methods[path] = append(r.methods[path], method)
	r.routes[method+" "+path] = handler
}

// HandleFunc registers a function for method and path.
func (r *BasicRouter) HandleFunc(method, path string, fn http.HandlerFunc) {
	r.Handle(method, path, fn)
}

// Handler registers a custom Handler implementation for every method.
//
// All routes returned by [Handler.Routes] are registered with this handler.
func (r *BasicRouter) Handler(handler Handler) {
	for _, route := range handler.Routes() {
		r.Mount(route, handler)
	}
}

// Mount serves every method under pattern with handler. A pattern ending in "/" matches
// the whole subtree.
func (r *BasicRouter) Mount(pattern string, handler http.Handler) {
	r.mux.Handle(pattern, handler)
}

// ServeHTTP implements [http.Handler] for the entire router.
// The middleware chain is built on the first request; register middleware before serving.
func (r *BasicRouter) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.once.Do(func() { r.root = r.Apply(r.mux) })
	r.root.ServeHTTP(w, req)
}

// Apply wraps a handler with all registered middleware.
//
// Middleware is applied in reverse order (last added wraps first).
func (r *BasicRouter) Apply(handler http.Handler) http.Handler {
	wrapped := handler

	for i := len(r.middlewares) - 1; i >= 0; i-- {
		wrapped = r.middlewares[i](wrapped)
	}

	return wrapped
}

func (r *BasicRouter) dispatch(path string, w http.ResponseWriter, req *http.Request) {
	method := req.Method
	if method == http.MethodHead {
		method = http.MethodGet
	}
	if h, ok := r.routes[method+" "+path]; ok {
		h.ServeHTTP(w, req)
		return
	}
	if req.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	w.Header().Set("Allow", strings.Join(r.methods[path], ", "))
	WriteError(w, req, ErrMethodNotAllowed)
}
