package main

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/mager/cochlea/analyzer"
	"github.com/mager/cochlea/auth"
	"github.com/mager/cochlea/config"
	"github.com/mager/cochlea/database"
	"github.com/mager/cochlea/firestore"
	"github.com/mager/cochlea/handler/analysis"
	"github.com/mager/cochlea/handler/apidoc"
	"github.com/mager/cochlea/handler/health"
	"github.com/mager/cochlea/logger"
	"github.com/mager/cochlea/pipeline"
	"github.com/mager/cochlea/rank"
	"github.com/mager/cochlea/reference"
	"github.com/mager/cochlea/storage"
	"github.com/mager/cochlea/store"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Route is an http.Handler that knows the mux pattern
// under which it will be registered.
type Route interface {
	http.Handler

	// Pattern reports the path at which this is registered.
	Pattern() string
}

// methodRoute is a Route restricted to some HTTP methods.
type methodRoute interface {
	Methods() []string
}

//	@title			Cochlea
//	@version		1.0
//	@description	Mix analysis, reference ranking and arrays API

//	@license.name	Apache 2.0
//	@license.url	http://www.apache.org/licenses/LICENSE-2.0.html

// @host		localhost:8080
// @BasePath	/
func main() {
	fx.New(app).Run()
}

var app = fx.Options(
	fx.Provide(
		fx.Annotate(
			NewHTTPServer,
			fx.ParamTags(``, ``, ``, `group:"routes"`),
		),
		config.Options,
		logger.Options,
		desugar,
		database.Options,
		firestore.Options,
		reference.Options,
		storage.Options,
		analyzer.Options,
		store.Options,
		store.ProvideReconciler,
		rank.ProvideRanker,
		auth.Options,
		pipeline.Options,

		AsRoute(health.NewHealthHandler),
		AsRoute(analysis.NewRunHandler),
		AsRoute(analysis.NewArraysHandler),
		AsRoute(analysis.NewLiveHandler),
		AsRoute(apidoc.NewDocHandler),
	),
	fx.Invoke(func(*http.Server) {}),
)

func NewHTTPServer(
	lc fx.Lifecycle,
	logger *zap.SugaredLogger,
	cfg config.Config,
	routes []Route,
) *http.Server {
	router := mux.NewRouter()
	router.Use(jsonMiddleware, logMiddleware(logger))

	for _, route := range routes {
		r := router.Handle(route.Pattern(), route)
		if m, ok := route.(methodRoute); ok {
			r.Methods(m.Methods()...)
		}
	}

	srv := &http.Server{Addr: ":" + cfg.Port, Handler: router}
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			ln, err := net.Listen("tcp", srv.Addr)
			if err != nil {
				return err
			}
			logger.Infow("Starting HTTP server", "addr", srv.Addr, "routes", len(routes))
			go srv.Serve(ln)
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return srv.Shutdown(ctx)
		},
	})

	return srv
}

// AsRoute annotates the given constructor to state that
// it provides a route to the "routes" group.
func AsRoute(f any) any {
	return fx.Annotate(
		f,
		fx.As(new(Route)),
		fx.ResultTags(`group:"routes"`),
	)
}

func desugar(l *zap.SugaredLogger) *zap.Logger {
	return l.Desugar()
}

func jsonMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Add("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

func logMiddleware(logger *zap.SugaredLogger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			next.ServeHTTP(w, r)
			logger.Infow("Handled request",
				"method", r.Method,
				"path", r.URL.Path,
				"elapsed", time.Since(start).String(),
			)
		})
	}
}
