package main

import (
	"context"
	"crypto/subtle"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/awslabs/aws-lambda-go-api-proxy/gorillamux"
	"github.com/gorilla/mux"
	"github.com/joho/godotenv"

	"github.com/zoworld/eventsync/functions/gateway/constants"
	"github.com/zoworld/eventsync/functions/gateway/handlers"
	"github.com/zoworld/eventsync/functions/gateway/services"
	"github.com/zoworld/eventsync/functions/gateway/startup"
	"github.com/zoworld/eventsync/functions/gateway/transport"
)

type AuthType string

const (
	None AuthType = "none"
	// Require checks the bearer token against SYNC_ADMIN_TOKEN when that is set.
	Require AuthType = "require"
)

type Route struct {
	Path    string
	Method  string
	Handler http.HandlerFunc
	Auth    AuthType
}

func InitRoutes(syncHandler *handlers.SyncHandler, webhookHandler *handlers.WebhookHandler) []Route {
	return []Route{
		{"/health", "GET", handlers.HealthCheck, None},
		{"/sync", "GET", syncHandler.GetSyncStatus, None},
		{"/sync", "POST", syncHandler.TriggerSync, Require},
		{"/sync/runs", "GET", syncHandler.ListSyncRuns, Require},
		{"/sync/runs/{id}", "GET", syncHandler.GetSyncRun, Require},
		{"/webhooks/{" + constants.PROVIDER_PATH_KEY + "}", "POST", webhookHandler.HandleProviderWebhook, None},
	}
}

type App struct {
	Router     *mux.Router
	adminToken string
}

func NewApp(adminToken string) *App {
	app := &App{
		Router:     mux.NewRouter(),
		adminToken: adminToken,
	}
	app.Router.Use(withContext)
	return app
}

func (app *App) SetupRoutes(routes []Route) {
	for _, route := range routes {
		app.addRoute(route)
	}
}

func (app *App) addRoute(route Route) {
	handler := route.Handler
	if route.Auth == Require {
		handler = app.requireAdmin(route.Handler)
	}
	app.Router.HandleFunc(route.Path, handler).Methods(route.Method).Name(route.Method + " " + route.Path)
}

func (app *App) requireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if app.adminToken == "" {
			next(w, r)
			return
		}
		presented := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if subtle.ConstantTimeCompare([]byte(presented), []byte(app.adminToken)) != 1 {
			transport.SendJSONError(w, "unauthorized", http.StatusUnauthorized, nil)
			return
		}
		next(w, r)
	}
}

func (app *App) SetupNotFoundHandler() {
	app.Router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log.Println("Not found", r.RequestURI)
		transport.SendJSONError(w, "not found: "+r.URL.Path, http.StatusNotFound, nil)
	})
}

// withContext makes sure every request carries an APIGatewayV2HTTPRequest, so handlers
// behave the same under lambda and a local listener.
func withContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if _, ok := ctx.Value(constants.ApiGwV2ReqKey).(events.APIGatewayV2HTTPRequest); !ok {
			ctx = context.WithValue(ctx, constants.ApiGwV2ReqKey, events.APIGatewayV2HTTPRequest{
				RequestContext: events.APIGatewayV2HTTPRequestContext{
					HTTP: events.APIGatewayV2HTTPRequestContextHTTPDescription{
						Method: r.Method,
						Path:   r.URL.Path,
					},
				},
			})
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using process environment")
	}

	if err := startup.RunAll(); err != nil {
		log.Fatalf("ERR: %v", err)
	}

	ctx := context.Background()
	syncHandler := handlers.NewSyncHandler(services.GetSyncService(ctx), services.GetSyncRunLog())
	webhookHandler := handlers.NewWebhookHandler(services.GetWebhookService(ctx))

	app := NewApp(os.Getenv("SYNC_ADMIN_TOKEN"))
	app.SetupNotFoundHandler()
	app.SetupRoutes(InitRoutes(syncHandler, webhookHandler))

	if os.Getenv("AWS_LAMBDA_FUNCTION_NAME") != "" {
		adapter := gorillamux.NewV2(app.Router)
		lambda.Start(func(ctx context.Context, request events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
			ctx = context.WithValue(ctx, constants.ApiGwV2ReqKey, request)
			return adapter.ProxyWithContext(ctx, request)
		})
		return
	}

	port := os.Getenv("GO_PORT")
	if port == "" {
		port = "8000"
	}
	server := &http.Server{
		Addr:              ":" + port,
		Handler:           app.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	log.Printf("eventsync gateway listening on :%s", port)
	log.Fatal(server.ListenAndServe())
}
