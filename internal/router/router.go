package routes

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerHandler "github.com/swaggo/http-swagger"

	_ "github.com/oggyb/sms-gateway/internal/docs" // swagger docs
	"github.com/oggyb/sms-gateway/internal/response"
)

type AppDeps struct {
	Home    HomeHandler
	Message MessageHandler
	DLR     DLRHandler
	Admin   AdminHandler
}

type HomeHandler interface {
	Index(w http.ResponseWriter, r *http.Request)
	Health(w http.ResponseWriter, r *http.Request)
}

type MessageHandler interface {
	Create(w http.ResponseWriter, r *http.Request)
	Get(w http.ResponseWriter, r *http.Request)
	List(w http.ResponseWriter, r *http.Request)
}

type DLRHandler interface {
	Receive(w http.ResponseWriter, r *http.Request)
}

type AdminHandler interface {
	StartStopScheduler(w http.ResponseWriter, r *http.Request)
	DeadLetters(w http.ResponseWriter, r *http.Request)
}

func Register(mux *http.ServeMux, d AppDeps) {
	mux.HandleFunc("GET /{$}", d.Home.Index)
	mux.HandleFunc("GET /health", d.Home.Health)

	mux.HandleFunc("POST /messages", d.Message.Create)
	mux.HandleFunc("GET /messages", d.Message.List)
	mux.HandleFunc("GET /messages/{id}", d.Message.Get)

	mux.HandleFunc("POST /webhooks/dlr", d.DLR.Receive)

	mux.HandleFunc("POST /scheduler", d.Admin.StartStopScheduler)
	mux.HandleFunc("GET /dead-letters", d.Admin.DeadLetters)

	mux.Handle("GET /metrics", promhttp.Handler())

	//Swagger
	mux.HandleFunc("GET /swagger/", swaggerHandler.WrapHandler)

	// Fallback handler for undefined routes (404)
	mux.Handle("/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		response.RespondError(w, http.StatusNotFound, "route not found")
	}))
}
