package core

import (
	"net/http"

	"github.com/google/uuid"
)

// Handler returns the host API.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Accounts
	mux.HandleFunc("GET /accounts", func(w http.ResponseWriter, r *http.Request) {
		s.handleAccountsGet(r.Context(), w, r)
	})
	mux.HandleFunc("GET /accounts/{account}", func(w http.ResponseWriter, r *http.Request) {
		s.handleAccountGet(r.Context(), w, r, r.PathValue("account"))
	})
	mux.HandleFunc("PUT /accounts/{account}", func(w http.ResponseWriter, r *http.Request) {
		s.handleAccountPut(r.Context(), w, r, r.PathValue("account"))
	})
	mux.HandleFunc("DELETE /accounts/{account}", func(w http.ResponseWriter, r *http.Request) {
		s.handleAccountDelete(r.Context(), w, r, r.PathValue("account"))
	})

	// Uploads
	mux.HandleFunc("PUT /accounts/{account}/uploads/{id}", func(w http.ResponseWriter, r *http.Request) {
		s.handleUploadPut(r.Context(), w, r, r.PathValue("account"), r.PathValue("id"))
	})
	mux.HandleFunc("POST /accounts/{account}/uploads", func(w http.ResponseWriter, r *http.Request) {
		s.handleUploadPut(r.Context(), w, r, r.PathValue("account"), uuid.NewString())
	})
	mux.HandleFunc("DELETE /uploads/{id}", func(w http.ResponseWriter, r *http.Request) {
		s.handleUploadDelete(r.Context(), w, r, r.PathValue("id"))
	})

	var handler http.Handler = mux
	if s.cfg.APIUser != "" && s.cfg.APIPassword != "" {
		handler = RequireBasicAuth(s.cfg.APIUser, s.cfg.APIPassword, handler)
	}
	handler = LogRequest(handler)
	handler = Recoverer(handler)
	return handler
}
