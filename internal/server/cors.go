package server

import "net/http"

func (s *Server) setCORSHeaders(w http.ResponseWriter) {
	if s.allowedOrigin == "" {
		return
	}
	w.Header().Set("Access-Control-Allow-Origin", s.allowedOrigin)
	w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
}
