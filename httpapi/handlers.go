package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/unkn0wn-root/tresor"
	"github.com/unkn0wn-root/tresor/expand"
	"github.com/unkn0wn-root/tresor/tensor"
)

func (s *Server) handleStore(w http.ResponseWriter, r *http.Request) {
	req, err := parseRequest(r, s.limits.MaxBody, s.limits.MaxString,
		field{name: "path", required: true},
		field{name: "key", required: true},
		field{name: "value", typ: typeStringOrNull, required: true},
	)
	if err != nil {
		s.fail(w, r, err, req.raw)
		return
	}
	u, _ := UserFrom(r.Context())
	if err := s.svc.Write(r.Context(), u.Email, req.str("path"), req.str("key"), req.optStr("value")); err != nil {
		s.fail(w, r, err, req.raw)
		return
	}
	writeJSON(w, http.StatusOK, struct{}{})
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	req, err := parseRequest(r, s.limits.MaxBody, s.limits.MaxString,
		field{name: "path", required: true},
		field{name: "key", required: true},
	)
	if err != nil {
		s.fail(w, r, err, req.raw)
		return
	}
	v, err := s.svc.Read(r.Context(), req.str("path"), req.str("key"))
	if err != nil {
		s.fail(w, r, err, req.raw)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Value *string `json:"value"`
	}{v})
}

func (s *Server) handleGetMany(w http.ResponseWriter, r *http.Request) {
	req, err := parseRequest(r, s.limits.MaxManyBody, s.limits.MaxManyBody,
		field{name: "path_arrays", typ: typeArray, required: true},
		field{name: "key", required: true},
	)
	if err != nil {
		s.fail(w, r, err, req.raw)
		return
	}
	var templates []expand.Template
	if err := json.Unmarshal(req.fields["path_arrays"], &templates); err != nil {
		s.fail(w, r, &tresor.Error{Kind: tresor.KindValidation, Op: "parse", Msg: "invalid path_arrays", Err: err}, req.raw)
		return
	}
	results, err := s.svc.ReadBatch(r.Context(), templates, req.str("key"))
	if err != nil {
		s.fail(w, r, err, req.raw)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Results []*tensor.Tensor `json:"results"`
	}{results})
}

func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	u, _ := UserFrom(r.Context())
	writeJSON(w, http.StatusOK, map[string]string{"pong": "yay", "welcome": u.Email})
}

func (s *Server) handlePublicPing(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"pong": "yay"})
}
