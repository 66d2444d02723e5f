// ABOUTME: Product HTTP handlers: registration, chain status, listing, and metadata proxy
// ABOUTME: Registration failures other than bad input are reported as 500

package server

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/tidwall/gjson"

	"github.com/2389/showcase-backend/internal/apperr"
	"github.com/2389/showcase-backend/internal/catalog"
	"github.com/2389/showcase-backend/internal/metadata"
	"github.com/2389/showcase-backend/internal/store"
	"github.com/2389/showcase-backend/internal/units"
)

// ChainStatusRequest is the body of PUT /products/{id}/chain-status.
type ChainStatusRequest struct {
	BlockchainID string `json:"blockchain_id"`
	Status       string `json:"status"`
}

// ProductListResponse is the body of GET /products.
type ProductListResponse struct {
	Products []*store.Product `json:"products"`
	Total    int              `json:"total"`
	Limit    int              `json:"limit"`
	Offset   int              `json:"offset"`
}

// sendPipelineError reports bad input as 400 and everything else as 500.
func (s *Server) sendPipelineError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	if apperr.KindOf(err) == apperr.KindValidation {
		status = http.StatusBadRequest
	}
	s.sendErrorStatus(w, r, status, err)
}

// handleRegisterFull runs the full pipeline from a multipart form with
// text fields and any number of "images" files.
func (s *Server) handleRegisterFull(w http.ResponseWriter, r *http.Request) {
	if err := s.parseMultipart(w, r); err != nil {
		s.sendError(w, r, err)
		return
	}
	defer r.MultipartForm.RemoveAll()

	in, err := registerInputFromForm(r)
	if err != nil {
		s.sendPipelineError(w, r, err)
		return
	}

	for _, fh := range r.MultipartForm.File["images"] {
		data, contentType, err := readPart(fh)
		if err != nil {
			s.sendPipelineError(w, r, err)
			return
		}
		in.Images = append(in.Images, catalog.Image{
			Filename:    fh.Filename,
			ContentType: contentType,
			Data:        data,
		})
	}

	reg, err := s.catalog.RegisterProduct(r.Context(), in)
	if err != nil {
		s.sendPipelineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reg)
}

func registerInputFromForm(r *http.Request) (catalog.RegisterInput, error) {
	in := catalog.RegisterInput{
		Name:        r.FormValue("name"),
		Description: r.FormValue("description"),
		Category:    r.FormValue("category"),
		Seller:      r.FormValue("seller"),
		Deliverer:   r.FormValue("deliverer"),
	}

	price, err := units.ParseDisplay(r.FormValue("price"))
	if err != nil {
		return in, apperr.New(apperr.KindValidation, "", err)
	}
	in.Price = price

	if raw := strings.TrimSpace(r.FormValue("commission")); raw != "" {
		commission, err := strconv.Atoi(raw)
		if err != nil || commission < 0 {
			return in, apperr.Newf(apperr.KindValidation, "", "commission must be a non-negative integer, got %q", raw)
		}
		in.Commission = commission
	}

	if raw := strings.TrimSpace(r.FormValue("attributes")); raw != "" {
		attrs, err := metadata.ParseAttributes([]byte(raw))
		if err != nil {
			return in, err
		}
		in.Attributes = attrs
	}
	return in, nil
}

// handleRegisterLegacy inserts a product whose images are already uploaded.
func (s *Server) handleRegisterLegacy(w http.ResponseWriter, r *http.Request) {
	var in catalog.LegacyInput
	if err := decodeJSON(w, r, &in); err != nil {
		s.sendError(w, r, err)
		return
	}

	p, err := s.catalog.RegisterProductLegacy(r.Context(), in)
	if err != nil {
		s.sendPipelineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleChainStatus(w http.ResponseWriter, r *http.Request) {
	var req ChainStatusRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.sendError(w, r, err)
		return
	}

	p, err := s.catalog.UpdateChainStatus(r.Context(), chi.URLParam(r, "id"), req.BlockchainID, req.Status)
	if err != nil {
		s.sendError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// pageParams reads limit and offset from the query string.
func pageParams(r *http.Request) (int, int, error) {
	q := r.URL.Query()
	var limit, offset int
	var err error
	if v := q.Get("limit"); v != "" {
		if limit, err = strconv.Atoi(v); err != nil {
			return 0, 0, apperr.Newf(apperr.KindValidation, "", "invalid limit %q", v)
		}
	}
	if v := q.Get("offset"); v != "" {
		if offset, err = strconv.Atoi(v); err != nil {
			return 0, 0, apperr.Newf(apperr.KindValidation, "", "invalid offset %q", v)
		}
	}
	limit, offset = store.PageBounds(limit, offset)
	return limit, offset, nil
}

func (s *Server) handleListProducts(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := pageParams(r)
	if err != nil {
		s.sendError(w, r, err)
		return
	}

	q := r.URL.Query()
	filter := store.ProductFilter{
		Category: q.Get("category"),
		Seller:   q.Get("seller"),
		Status:   q.Get("status"),
	}
	products, total := s.products.List(r.Context(), filter, limit, offset)
	writeJSON(w, http.StatusOK, ProductListResponse{
		Products: products,
		Total:    total,
		Limit:    limit,
		Offset:   offset,
	})
}

func (s *Server) handleGetProduct(w http.ResponseWriter, r *http.Request) {
	p, err := s.products.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.sendError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// handleProductMetadata proxies a metadata blob from the gateway. JSON is
// passed through as is, anything else is wrapped as {"raw": text}.
func (s *Server) handleProductMetadata(w http.ResponseWriter, r *http.Request) {
	fid := chi.URLParam(r, "blobID")
	data, hit, err := s.cache.Fetch(r.Context(), fid, func(ctx context.Context) ([]byte, error) {
		return s.relay.Fetch(ctx, fid)
	})
	s.metrics.observeCache(hit)
	if err != nil {
		s.sendError(w, r, err)
		return
	}

	if !gjson.ValidBytes(data) {
		writeJSON(w, http.StatusOK, map[string]string{"raw": string(data)})
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
