// ABOUTME: Product registration pipeline and catalog maintenance operations
// ABOUTME: Orchestrates image uploads, metadata upload, and product insertion

package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/2389/showcase-backend/internal/apperr"
	"github.com/2389/showcase-backend/internal/metadata"
	"github.com/2389/showcase-backend/internal/store"
	"github.com/2389/showcase-backend/internal/units"
)

// Service runs registrations against the product store.
type Service struct {
	products *store.ProductStore
	personas *store.PersonaStore
	uploader metadata.Uploader
	meta     *metadata.Builder
	now      func() time.Time
	logger   *slog.Logger
}

// New creates a Service. uploader is used for images and metadata.
func New(products *store.ProductStore, personas *store.PersonaStore, uploader metadata.Uploader, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		products: products,
		personas: personas,
		uploader: uploader,
		meta:     metadata.NewBuilder(uploader, logger),
		now:      time.Now,
		logger:   logger.With("component", "catalog"),
	}
}

// Image is an image file to upload during registration.
type Image struct {
	Filename    string
	ContentType string
	Data        []byte
}

// RegisterInput is everything the full registration needs.
type RegisterInput struct {
	Name        string
	Description string
	Category    string
	Price       float64
	Seller      string
	Deliverer   string
	Commission  int
	Images      []Image
	Attributes  metadata.Attributes
}

// BlockchainData is the payload for the on-chain registration that happens
// outside this service.
type BlockchainData struct {
	Deliverer   string `json:"deliverer"`
	MetadataFID string `json:"metadata_fid"`
	PriceWei    string `json:"price_wei"`
	Commission  int    `json:"commission"`
}

// Registration is the result of RegisterProduct.
type Registration struct {
	ProductID      string         `json:"product_id"`
	MetadataFID    string         `json:"metadata_fid"`
	ImageFIDs      []string       `json:"image_fids"`
	BlockchainData BlockchainData `json:"blockchain_data"`
	Product        *store.Product `json:"product"`
}

// RegisterProduct uploads every image in order, uploads the metadata
// document, then inserts the product with status pending_blockchain.
//
// Uploads are not rolled back: the gateway offers no delete, so when a later
// step fails the blobs already sent stay in the gateway. The store is only
// touched after every upload succeeded, so a failed registration leaves it
// unchanged.
func (s *Service) RegisterProduct(ctx context.Context, in RegisterInput) (*Registration, error) {
	logger := s.logger.With("registration", uuid.NewString(), "name", in.Name)

	priceWei, err := units.ToFixed18(in.Price)
	if err != nil {
		return nil, apperr.New(apperr.KindValidation, "register product", fmt.Errorf("price: %w", err))
	}

	logger.Info("registering product", "images", len(in.Images), "seller", in.Seller)

	imageFIDs := make([]string, 0, len(in.Images))
	for i, img := range in.Images {
		fid, err := s.uploader.Upload(ctx, img.Data, img.Filename, img.ContentType)
		if err != nil {
			logger.Error("image upload failed, registration aborted",
				"image", i, "filename", img.Filename, "orphaned_uploads", len(imageFIDs), "error", err)
			return nil, fmt.Errorf("uploading image %d (%s): %w", i+1, img.Filename, err)
		}
		imageFIDs = append(imageFIDs, fid)
	}

	meta, err := s.meta.Build(ctx, metadata.Input{
		Name:        in.Name,
		Description: in.Description,
		Category:    in.Category,
		Images:      imageFIDs,
		Attributes:  in.Attributes,
	})
	if err != nil {
		logger.Error("metadata upload failed, registration aborted", "orphaned_uploads", len(imageFIDs), "error", err)
		return nil, err
	}

	commission := in.Commission
	product := &store.Product{
		Name:        in.Name,
		Description: in.Description,
		Price:       in.Price,
		Category:    in.Category,
		Images:      imageFIDs,
		Seller:      in.Seller,
		CreatedAt:   s.now().UTC().Format(time.RFC3339),
		Status:      store.StatusPendingBlockchain,
		MetadataFID: meta.FID,
		Deliverer:   in.Deliverer,
		Commission:  &commission,
	}
	s.products.Insert(ctx, product)

	logger.Info("product registered", "product_id", product.ID, "metadata_fid", meta.FID)
	return &Registration{
		ProductID:   product.ID,
		MetadataFID: meta.FID,
		ImageFIDs:   imageFIDs,
		BlockchainData: BlockchainData{
			Deliverer:   in.Deliverer,
			MetadataFID: meta.FID,
			PriceWei:    priceWei.String(),
			Commission:  in.Commission,
		},
		Product: product,
	}, nil
}

// LegacyInput is the body of the simple registration. Images are already
// blob identifiers.
type LegacyInput struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Price       float64  `json:"price"`
	Category    string   `json:"category"`
	Images      []string `json:"images"`
	Seller      string   `json:"seller"`
	CreatedAt   string   `json:"createdAt,omitempty"`
}

// RegisterProductLegacy inserts a product with status active without
// uploading anything. createdAt defaults to now.
func (s *Service) RegisterProductLegacy(ctx context.Context, in LegacyInput) (*store.Product, error) {
	createdAt := in.CreatedAt
	if createdAt == "" {
		createdAt = s.now().UTC().Format(time.RFC3339)
	}
	images := in.Images
	if images == nil {
		images = []string{}
	}

	product := &store.Product{
		Name:        in.Name,
		Description: in.Description,
		Price:       in.Price,
		Category:    in.Category,
		Images:      images,
		Seller:      in.Seller,
		CreatedAt:   createdAt,
		Status:      store.StatusActive,
	}
	s.products.Insert(ctx, product)

	s.logger.Info("product registered", "product_id", product.ID, "name", in.Name, "legacy", true)
	return product, nil
}

// UpdateChainStatus records the on-chain identifier of a product. An empty
// status marks the product active.
func (s *Service) UpdateChainStatus(ctx context.Context, id, chainID, status string) (*store.Product, error) {
	if status == "" {
		status = store.StatusActive
	}
	p, err := s.products.Update(ctx, id, func(p *store.Product) {
		p.BlockchainID = chainID
		p.Status = status
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("chain status updated", "product_id", id, "blockchain_id", chainID, "status", status)
	return p, nil
}

// Stats summarizes both stores.
type Stats struct {
	TotalProducts    int            `json:"total_products"`
	TotalPersonas    int            `json:"total_personas"`
	ProductsByStatus map[string]int `json:"products_by_status"`
	Categories       map[string]int `json:"categories"`
}

// Stats counts products per status and per category.
func (s *Service) Stats(ctx context.Context) Stats {
	st := Stats{
		ProductsByStatus: map[string]int{},
		Categories:       map[string]int{},
	}
	for _, p := range s.products.All(ctx) {
		st.TotalProducts++
		st.ProductsByStatus[p.Status]++
		st.Categories[p.Category]++
	}
	st.TotalPersonas = s.personas.Count()
	return st
}

// Incomplete reports whether a product lacks a name, a price or a seller.
// Records decoded from older files have zero values for absent fields, so
// a zero price counts as missing.
func Incomplete(p *store.Product) bool {
	return p.Name == "" || p.Price == 0 || p.Seller == ""
}

// Cleanup removes incomplete products and returns how many were removed.
func (s *Service) Cleanup(ctx context.Context) int {
	removed := s.products.DeleteWhere(ctx, Incomplete)
	if len(removed) > 0 {
		s.logger.Info("removed incomplete products", "count", len(removed), "ids", removed)
	}
	return len(removed)
}
