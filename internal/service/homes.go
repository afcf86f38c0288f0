package service

import (
	"context"
	"errors"
	"path"
	"strings"
	"time"

	"github.com/homeward/backoffice-go/internal/domain"
	"github.com/homeward/backoffice-go/internal/port"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const imageUploadTTL = 15 * time.Minute

var imageContentTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/heic": ".heic",
	"image/webp": ".webp",
}

// HomeService manages the customer's current home and mortgage lender, the
// two records an application links to by id.
type HomeService struct {
	store        port.Store
	writer       *Writer
	engine       *Engine
	outbox       *Outbox
	objects      port.ObjectStore
	imagesBucket string
	logger       *zap.Logger
}

func NewHomeService(store port.Store, writer *Writer, engine *Engine, outbox *Outbox, objects port.ObjectStore, imagesBucket string, logger *zap.Logger) *HomeService {
	return &HomeService{
		store:        store,
		writer:       writer,
		engine:       engine,
		outbox:       outbox,
		objects:      objects,
		imagesBucket: imagesBucket,
		logger:       logger,
	}
}

// CurrentHomeInput is the body of current-home create and patch.
type CurrentHomeInput struct {
	ApplicationID         *uuid.UUID         `json:"application_id"`
	Address               *domain.Address    `json:"address"`
	MarketValue           Optional[float64]  `json:"market_value"`
	OutstandingLoanAmount Optional[float64]  `json:"outstanding_loan_amount"`
	CustomerValueOpinion  Optional[float64]  `json:"customer_value_opinion"`
	ListingStatus         *string            `json:"listing_status"`
	ListingURL            *string            `json:"listing_url" validate:"omitempty,url"`
	Sqft                  Optional[int]      `json:"sqft"`
	Bedrooms              Optional[int]      `json:"bedrooms"`
	Bathrooms             Optional[float64]  `json:"bathrooms"`
	YearBuilt             Optional[int]      `json:"year_built"`
	HasPool               Optional[bool]     `json:"has_pool"`
	FloorPrice            *domain.FloorPrice `json:"floor_price"`
}

func (in *CurrentHomeInput) apply(h *domain.CurrentHome) error {
	if in.ListingStatus != nil {
		ls, err := domain.ParseListingStatus(*in.ListingStatus)
		if err != nil {
			return err
		}
		h.ListingStatus = ls
	}
	if in.Address != nil {
		h.Address = *in.Address
	}
	if in.ListingURL != nil {
		h.ListingURL = strings.TrimSpace(*in.ListingURL)
	}
	if in.FloorPrice != nil {
		h.FloorPrice = in.FloorPrice
	}
	in.MarketValue.Apply(&h.MarketValue)
	in.OutstandingLoanAmount.Apply(&h.OutstandingLoanAmount)
	in.CustomerValueOpinion.Apply(&h.CustomerValueOpinion)
	in.Sqft.Apply(&h.Sqft)
	in.Bedrooms.Apply(&h.Bedrooms)
	in.Bathrooms.Apply(&h.Bathrooms)
	in.YearBuilt.Apply(&h.YearBuilt)
	in.HasPool.Apply(&h.HasPool)
	return nil
}

// CreateCurrentHome adds the current home of an application. An application
// has at most one.
func (s *HomeService) CreateCurrentHome(ctx context.Context, p *domain.Principal, in *CurrentHomeInput) (*domain.CurrentHome, error) {
	ctx, span := tracer.Start(ctx, "HomeService.CreateCurrentHome")
	defer span.End()

	if in.ApplicationID == nil {
		return nil, domain.NewValidationError("application_id", "required")
	}
	app, err := authorizeApplication(ctx, s.store, p, *in.ApplicationID)
	if err != nil {
		return nil, err
	}
	home := &domain.CurrentHome{ApplicationID: app.ID}
	if err := in.apply(home); err != nil {
		return nil, err
	}

	err = s.store.WithTx(ctx, func(tx port.Store) error {
		existing, err := tx.GetCurrentHomeByApplication(ctx, app.ID)
		var nf *domain.ErrNotFound
		switch {
		case err == nil && existing != nil:
			return &domain.ErrConflict{Message: "application already has a current home"}
		case err != nil && !errors.As(err, &nf):
			return err
		}
		if err := tx.SaveCurrentHome(ctx, home); err != nil {
			return err
		}
		if err := s.outbox.Publish(ctx, tx, domain.KindCurrentHome, home.ID); err != nil {
			return err
		}
		locked, err := tx.GetApplication(ctx, app.ID)
		if err != nil {
			return err
		}
		locked.CurrentHomeID = &home.ID
		_, err = s.writer.With(tx).SaveApplication(ctx, locked, domain.SourceExternal)
		return err
	})
	if err != nil {
		return nil, err
	}
	if _, err := s.engine.Run(ctx, app.ID, domain.SourceExternal); err != nil {
		return nil, err
	}
	s.logger.Info("current home created",
		zap.String("application_id", app.ID.String()),
		zap.String("current_home_id", home.ID.String()),
	)
	return home, nil
}

func (s *HomeService) currentHome(ctx context.Context, p *domain.Principal, id uuid.UUID) (*domain.CurrentHome, error) {
	home, err := s.store.GetCurrentHome(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := authorizeApplication(ctx, s.store, p, home.ApplicationID); err != nil {
		return nil, &domain.ErrNotFound{Resource: "current_home", ID: id.String()}
	}
	return home, nil
}

func (s *HomeService) PatchCurrentHome(ctx context.Context, p *domain.Principal, id uuid.UUID, in *CurrentHomeInput) (*domain.CurrentHome, error) {
	ctx, span := tracer.Start(ctx, "HomeService.PatchCurrentHome")
	defer span.End()
	span.SetAttributes(attribute.String("current_home.id", id.String()))

	home, err := s.currentHome(ctx, p, id)
	if err != nil {
		return nil, err
	}
	if err := in.apply(home); err != nil {
		return nil, err
	}
	err = s.store.WithTx(ctx, func(tx port.Store) error {
		if err := tx.SaveCurrentHome(ctx, home); err != nil {
			return err
		}
		return s.outbox.Publish(ctx, tx, domain.KindCurrentHome, home.ID)
	})
	if err != nil {
		return nil, err
	}
	if _, err := s.engine.Run(ctx, home.ApplicationID, domain.SourceExternal); err != nil {
		return nil, err
	}
	return home, nil
}

// ImageUpload is a presigned upload target for one current-home photo.
type ImageUpload struct {
	URL       string    `json:"url"`
	Key       string    `json:"key"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ImageUploadURL reserves an image key on the home and presigns a PUT for it.
func (s *HomeService) ImageUploadURL(ctx context.Context, p *domain.Principal, id uuid.UUID, contentType string) (*ImageUpload, error) {
	ctx, span := tracer.Start(ctx, "HomeService.ImageUploadURL")
	defer span.End()

	ext, ok := imageContentTypes[strings.ToLower(contentType)]
	if !ok {
		return nil, domain.NewValidationError("content_type", "must be one of [image/jpeg, image/png, image/heic, image/webp]")
	}
	home, err := s.currentHome(ctx, p, id)
	if err != nil {
		return nil, err
	}
	key := path.Join("current-home", home.ID.String(), uuid.NewString()+ext)
	url, err := s.objects.PresignPut(ctx, s.imagesBucket, key, contentType, imageUploadTTL)
	if err != nil {
		return nil, err
	}
	home.Images = append(home.Images, key)
	if err := s.store.SaveCurrentHome(ctx, home); err != nil {
		return nil, err
	}
	return &ImageUpload{URL: url, Key: key, ExpiresAt: time.Now().Add(imageUploadTTL)}, nil
}

// ============================================================
// Mortgage lender
// ============================================================

type LenderInput struct {
	ApplicationID *uuid.UUID `json:"application_id"`
	Name          *string    `json:"name"`
	Company       *string    `json:"company"`
	Email         *string    `json:"email" validate:"omitempty,email"`
	Phone         *string    `json:"phone"`
}

func (in *LenderInput) apply(m *domain.MortgageLender) {
	if in.Name != nil {
		m.Name = strings.TrimSpace(*in.Name)
	}
	if in.Company != nil {
		m.Company = strings.TrimSpace(*in.Company)
	}
	if in.Email != nil {
		m.Email = strings.ToLower(strings.TrimSpace(*in.Email))
	}
	if in.Phone != nil {
		m.Phone = domain.NormalizePhone(*in.Phone)
	}
}

// CreateLender records the customer's own lender and links it to the
// application.
func (s *HomeService) CreateLender(ctx context.Context, p *domain.Principal, in *LenderInput) (*domain.MortgageLender, error) {
	ctx, span := tracer.Start(ctx, "HomeService.CreateLender")
	defer span.End()

	if in.ApplicationID == nil {
		return nil, domain.NewValidationError("application_id", "required")
	}
	app, err := authorizeApplication(ctx, s.store, p, *in.ApplicationID)
	if err != nil {
		return nil, err
	}
	lender := &domain.MortgageLender{ApplicationID: app.ID}
	in.apply(lender)

	err = s.store.WithTx(ctx, func(tx port.Store) error {
		if err := tx.SaveMortgageLender(ctx, lender); err != nil {
			return err
		}
		locked, err := tx.GetApplication(ctx, app.ID)
		if err != nil {
			return err
		}
		locked.MortgageLenderID = &lender.ID
		_, err = s.writer.With(tx).SaveApplication(ctx, locked, domain.SourceExternal)
		return err
	})
	if err != nil {
		return nil, err
	}
	if _, err := s.engine.Run(ctx, app.ID, domain.SourceExternal); err != nil {
		return nil, err
	}
	return lender, nil
}

func (s *HomeService) PatchLender(ctx context.Context, p *domain.Principal, id uuid.UUID, in *LenderInput) (*domain.MortgageLender, error) {
	lender, err := s.store.GetMortgageLender(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := authorizeApplication(ctx, s.store, p, lender.ApplicationID); err != nil {
		return nil, &domain.ErrNotFound{Resource: "mortgage_lender", ID: id.String()}
	}
	in.apply(lender)
	if err := s.store.SaveMortgageLender(ctx, lender); err != nil {
		return nil, err
	}
	if _, err := s.engine.Run(ctx, lender.ApplicationID, domain.SourceExternal); err != nil {
		return nil, err
	}
	return lender, nil
}
