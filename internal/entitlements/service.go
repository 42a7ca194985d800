package entitlements

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/atelierworks/atelier-backend/internal/catalog"
	"github.com/atelierworks/atelier-backend/internal/orders"
	"github.com/atelierworks/atelier-backend/pkg/config"
	"github.com/atelierworks/atelier-backend/pkg/db/models"
	pkgerrors "github.com/atelierworks/atelier-backend/pkg/errors"
	"github.com/atelierworks/atelier-backend/pkg/logger"
	"github.com/atelierworks/atelier-backend/pkg/metrics"
	"github.com/atelierworks/atelier-backend/pkg/storage/gcs"
)

const auditTimeout = 5 * time.Second

// Service gates digital file access behind paid orders.
type Service interface {
	ListFiles(ctx context.Context, userID, orderID uuid.UUID) ([]FileView, error)
	IssueDownloadURL(ctx context.Context, userID, orderID, fileID uuid.UUID, clientIP string) (*Grant, error)
}

// FileView is file metadata exposed to entitled buyers. The storage key
// stays server-side.
type FileView struct {
	FileID      uuid.UUID `json:"file_id"`
	ProductID   uuid.UUID `json:"product_id"`
	Name        string    `json:"name"`
	ContentType string    `json:"content_type"`
	SizeBytes   int64     `json:"size_bytes"`
}

// Grant is a short-lived download capability.
type Grant struct {
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

type service struct {
	ordersRepo orders.Repository
	catalog    catalog.Repository
	signer     gcs.URLSigner
	audit      AuditLog
	cfg        config.DownloadsConfig
	metrics    *metrics.OrderMetrics
	logg       *logger.Logger
	now        func() time.Time
}

// NewService builds an entitlements service backed by the provided stack.
func NewService(
	ordersRepo orders.Repository,
	catalogRepo catalog.Repository,
	signer gcs.URLSigner,
	audit AuditLog,
	cfg config.DownloadsConfig,
	orderMetrics *metrics.OrderMetrics,
	logg *logger.Logger,
) (Service, error) {
	if ordersRepo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if catalogRepo == nil {
		return nil, fmt.Errorf("catalog repository required")
	}
	if signer == nil {
		return nil, fmt.Errorf("url signer required")
	}
	if audit == nil {
		return nil, fmt.Errorf("audit log required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		ordersRepo: ordersRepo,
		catalog:    catalogRepo,
		signer:     signer,
		audit:      audit,
		cfg:        cfg,
		metrics:    orderMetrics,
		logg:       logg,
		now:        time.Now,
	}, nil
}

// ListFiles returns the files a paid order entitles the buyer to. An unpaid
// or foreign order reads as not found; callers learn nothing about orders
// they cannot access.
func (s *service) ListFiles(ctx context.Context, userID, orderID uuid.UUID) ([]FileView, error) {
	order, err := s.loadPaidOrder(ctx, userID, orderID)
	if err != nil {
		return nil, err
	}

	files, err := s.catalog.FindFilesByProducts(ctx, productIDs(order))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load files")
	}

	views := make([]FileView, 0, len(files))
	for _, file := range files {
		views = append(views, FileView{
			FileID:      file.ID,
			ProductID:   file.ProductID,
			Name:        file.Name,
			ContentType: file.ContentType,
			SizeBytes:   file.SizeBytes,
		})
	}
	return views, nil
}

// IssueDownloadURL signs a time-limited URL for one entitled file. The TTL
// is clamped to the configured ceiling no matter what operators set. The
// caller's address lands in the audit trail alongside the grant.
func (s *service) IssueDownloadURL(ctx context.Context, userID, orderID, fileID uuid.UUID, clientIP string) (*Grant, error) {
	if fileID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "file id is required")
	}

	order, err := s.loadPaidOrder(ctx, userID, orderID)
	if err != nil {
		s.metrics.IncDownloadIssued("denied")
		return nil, err
	}

	file, err := s.catalog.FindFileByID(ctx, fileID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			s.metrics.IncDownloadIssued("denied")
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "file not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load file")
	}

	if !orderCovers(order, file.ProductID) {
		s.metrics.IncDownloadIssued("denied")
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "file is not part of this order")
	}

	expiresAt := s.now().Add(s.cfg.EffectiveTTL())
	url, err := s.signer.SignedReadURL(file.ObjectKey, expiresAt)
	if err != nil {
		s.metrics.IncDownloadIssued("error")
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sign download url")
	}

	go func(entry models.FileAccessLog) {
		actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), auditTimeout)
		defer cancel()
		if err := s.audit.Record(actx, &entry); err != nil {
			s.logg.Warn(s.logg.WithField(actx, "file_id", entry.FileID.String()),
				"file access audit write failed")
		}
	}(models.FileAccessLog{
		UserID:    userID,
		OrderID:   orderID,
		FileID:    fileID,
		IP:        clientIP,
		ExpiresAt: expiresAt,
	})

	s.metrics.IncDownloadIssued("issued")
	return &Grant{URL: url, ExpiresAt: expiresAt}, nil
}

func (s *service) loadPaidOrder(ctx context.Context, userID, orderID uuid.UUID) (*models.Order, error) {
	if userID == uuid.Nil || orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id and order id are required")
	}

	order, err := s.ordersRepo.FindPaidByIDAndUser(ctx, orderID, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	return order, nil
}

func productIDs(order *models.Order) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(order.Items))
	ids := make([]uuid.UUID, 0, len(order.Items))
	for _, item := range order.Items {
		if _, ok := seen[item.ProductID]; ok {
			continue
		}
		seen[item.ProductID] = struct{}{}
		ids = append(ids, item.ProductID)
	}
	return ids
}

func orderCovers(order *models.Order, productID uuid.UUID) bool {
	for _, item := range order.Items {
		if item.ProductID == productID {
			return true
		}
	}
	return false
}
