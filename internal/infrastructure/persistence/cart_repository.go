package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/storefront/backend/internal/domain/cart"
	"github.com/storefront/backend/internal/domain/shared"
	"gorm.io/gorm"
)

// currentStatuses are the states in which a cart still counts as the
// owner's current cart. Terminal carts are never returned by the
// FindCurrent queries.
var currentStatuses = []string{
	cart.StatusActive.String(),
	cart.StatusAbandoned.String(),
}

// GormCartRepository implements cart.Repository using GORM
type GormCartRepository struct {
	db *gorm.DB
}

// NewGormCartRepository creates a new GormCartRepository
func NewGormCartRepository(db *gorm.DB) *GormCartRepository {
	return &GormCartRepository{db: db}
}

// FindByID finds a cart by its ID
func (r *GormCartRepository) FindByID(ctx context.Context, id uuid.UUID) (*cart.Cart, error) {
	var c cart.Cart
	if err := r.db.WithContext(ctx).
		Preload("Items").
		First(&c, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

// FindCurrentByUser returns the user's active or abandoned cart
func (r *GormCartRepository) FindCurrentByUser(ctx context.Context, userID uuid.UUID) (*cart.Cart, error) {
	var c cart.Cart
	if err := r.db.WithContext(ctx).
		Preload("Items").
		Where("user_id = ? AND status IN ?", userID, currentStatuses).
		Order("updated_at DESC").
		First(&c).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

// FindCurrentBySession returns the session's active or abandoned cart
func (r *GormCartRepository) FindCurrentBySession(ctx context.Context, sessionID string) (*cart.Cart, error) {
	var c cart.Cart
	if err := r.db.WithContext(ctx).
		Preload("Items").
		Where("session_id = ? AND status IN ?", sessionID, currentStatuses).
		Order("updated_at DESC").
		First(&c).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

// Save creates or updates a cart and its items in one transaction
func (r *GormCartRepository) Save(ctx context.Context, c *cart.Cart) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Save(c).Error; err != nil {
			return err
		}
		return r.syncItems(tx, c)
	})
}

// SaveWithLock saves with optimistic locking. A stale in-memory version
// loses to the concurrent writer and reports shared.ErrConcurrencyConflict.
func (r *GormCartRepository) SaveWithLock(ctx context.Context, c *cart.Cart) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return r.saveWithLockTx(tx, c)
	})
}

// SaveMerge persists a completed merge atomically: the recipient with its
// folded-in items and the emptied donor in its merged state. Both carts get
// the version check so a concurrent mutation of either aborts the merge.
func (r *GormCartRepository) SaveMerge(ctx context.Context, recipient, donor *cart.Cart) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := r.saveWithLockTx(tx, recipient); err != nil {
			return err
		}
		return r.saveWithLockTx(tx, donor)
	})
}

// MarkAbandonedBefore flags active carts idle since before the cutoff
func (r *GormCartRepository) MarkAbandonedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&cart.Cart{}).
		Where("status = ? AND updated_at < ?", cart.StatusActive.String(), cutoff).
		Updates(map[string]interface{}{
			"status":     cart.StatusAbandoned.String(),
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

// saveWithLockTx performs the version-checked update of one cart inside an
// open transaction
func (r *GormCartRepository) saveWithLockTx(tx *gorm.DB, c *cart.Cart) error {
	var row struct{ Version int }
	if err := tx.Model(&cart.Cart{}).
		Where("id = ?", c.ID).
		Select("version").
		Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return shared.ErrNotFound
		}
		return err
	}

	currentVersion := row.Version
	if currentVersion != c.Version {
		return shared.ErrConcurrencyConflict
	}

	c.Version++
	c.UpdatedAt = time.Now()

	result := tx.Model(&cart.Cart{}).
		Where("id = ? AND version = ?", c.ID, currentVersion).
		Updates(map[string]interface{}{
			"user_id":     c.UserID,
			"session_id":  c.SessionID,
			"status":      c.Status.String(),
			"coupon_code": c.CouponCode,
			"currency":    string(c.Currency),
			"subtotal":    c.Subtotal,
			"discount":    c.Discount,
			"shipping":    c.Shipping,
			"tax":         c.Tax,
			"total":       c.Total,
			"version":     c.Version,
			"updated_at":  c.UpdatedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrConcurrencyConflict
	}

	return r.syncItems(tx, c)
}

// syncItems reconciles the cart_items rows with the aggregate's lines:
// removed lines are deleted, the rest are upserted.
func (r *GormCartRepository) syncItems(tx *gorm.DB, c *cart.Cart) error {
	currentItemIDs := make([]uuid.UUID, len(c.Items))
	for i, item := range c.Items {
		currentItemIDs[i] = item.ID
	}

	if len(currentItemIDs) > 0 {
		if err := tx.Where("cart_id = ? AND id NOT IN ?", c.ID, currentItemIDs).
			Delete(&cart.Item{}).Error; err != nil {
			return err
		}
	} else {
		if err := tx.Where("cart_id = ?", c.ID).
			Delete(&cart.Item{}).Error; err != nil {
			return err
		}
	}

	for i := range c.Items {
		c.Items[i].CartID = c.ID
		if err := tx.Save(&c.Items[i]).Error; err != nil {
			return err
		}
	}

	return nil
}

// Ensure GormCartRepository implements cart.Repository
var _ cart.Repository = (*GormCartRepository)(nil)
