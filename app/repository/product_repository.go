package repository

import (
	"errors"

	"github.com/ManuelReschke/CartFox/app/models"
	"gorm.io/gorm"
)

// ErrInsufficientStock is returned when a decrement would drive stock
// negative. The caller must treat it as a transaction-aborting condition.
var ErrInsufficientStock = errors.New("insufficient stock")

type productRepository struct {
	db *gorm.DB
}

// NewProductRepository creates a product repository. Pass a transaction
// handle to scope all operations to that transaction.
func NewProductRepository(db *gorm.DB) ProductRepository {
	return &productRepository{db: db}
}

func (r *productRepository) Create(product *models.Product) error {
	return r.db.Create(product).Error
}

func (r *productRepository) GetByID(id uint) (*models.Product, error) {
	var product models.Product
	err := r.db.First(&product, id).Error
	if err != nil {
		return nil, err
	}
	return &product, nil
}

func (r *productRepository) GetByUUID(uuid string) (*models.Product, error) {
	var product models.Product
	err := r.db.Where("uuid = ?", uuid).First(&product).Error
	if err != nil {
		return nil, err
	}
	return &product, nil
}

func (r *productRepository) Update(product *models.Product) error {
	return r.db.Save(product).Error
}

func (r *productRepository) List(offset, limit int) ([]models.Product, error) {
	var products []models.Product
	err := r.db.Offset(offset).Limit(limit).Order("created_at DESC").Find(&products).Error
	return products, err
}

func (r *productRepository) Count() (int64, error) {
	var count int64
	err := r.db.Model(&models.Product{}).Count(&count).Error
	return count, err
}

func (r *productRepository) DecrementStock(productID uint, quantity int) error {
	if quantity <= 0 {
		return errors.New("quantity must be positive")
	}
	// Guarded single-statement decrement: the WHERE clause makes the
	// check-then-decrement atomic under read-committed, so two workers
	// racing on the same row cannot oversell.
	tx := r.db.Model(&models.Product{}).
		Where("id = ? AND stock >= ?", productID, quantity).
		UpdateColumn("stock", gorm.Expr("stock - ?", quantity))
	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		return ErrInsufficientStock
	}
	return nil
}
